// Package main is a terminal chat client for the chat server.
//
// Usage:
//
//	CHAT_TOKEN=<jwt> go run ./cmd/chatcli --user <userId>
//	go run ./cmd/chatcli --user <userId> --secret dev-secret-change-me
//
// Commands: /list, /open <userId> [bookId], /older, /read, /retry,
// /hide, /show, /quit. Any other line is sent to the open conversation.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/auth"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/chatclient"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/event"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"go.uber.org/zap"
)

var (
	apiURL         = flag.String("api", "http://localhost:8080", "chat API base URL")
	wsURL          = flag.String("ws", "ws://localhost:8081/ws", "realtime channel URL")
	userID         = flag.String("user", "", "your user id")
	secret         = flag.String("secret", "", "sign a development token with this secret instead of CHAT_TOKEN")
	verbose        = flag.Bool("v", false, "debug logging")
	reconnectDelay = flag.Duration("reconnect", 3*time.Second, "delay between realtime reconnect attempts")
)

func main() {
	flag.Parse()

	if *userID == "" {
		log.Fatal("--user is required")
	}
	me := model.UserID(*userID)

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("Failed to build logger: %v", err)
		}
		logger = l
	}
	defer logger.Sync()

	token, err := resolveToken(me)
	if err != nil {
		log.Fatalf("Failed to get token: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := chatclient.NewBus(logger)
	channel, err := chatclient.NewChannel(*wsURL, token, bus, logger)
	if err != nil {
		log.Fatalf("Failed to create channel: %v", err)
	}
	defer channel.Close()

	api := chatclient.NewHTTPClient(*apiURL, token)
	session := chatclient.NewSession(me, api, bus, channel, chatclient.SessionOptions{Logger: logger})
	defer session.Close()

	unsubscribe := bus.Subscribe(chatclient.Handlers{
		NewMessage: func(msg model.Message) {
			if !msg.IsFrom(me) {
				fmt.Printf("\n[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04"), msg.SenderID, msg.Content)
			}
		},
		Typing: func(p event.Typing) {
			if session.View.Snapshot().Key.OtherUserID == p.SenderID {
				fmt.Printf("\n%s is typing...\n", p.SenderID)
			}
		},
		Error: func(p model.ErrorPayload) {
			fmt.Printf("\nserver: %s (%s)\n", p.Message, p.Code)
		},
	})
	defer unsubscribe()

	go listen(ctx, channel, logger)

	if err := session.List.Load(ctx); err != nil {
		fmt.Printf("could not load conversations: %v (/retry)\n", err)
	}
	printList(session.List)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handle(ctx, session, line); quit {
				return
			}
		}
	}
}

func resolveToken(me model.UserID) (string, error) {
	if *secret != "" {
		return auth.NewTokenManager(*secret, "pustakbazzar", 24*time.Hour).Issue(me)
	}
	if t := os.Getenv("CHAT_TOKEN"); t != "" {
		return t, nil
	}
	return "", errors.New("set CHAT_TOKEN or pass --secret")
}

// listen keeps the realtime channel connected until ctx is done.
func listen(ctx context.Context, channel *chatclient.Channel, logger *zap.Logger) {
	for ctx.Err() == nil {
		if err := channel.Connect(ctx); err != nil {
			logger.Debug("realtime connect failed", zap.Error(err))
		} else if err := channel.Listen(ctx); err != nil && ctx.Err() == nil {
			logger.Debug("realtime channel dropped", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(*reconnectDelay):
		}
	}
}

func handle(ctx context.Context, s *chatclient.Session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var err error
	switch fields[0] {
	case "/quit":
		return true
	case "/list":
		printList(s.List)
		return false
	case "/open":
		if len(fields) < 2 {
			fmt.Println("usage: /open <userId> [bookId]")
			return false
		}
		key := model.ConversationKey{OtherUserID: model.UserID(fields[1])}
		if len(fields) > 2 {
			key.BookID = fields[2]
		}
		err = s.Open(ctx, key)
		printView(s.View.Snapshot())
	case "/older":
		s.View.ScrollTo(0)
		err = s.View.LoadOlder(ctx)
		printView(s.View.Snapshot())
	case "/read":
		err = s.View.MarkAsRead(ctx)
	case "/retry":
		if s.List.Failure() != nil {
			err = s.List.Retry(ctx)
		}
		if err == nil {
			err = s.View.Retry(ctx)
		}
	case "/hide":
		err = s.SetVisible(ctx, false)
	case "/show":
		err = s.SetVisible(ctx, true)
	default:
		s.View.SetDraft(line)
		err = s.View.Send(ctx)
	}

	if err != nil {
		fmt.Printf("error: %v (/retry)\n", err)
	}
	return false
}

func printList(l *chatclient.ConversationList) {
	if l.Loading() {
		fmt.Println("loading conversations...")
		return
	}
	items := l.Items()
	if len(items) == 0 {
		fmt.Println("no conversations")
		return
	}
	for _, c := range items {
		name := c.OtherUserName
		if name == "" {
			name = c.OtherUserID.String()
		}
		if c.BookTitle != "" {
			name += " (" + c.BookTitle + ")"
		}
		badge := ""
		if c.UnreadCount > 0 {
			badge = fmt.Sprintf(" [%d]", c.UnreadCount)
		}
		fmt.Printf("%-40s %s%s\n", name, c.LastMessage, badge)
	}
}

func printView(v chatclient.ViewSnapshot) {
	if v.State != chatclient.StateReady {
		return
	}
	if v.HasMore {
		fmt.Println("  ... /older for earlier messages")
	}
	for _, m := range v.Messages {
		mark := ">"
		switch {
		case m.IsFrom(v.Key.OtherUserID):
			mark = "<"
		case m.Read:
			mark = ">>"
		}
		fmt.Printf("%-2s [%s] %s\n", mark, m.CreatedAt.Local().Format("Jan 2 15:04"), m.Content)
	}
}
