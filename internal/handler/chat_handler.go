package handler

import (
	"net/http"
	"strconv"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/apperror"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/middleware"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ChatHandler interface {
	GetConversations(c *gin.Context)
	GetMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkAsRead(c *gin.Context)
	GetUnreadCount(c *gin.Context)
}

type chatHandler struct {
	service service.ChatService
	logger  *zap.Logger
}

func NewChatHandler(service service.ChatService, logger *zap.Logger) ChatHandler {
	return &chatHandler{
		service: service,
		logger:  logger,
	}
}

type sendMessageRequest struct {
	Content string `json:"content"`
	BookID  string `json:"bookId"`
}

type markReadResponse struct {
	Modified int64 `json:"modified"`
}

type unreadCountResponse struct {
	Count int64 `json:"count"`
}

// GetConversations lists the caller's conversations, newest first
// @Router /chat/api/conversations [get]
func (h *chatHandler) GetConversations(c *gin.Context) {
	cvs, err := h.service.Conversations(c.Request.Context(), middleware.UserFrom(c))
	if err != nil {
		h.fail(c, "get conversations", err)
		return
	}
	respond(c, http.StatusOK, cvs, "Conversations retrieved successfully")
}

// GetMessages returns one page of history, newest first
// @Router /chat/api/messages/{otherUserId} [get]
func (h *chatHandler) GetMessages(c *gin.Context) {
	page, err := parsePositive(c.DefaultQuery("page", "1"))
	if err != nil {
		respondError(c, apperror.BadRequest("Invalid page number", err))
		return
	}
	pageSize, err := parsePositive(c.DefaultQuery("pageSize", strconv.Itoa(model.DefaultPageSize)))
	if err != nil {
		respondError(c, apperror.BadRequest("Invalid page size", err))
		return
	}

	msgs, err := h.service.History(c.Request.Context(), middleware.UserFrom(c), conversationKey(c, c.Query("bookId")), page, pageSize)
	if err != nil {
		h.fail(c, "get messages", err)
		return
	}
	respond(c, http.StatusOK, msgs, "Messages retrieved successfully")
}

// SendMessage persists a message and pushes it to both parties
// @Router /chat/api/messages/{otherUserId} [post]
func (h *chatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperror.BadRequest("Invalid request body", err))
		return
	}

	msg, err := h.service.Send(c.Request.Context(), middleware.UserFrom(c), conversationKey(c, req.BookID), req.Content)
	if err != nil {
		h.fail(c, "send message", err)
		return
	}
	respond(c, http.StatusCreated, msg, "Message sent successfully")
}

// MarkAsRead flags every unread message from the counterparty as read
// @Router /chat/api/messages/{otherUserId}/read [put]
func (h *chatHandler) MarkAsRead(c *gin.Context) {
	modified, err := h.service.MarkAsRead(c.Request.Context(), middleware.UserFrom(c), conversationKey(c, c.Query("bookId")))
	if err != nil {
		h.fail(c, "mark as read", err)
		return
	}
	respond(c, http.StatusOK, markReadResponse{Modified: modified}, "Messages marked as read")
}

// GetUnreadCount returns the caller's total unread messages
// @Router /chat/api/unread-count [get]
func (h *chatHandler) GetUnreadCount(c *gin.Context) {
	count, err := h.service.UnreadCount(c.Request.Context(), middleware.UserFrom(c))
	if err != nil {
		h.fail(c, "unread count", err)
		return
	}
	respond(c, http.StatusOK, unreadCountResponse{Count: count}, "Unread count retrieved successfully")
}

func (h *chatHandler) fail(c *gin.Context, op string, err error) {
	if service.IsClientError(err) {
		h.logger.Debug(op+" rejected", zap.Error(err))
	} else {
		h.logger.Error(op+" failed", zap.Error(err))
	}
	respondError(c, err)
}

func conversationKey(c *gin.Context, bookID string) model.ConversationKey {
	return model.ConversationKey{
		OtherUserID: model.UserID(c.Param("otherUserId")),
		BookID:      bookID,
	}
}

func parsePositive(v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
