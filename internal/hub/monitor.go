package hub

import (
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub   *Hub
	relay *Relay
}

// NewMonitorService creates a new monitor service. relay may be nil.
func NewMonitorService(hub *Hub, relay *Relay) *MonitorService {
	return &MonitorService{hub: hub, relay: relay}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	shards, clients := ms.walk()

	stats := model.ConnectionStats{
		TotalSessions: len(clients),
		InboundQueued: len(ms.hub.inbound),
	}
	for _, s := range shards {
		stats.TotalUsers += s.Users
	}

	// Determine overall health status
	status := "healthy"
	if stats.TotalSessions == 0 {
		status = "idle"
	}

	relay := model.RelayInfo{}
	if ms.relay != nil {
		relay.Enabled = true
		relay.Subscribed = ms.relay.Subscribed()
		relay.Channel = ms.relay.Channel()
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: stats,
		Shards:      shards,
		Clients:     clients,
		Relay:       relay,
	}
}

// walk visits every shard once, collecting per-shard load and the session list.
func (ms *MonitorService) walk() ([]model.ShardInfo, []model.ClientInfo) {
	shards := make([]model.ShardInfo, 0)
	clients := make([]model.ClientInfo, 0)

	for i, bucket := range ms.hub.shards {
		bucket.RLock()
		info := model.ShardInfo{Shard: i, Users: len(bucket.users)}
		for _, sessions := range bucket.users {
			for _, c := range sessions {
				info.Sessions++
				clients = append(clients, model.ClientInfo{
					ClientID:    c.ID,
					UserID:      c.userID.String(),
					ConnectedAt: c.connectedAt.Format(time.RFC3339),
				})
			}
		}
		bucket.RUnlock()

		if info.Users > 0 {
			shards = append(shards, info)
		}
	}

	return shards, clients
}
