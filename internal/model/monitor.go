package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"`      // "healthy", "idle"
	Connections ConnectionStats `json:"connections"` // Session connection stats
	Shards      []ShardInfo     `json:"shards"`      // Non-empty shards only
	Clients     []ClientInfo    `json:"clients"`     // List of connected sessions
	Relay       RelayInfo       `json:"relay"`       // Cross-instance relay state
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalSessions int `json:"totalSessions"` // WebSocket sessions currently connected
	TotalUsers    int `json:"totalUsers"`    // Distinct users with at least one session
	InboundQueued int `json:"inboundQueued"` // Inbound events waiting for a worker
}

// ShardInfo describes the load of a single registry shard
type ShardInfo struct {
	Shard    int `json:"shard"`
	Users    int `json:"users"`
	Sessions int `json:"sessions"`
}

// ClientInfo contains information about a connected session
type ClientInfo struct {
	ClientID    string `json:"clientId"`
	UserID      string `json:"userId"`
	ConnectedAt string `json:"connectedAt"` // ISO timestamp
}

// RelayInfo reports whether events fan out through Redis
type RelayInfo struct {
	Enabled    bool   `json:"enabled"`
	Subscribed bool   `json:"subscribed"` // false means events are delivered on this instance only
	Channel    string `json:"channel,omitempty"`
}
