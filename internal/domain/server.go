package domain

import "time"

type Server struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	Icon      string    `json:"icon,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Channel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ServerID  string    `json:"serverId"`
	Type      string    `json:"type"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
}

type Member struct {
	ID       string    `json:"id"`
	UserID   string    `json:"userId"`
	ServerID string    `json:"serverId"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Role struct {
	ID          string    `json:"id"`
	ServerID    string    `json:"serverId"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Permissions string    `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Invite struct {
	Code      string     `json:"code"`
	ServerID  string     `json:"serverId"`
	CreatedBy string     `json:"createdBy"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	MaxUses   int        `json:"maxUses,omitempty"`
	Uses      int        `json:"uses"`
	CreatedAt time.Time  `json:"createdAt"`
}

type Ban struct {
	ID        string    `json:"id"`
	ServerID  string    `json:"serverId"`
	UserID    string    `json:"userId"`
	Reason    string    `json:"reason,omitempty"`
	BannedBy  string    `json:"bannedBy"`
	CreatedAt time.Time `json:"createdAt"`
}
