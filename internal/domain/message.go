package domain

import (
	"time"

	"github.com/goccy/go-json"
)

type Message struct {
	ID           string            `json:"id"`
	Content      string            `json:"content"`
	AuthorID     string            `json:"authorId"`
	AuthorName   string            `json:"authorName"`
	AuthorAvatar string            `json:"authorAvatar,omitempty"`
	ChannelID    string            `json:"channelId"`
	Pinned       bool              `json:"pinned"`
	Reactions    []Reaction        `json:"reactions"`
	Embeds       []json.RawMessage `json:"embeds"`
	Attachments  []json.RawMessage `json:"attachments"`
	CreatedAt    time.Time         `json:"createdAt"`
	EditedAt     *time.Time        `json:"editedAt,omitempty"`
	DeletedAt    *time.Time        `json:"deletedAt,omitempty"`
}

// Reaction is one (message, emoji, user) triple. The store enforces
// uniqueness of the triple, not this struct.
type Reaction struct {
	Emoji     string    `json:"emoji"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Thread struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MessageID string    `json:"messageId"`
	ChannelID string    `json:"channelId"`
	CreatedAt time.Time `json:"createdAt"`
}
