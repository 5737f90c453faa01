package domain

import (
	"time"

	"github.com/goccy/go-json"
)

type DirectMessage struct {
	ID           string            `json:"id"`
	Content      string            `json:"content"`
	SenderID     string            `json:"senderId"`
	SenderName   string            `json:"senderName"`
	SenderAvatar string            `json:"senderAvatar,omitempty"`
	RecipientID  string            `json:"recipientId"`
	Reactions    []Reaction        `json:"reactions"`
	Embeds       []json.RawMessage `json:"embeds"`
	Attachments  []json.RawMessage `json:"attachments"`
	CreatedAt    time.Time         `json:"createdAt"`
	EditedAt     *time.Time        `json:"editedAt,omitempty"`
}
