package models

import "time"

// SenderType identifies who authored a ChatMessage.
type SenderType string

const (
	SenderParticipant SenderType = "participant"
	SenderAgent       SenderType = "agent"
	SenderSystem      SenderType = "system"
)

// ChatMessage is one persisted message within a Group's chat.
type ChatMessage struct {
	ID             string     `json:"id"`
	GroupID        string     `json:"groupId"`
	SenderID       string     `json:"senderId"`
	SenderType     SenderType `json:"senderType"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"createdAt"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
}

// Group is a server-side record of N sessions matched together for a
// multi-party stage. Groups are never resized after creation.
type Group struct {
	ID               string    `json:"groupId"`
	ConfigID         string    `json:"configId"`
	PoolID           string    `json:"poolId"`
	MemberSessionIDs []string  `json:"memberSessionIds"`
	Treatment        string    `json:"treatment"`
	MatchedAt        time.Time `json:"matchedAt"`
	Status           string    `json:"status"`
}
