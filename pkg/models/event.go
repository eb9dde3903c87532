package models

import "time"

// Event is an append-only record submitted by the renderer for a session.
type Event struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	ComponentType  string         `json:"componentType,omitempty"`
	ComponentID    string         `json:"componentId,omitempty"`
	PageID         string         `json:"pageId,omitempty"`
	SessionID      string         `json:"sessionId"`
	ConfigID       string         `json:"configId"`
	Data           map[string]any `json:"data,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
}
