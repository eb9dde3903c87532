package api

import (
	"time"

	"github.com/pairium/experimentd/pkg/models"
	"github.com/pairium/experimentd/pkg/runtime"
)

// snapshotResponse renders a runtime.Snapshot per §6's shared session
// response shape.
func snapshotResponse(snap *runtime.Snapshot) map[string]any {
	body := map[string]any{
		"sessionId":     snap.SessionID,
		"configId":      snap.ConfigID,
		"currentPageId": snap.CurrentPageID,
		"page":          snap.Page,
		"user_state":    snap.UserState,
	}
	if snap.Status != "" {
		body["status"] = snap.Status
	}
	if snap.EndedAt != nil {
		body["endedAt"] = snap.EndedAt
	}
	if snap.Deduplicated {
		body["deduplicated"] = true
	}
	return body
}

// blockedResponse is POST /sessions/start's 409 body when a prior session
// for this identity has already ended (§6).
func blockedResponse() map[string]any {
	return map[string]any{
		"error":   "session_blocked",
		"message": "a previous session for this identity has already ended",
	}
}

func chatMessageResponse(msg *models.ChatMessage, deduplicated bool) map[string]any {
	body := map[string]any{
		"messageId": msg.ID,
		"createdAt": msg.CreatedAt,
	}
	if deduplicated {
		body["deduplicated"] = true
	}
	return body
}

type chatHistoryMessage struct {
	MessageID  string    `json:"messageId"`
	SenderID   string    `json:"senderId"`
	SenderType string    `json:"senderType"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

func chatHistoryResponse(msgs []models.ChatMessage) map[string]any {
	out := make([]chatHistoryMessage, len(msgs))
	for i, m := range msgs {
		out[i] = chatHistoryMessage{
			MessageID:  m.ID,
			SenderID:   m.SenderID,
			SenderType: string(m.SenderType),
			Content:    m.Content,
			CreatedAt:  m.CreatedAt,
		}
	}
	return map[string]any{"messages": out}
}
