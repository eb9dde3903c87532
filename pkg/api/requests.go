package api

import "github.com/pairium/experimentd/pkg/models"

// startRequest is POST /sessions/start's body (§6).
type startRequest struct {
	ConfigID string               `json:"configId" binding:"required"`
	Prolific *models.ProlificInfo `json:"prolific,omitempty"`
}

// advanceRequest is POST /sessions/:id/advance's body (§6).
type advanceRequest struct {
	Target         string `json:"target" binding:"required"`
	IdempotencyKey string `json:"idempotencyKey" binding:"required"`
}

// stateRequest is POST /sessions/:id/state's body (§6).
type stateRequest struct {
	Updates        map[string]any `json:"updates" binding:"required"`
	IdempotencyKey string         `json:"idempotencyKey" binding:"required"`
}

// eventRequest is POST /sessions/:id/events' body (§6).
type eventRequest struct {
	Type           string         `json:"type" binding:"required"`
	ComponentType  string         `json:"componentType,omitempty"`
	ComponentID    string         `json:"componentId,omitempty"`
	PageID         string         `json:"pageId,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
}

// matchmakeAssignmentRequest is the optional "assignment" field of a
// matchmake request.
type matchmakeAssignmentRequest struct {
	Strategy   string   `json:"strategy"`
	Candidates []string `json:"candidates"`
}

// matchmakeRequest is POST /sessions/:id/matchmake's body (§6).
type matchmakeRequest struct {
	PoolID         string                      `json:"poolId" binding:"required"`
	NumUsers       int                         `json:"num_users" binding:"required,min=1"`
	TimeoutSeconds int                         `json:"timeoutSeconds" binding:"required,min=1"`
	TimeoutTarget  string                      `json:"timeoutTarget,omitempty"`
	Assignment     *matchmakeAssignmentRequest `json:"assignment,omitempty"`
}

// matchmakeCancelRequest is POST /sessions/:id/matchmake/cancel's body.
type matchmakeCancelRequest struct {
	PoolID string `json:"poolId" binding:"required"`
}

// randomizeRequest is POST /sessions/:id/randomize's body (§6).
type randomizeRequest struct {
	AssignmentType string   `json:"assignmentType,omitempty"`
	Conditions     []string `json:"conditions,omitempty"`
	StateKey       string   `json:"stateKey,omitempty"`
}

// chatSendRequest is POST /chat/:groupId/send's body (§6).
type chatSendRequest struct {
	SessionID      string `json:"sessionId" binding:"required"`
	Content        string `json:"content" binding:"required"`
	SenderType     string `json:"senderType,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// chatStartAgentsRequest is POST /chat/:groupId/start-agents's body.
type chatStartAgentsRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}
