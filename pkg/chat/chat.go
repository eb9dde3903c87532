// Package chat implements the Chat Orchestrator (C6, §4.6): membership
// checks, message persistence, fan-out to group members, and asynchronous
// agent triggering. It is a thin coordinator over the Persistence Gateway,
// Event Bus, and Agent Runner — mirroring the split the teacher draws
// between "accept and persist" (synchronous) and "process" (asynchronous)
// in pkg/api/handler_chat.go + pkg/queue/chat_executor.go, simplified here
// to this spec's C6/C7 boundary.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pairium/experimentd/pkg/apperr"
	"github.com/pairium/experimentd/pkg/eventbus"
	"github.com/pairium/experimentd/pkg/models"
	"github.com/pairium/experimentd/pkg/store"
)

// AgentTrigger is the C7 Agent Runner seam: Orchestrator depends on this
// interface rather than pkg/agentrunner directly so the two packages don't
// form an import cycle (the runner itself needs chat history, which it
// reads from pkg/store directly rather than through this package).
type AgentTrigger interface {
	TriggerAgents(ctx context.Context, groupID, sessionID string, requireHistory bool)
}

// Orchestrator implements §4.6.
type Orchestrator struct {
	store  *store.Client
	bus    *eventbus.Bus
	agents AgentTrigger
}

// New constructs an Orchestrator.
func New(st *store.Client, bus *eventbus.Bus, agents AgentTrigger) *Orchestrator {
	return &Orchestrator{store: st, bus: bus, agents: agents}
}

// VerifyMembership implements §4.6's verifyMembership: true iff sid == gid
// (the solo-AI degenerate case) or the session's user_state.chat_group_id
// equals gid.
func (o *Orchestrator) VerifyMembership(ctx context.Context, sessionID, groupID string) (bool, error) {
	if sessionID == groupID {
		return true, nil
	}
	sess, err := o.store.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, apperr.Wrap(apperr.KindInternal, "load session", err)
	}
	gid, _ := sess.UserState["chat_group_id"].(string)
	return gid == groupID, nil
}

// resolveMembers implements the group-membership resolution §4.2 describes
// for broadcastToGroup: every session whose user_state.chat_group_id ==
// groupID, plus groupID itself if not already covered (the "session ==
// group" solo-AI-chat case).
func (o *Orchestrator) resolveMembers(ctx context.Context, groupID string) ([]string, error) {
	ids, err := o.store.Sessions.ListIDsByChatGroup(ctx, groupID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "resolve group members", err)
	}
	for _, id := range ids {
		if id == groupID {
			return ids, nil
		}
	}
	return append(ids, groupID), nil
}

// SendResult is the outcome of Send.
type SendResult struct {
	Message      *models.ChatMessage
	Deduplicated bool
}

// Send implements §4.6's send: membership check, dedup-aware persistence,
// fan-out, and an asynchronous agent trigger.
func (o *Orchestrator) Send(ctx context.Context, groupID, sessionID, content string, senderType models.SenderType, idempotencyKey string) (*SendResult, error) {
	isMember, err := o.VerifyMembership(ctx, sessionID, groupID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.ErrNotAMember
	}

	if senderType == "" {
		senderType = models.SenderParticipant
	}

	msg := &models.ChatMessage{
		ID:             uuid.NewString(),
		GroupID:        groupID,
		SenderID:       sessionID,
		SenderType:     senderType,
		Content:        content,
		CreatedAt:      time.Now(),
		IdempotencyKey: idempotencyKey,
	}

	dup, err := o.store.ChatMsgs.Insert(ctx, msg)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "persist chat message", err)
	}
	if dup {
		return &SendResult{Message: msg, Deduplicated: true}, nil
	}

	members, err := o.resolveMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	o.bus.BroadcastToSessions(members, "chat_message", map[string]any{
		"groupId":    groupID,
		"messageId":  msg.ID,
		"senderId":   msg.SenderID,
		"senderType": msg.SenderType,
		"content":    msg.Content,
		"createdAt":  msg.CreatedAt,
	})

	if o.agents != nil {
		go o.agents.TriggerAgents(context.WithoutCancel(ctx), groupID, sessionID, true)
	}

	return &SendResult{Message: msg}, nil
}

// History implements §4.6's history: membership check then messages
// ordered by createdAt ascending (§8 P6).
func (o *Orchestrator) History(ctx context.Context, groupID, sessionID string) ([]models.ChatMessage, error) {
	isMember, err := o.VerifyMembership(ctx, sessionID, groupID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.ErrNotAMember
	}
	msgs, err := o.store.ChatMsgs.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list chat history", err)
	}
	return msgs, nil
}

// StartAgents implements §4.6's startAgents: triggers agents with
// requireHistory=false, the first-message-mount path that lets an agent
// speak before any participant has.
func (o *Orchestrator) StartAgents(ctx context.Context, groupID, sessionID string) error {
	isMember, err := o.VerifyMembership(ctx, sessionID, groupID)
	if err != nil {
		return err
	}
	if !isMember {
		return apperr.ErrNotAMember
	}
	if o.agents == nil {
		slog.Warn("chat: StartAgents called with no agent runner wired", "group_id", groupID)
		return nil
	}
	go o.agents.TriggerAgents(context.WithoutCancel(ctx), groupID, sessionID, false)
	return nil
}
