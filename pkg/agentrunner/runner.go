// Package agentrunner implements the Agent Runner (C7, §4.7): single-flight
// per group dispatch of a chat page's configured agents, bounded-duration
// streaming runs against C8, and the built-in tool dispatch that mutates
// session state and broadcasts the result. Directly generalizes the
// teacher's ChatMessageExecutor.activeExecs single-active-execution-per-chat
// map (pkg/queue/chat_executor.go) from "one active execution per chat" to
// "one active run per group", and borrows its context.WithTimeout-bound
// guardrail shape from orchestrator.SubAgentRunner.Dispatch. The dedup
// itself is golang.org/x/sync/singleflight.Group rather than a hand-rolled
// map+mutex: a concurrent trigger for a groupID already in flight joins the
// existing call instead of starting a second one, which is exactly §4.7's
// "a new trigger while one is active is a no-op" (§8 P7).
package agentrunner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pairium/experimentd/pkg/eventbus"
	"github.com/pairium/experimentd/pkg/llmstream"
	"github.com/pairium/experimentd/pkg/models"
	"github.com/pairium/experimentd/pkg/store"
)

// AgentTimeout is the wall-clock bound on a single agent run (§4.7, §5).
const AgentTimeout = 60 * time.Second

// AgentDef is one configured chat agent: the model to call, its system
// prompt, the tools it may invoke, and an optional reasoning-effort hint
// passed through to providers that support it.
type AgentDef struct {
	ID              string
	Model           string
	System          string
	Tools           []llmstream.ToolSchema
	ReasoningEffort string
}

// AgentLookup resolves an agent id (as named in a chat component's
// "agents" prop) to its definition. Implemented by pkg/config's agent
// registry.
type AgentLookup interface {
	Agent(id string) (AgentDef, bool)
}

// Streamer is the C8 seam: satisfied by *llmstream.Registry.
type Streamer interface {
	Stream(ctx context.Context, req llmstream.Request) (<-chan llmstream.Delta, error)
}

// Runner implements §4.7.
type Runner struct {
	store  *store.Client
	bus    *eventbus.Bus
	llm    Streamer
	agents AgentLookup

	inflight singleflight.Group // keyed by groupId, invariant §8 P7
}

// New constructs a Runner.
func New(st *store.Client, bus *eventbus.Bus, llm Streamer, agents AgentLookup) *Runner {
	return &Runner{
		store:  st,
		bus:    bus,
		llm:    llm,
		agents: agents,
	}
}

// TriggerAgents implements §4.7's triggerAgents: resolves the page's chat
// component, then runs every named agent in sequence. Errors are logged
// and swallowed — timers and triggers never propagate failure (§7).
func (r *Runner) TriggerAgents(ctx context.Context, groupID, sessionID string, requireHistory bool) {
	sess, err := r.store.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		slog.Error("agentrunner: failed to load triggering session", "session_id", sessionID, "error", err)
		return
	}
	cfg, err := r.store.Configs.GetByID(ctx, sess.ConfigID)
	if err != nil {
		slog.Error("agentrunner: failed to load config", "config_id", sess.ConfigID, "error", err)
		return
	}
	page, ok := cfg.Page(sess.CurrentPageID)
	if !ok {
		return
	}
	chatComponent, ok := page.ChatComponent()
	if !ok {
		return
	}

	for _, agentID := range chatComponent.Agents() {
		def, ok := r.agents.Agent(agentID)
		if !ok {
			slog.Warn("agentrunner: unknown agent id referenced by chat component", "agent_id", agentID)
			continue
		}
		r.runAgent(ctx, def, groupID, sessionID, requireHistory)
	}
}

// runAgent implements §4.7's runAgent, including single-flight
// reservation, the AGENT_TIMEOUT bound, history loading, streaming, final
// persistence, and tool dispatch.
func (r *Runner) runAgent(parentCtx context.Context, def AgentDef, groupID, sessionID string, requireHistory bool) {
	// Do merges a concurrent trigger for the same group into the in-flight
	// call rather than starting a second run (§8 P7); the duplicate caller
	// just waits for the shared result instead of re-running the agent.
	r.inflight.Do(groupID, func() (any, error) {
		r.runAgentOnce(parentCtx, def, groupID, sessionID, requireHistory)
		return nil, nil
	})
}

func (r *Runner) runAgentOnce(parentCtx context.Context, def AgentDef, groupID, sessionID string, requireHistory bool) {
	runCtx, cancel := context.WithTimeout(parentCtx, AgentTimeout)
	defer cancel()

	history, err := r.store.ChatMsgs.ListByGroup(runCtx, groupID)
	if err != nil {
		slog.Error("agentrunner: failed to load chat history", "group_id", groupID, "error", err)
		return
	}
	if requireHistory && len(history) == 0 {
		return
	}
	if r.bus.SubscriberCount(sessionID) == 0 {
		return
	}

	members, err := r.resolveMembers(runCtx, groupID)
	if err != nil {
		slog.Error("agentrunner: failed to resolve group members", "group_id", groupID, "error", err)
		return
	}

	streamID := uuid.NewString()
	senderID := "agent:" + def.ID

	deltas, err := r.llm.Stream(runCtx, llmstream.Request{
		Model:           def.Model,
		System:          def.System,
		Messages:        toLLMHistory(history),
		Tools:           def.Tools,
		ReasoningEffort: def.ReasoningEffort,
	})
	if err != nil {
		slog.Error("agentrunner: failed to start llm stream", "agent_id", def.ID, "group_id", groupID, "error", err)
		r.persistApology(runCtx, groupID, senderID, members)
		return
	}

	var (
		textBuilder strings.Builder
		toolCalls   []llmstream.Delta
	)
	for d := range deltas {
		switch d.Type {
		case llmstream.DeltaText:
			textBuilder.WriteString(d.Text)
			r.bus.BroadcastToSessions(members, "chat_message_delta", map[string]any{
				"streamId":   streamID,
				"groupId":    groupID,
				"senderId":   senderID,
				"senderType": models.SenderAgent,
				"delta":      d.Text,
				"fullText":   textBuilder.String(),
			})
		case llmstream.DeltaToolCall:
			toolCalls = append(toolCalls, d)
		case llmstream.DeltaDone:
			// terminal marker; the accumulated textBuilder is authoritative.
		}
	}

	finalText := strings.TrimSpace(textBuilder.String())
	if finalText != "" {
		msg := &models.ChatMessage{
			ID:         uuid.NewString(),
			GroupID:    groupID,
			SenderID:   senderID,
			SenderType: models.SenderAgent,
			Content:    finalText,
			CreatedAt:  time.Now(),
		}
		if _, err := r.store.ChatMsgs.Insert(runCtx, msg); err != nil {
			slog.Error("agentrunner: failed to persist final agent message", "group_id", groupID, "error", err)
		} else {
			r.bus.BroadcastToSessions(members, "chat_message", map[string]any{
				"groupId":    groupID,
				"messageId":  msg.ID,
				"senderId":   msg.SenderID,
				"senderType": msg.SenderType,
				"content":    msg.Content,
				"createdAt":  msg.CreatedAt,
			})
		}
	}

	for _, call := range toolCalls {
		r.logToolCall(runCtx, sessionID, groupID, def.ID, call)
		r.dispatchTool(runCtx, groupID, members, call)
	}
}

func (r *Runner) resolveMembers(ctx context.Context, groupID string) ([]string, error) {
	ids, err := r.store.Sessions.ListIDsByChatGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if id == groupID {
			return ids, nil
		}
	}
	return append(ids, groupID), nil
}

func toLLMHistory(msgs []models.ChatMessage) []llmstream.Message {
	out := make([]llmstream.Message, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.SenderType == models.SenderAgent {
			role = "assistant"
		}
		out = append(out, llmstream.Message{Role: role, Content: m.Content})
	}
	return out
}

// persistApology persists a system apology message as the agent's reply
// rather than surfacing the failure to participants. It runs only when the
// LLM stream cannot be started; an error after streaming has begun is
// logged by the provider, the stream still ends with its done delta, and
// the run persists whatever text arrived, with no apology.
func (r *Runner) persistApology(ctx context.Context, groupID, senderID string, members []string) {
	msg := &models.ChatMessage{
		ID:         uuid.NewString(),
		GroupID:    groupID,
		SenderID:   senderID,
		SenderType: models.SenderSystem,
		Content:    "Sorry, something went wrong generating a response. Please try again.",
		CreatedAt:  time.Now(),
	}
	if _, err := r.store.ChatMsgs.Insert(ctx, msg); err != nil {
		slog.Error("agentrunner: failed to persist apology message", "group_id", groupID, "error", err)
		return
	}
	r.bus.BroadcastToSessions(members, "chat_message", map[string]any{
		"groupId":    groupID,
		"messageId":  msg.ID,
		"senderId":   msg.SenderID,
		"senderType": msg.SenderType,
		"content":    msg.Content,
		"createdAt":  msg.CreatedAt,
	})
}

// logToolCall records an agent_tool_call event with an idempotency key
// unique per call (§4.7 step 8). events.session_id is a NOT NULL foreign
// key into sessions(id), so it must carry the session that triggered this
// run, not groupID — a group id is only ever equal to a session id in the
// degenerate solo-AI-chat case (§4.2); for any multi-member group it names
// no row in sessions and the insert would violate the foreign key. The
// group is still recorded, in Data, for the audit trail. Failures here are
// auxiliary-write failures per §7: logged and swallowed, never surfaced.
func (r *Runner) logToolCall(ctx context.Context, sessionID, groupID, agentID string, call llmstream.Delta) {
	ev := &models.Event{
		ID:             uuid.NewString(),
		Type:           "agent_tool_call",
		SessionID:      sessionID,
		ConfigID:       "",
		Data:           map[string]any{"agentId": agentID, "groupId": groupID, "tool": call.ToolName, "args": call.ToolArgs},
		Timestamp:      time.Now(),
		IdempotencyKey: uuid.NewString(),
	}
	if _, _, err := r.store.Events.Insert(ctx, ev); err != nil && !errors.Is(err, store.ErrDuplicate) {
		slog.Warn("agentrunner: failed to log tool call event", "group_id", groupID, "session_id", sessionID, "tool", call.ToolName, "error", err)
	}
}

// dispatchTool implements §4.7's built-in tool dispatch: end_chat and
// assign_state mutate every non-agent group member's user_state and
// broadcast the result; unknown tool names are logged and dropped.
func (r *Runner) dispatchTool(ctx context.Context, groupID string, members []string, call llmstream.Delta) {
	switch call.ToolName {
	case "end_chat":
		fields := map[string]any{"chat_ended": true}
		for k, v := range call.ToolArgs {
			fields[k] = v
		}
		for _, sessionID := range members {
			if _, err := r.store.Sessions.PatchState(ctx, sessionID, fields); err != nil {
				slog.Error("agentrunner: end_chat state patch failed", "session_id", sessionID, "error", err)
				continue
			}
		}
		for path, value := range fields {
			r.bus.BroadcastToSessions(members, "state_updated", map[string]any{"path": path, "value": value})
		}
		r.bus.BroadcastToSessions(members, "chat_ended", map[string]any{"groupId": groupID})

	case "assign_state":
		path, _ := call.ToolArgs["path"].(string)
		value := call.ToolArgs["value"]
		if path == "" {
			slog.Warn("agentrunner: assign_state tool call missing path", "group_id", groupID)
			return
		}
		patch := map[string]any{path: value}
		for _, sessionID := range members {
			if _, err := r.store.Sessions.PatchState(ctx, sessionID, patch); err != nil {
				slog.Error("agentrunner: assign_state patch failed", "session_id", sessionID, "error", err)
				continue
			}
		}
		r.bus.BroadcastToSessions(members, "state_updated", map[string]any{"path": path, "value": value})

	default:
		slog.Warn("agentrunner: unknown tool call, dropping", "tool", call.ToolName, "group_id", groupID)
	}
}
