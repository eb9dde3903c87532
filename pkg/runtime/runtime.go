// Package runtime implements the Session Runtime (C5, §4.5): page-graph
// advancement with idempotent mutation and end-session blocking. Advance
// takes its target as given; the branch-condition evaluator lives in
// pkg/runtime/expr and is not called from this package. It is the direct replacement for the teacher's session
// package, generalized from a chat-turn state machine to a declarative
// page-graph walker.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pairium/experimentd/pkg/apperr"
	"github.com/pairium/experimentd/pkg/eventbus"
	"github.com/pairium/experimentd/pkg/models"
	"github.com/pairium/experimentd/pkg/store"
	"github.com/pairium/experimentd/pkg/treatment"
)

// AuthContext carries the caller identity §4.5's start resolves resumption
// against: an authenticated platform user, a Prolific participant, or
// neither (anonymous).
type AuthContext struct {
	UserID   string
	Prolific *models.ProlificInfo
}

func (a AuthContext) authenticated() bool {
	return a.UserID != "" || (a.Prolific != nil && a.Prolific.PID != "")
}

// Start status values (§6 POST /sessions/start).
const (
	StatusCreated = "created"
	StatusResumed = "resumed"
	StatusBlocked = "blocked"
)

// Snapshot is the full session view every §6 endpoint returns: current
// page (substituted with an empty stub if the target is not in the
// config's page set, per §4.5 advance) plus user_state.
type Snapshot struct {
	Status        string
	SessionID     string
	ConfigID      string
	CurrentPageID string
	Page          models.Page
	UserState     map[string]any
	EndedAt       *time.Time
	Deduplicated  bool
}

// Runtime composes the Persistence Gateway, Event Bus, and Treatment
// Assigner into the Session Runtime operations of §4.5.
type Runtime struct {
	store     *store.Client
	bus       *eventbus.Bus
	treatment *treatment.Counters
}

// New constructs a Runtime.
func New(st *store.Client, bus *eventbus.Bus, cnt *treatment.Counters) *Runtime {
	return &Runtime{store: st, bus: bus, treatment: cnt}
}

func pageOrStub(cfg *models.Config, pageID string) models.Page {
	if p, ok := cfg.Page(pageID); ok {
		return p
	}
	return models.Page{ID: pageID, Components: []models.Component{}}
}

func snapshotOf(sess *models.Session, page models.Page) *Snapshot {
	return &Snapshot{
		SessionID:     sess.ID,
		ConfigID:      sess.ConfigID,
		CurrentPageID: sess.CurrentPageID,
		Page:          page,
		UserState:     sess.UserState,
		EndedAt:       sess.EndedAt,
	}
}

// Start implements §4.5's start: resumption search, blocked-resumption
// rejection, or creation of a fresh session at the config's initial page.
func (r *Runtime) Start(ctx context.Context, configID string, auth AuthContext) (*Snapshot, error) {
	cfg, err := r.store.Configs.GetByID(ctx, configID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrConfigNotFound
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load config", err)
	}

	if cfg.RequireAuth && !auth.authenticated() {
		return nil, apperr.New(apperr.KindAuthRequired, "authentication required")
	}

	prior, err := r.findResumable(ctx, configID, auth)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		if prior.Ended() {
			snap := snapshotOf(prior, pageOrStub(cfg, prior.CurrentPageID))
			snap.Status = StatusBlocked
			return snap, nil
		}
		snap := snapshotOf(prior, pageOrStub(cfg, prior.CurrentPageID))
		snap.Status = StatusResumed
		return snap, nil
	}

	sess := &models.Session{
		ID:            uuid.NewString(),
		ConfigID:      configID,
		CurrentPageID: cfg.Graph.InitialPageID,
		UserState:     map[string]any{},
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if auth.UserID != "" {
		sess.UserID = &auth.UserID
	}
	sess.Prolific = auth.Prolific

	if err := r.store.Sessions.Insert(ctx, sess); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "create session", err)
	}

	snap := snapshotOf(sess, pageOrStub(cfg, sess.CurrentPageID))
	snap.Status = StatusCreated
	return snap, nil
}

func (r *Runtime) findResumable(ctx context.Context, configID string, auth AuthContext) (*models.Session, error) {
	if auth.UserID != "" {
		sess, err := r.store.Sessions.FindLatestByUser(ctx, auth.UserID, configID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindInternal, "resume lookup by user", err)
		}
		return nil, nil
	}
	if auth.Prolific != nil && auth.Prolific.PID != "" {
		sess, err := r.store.Sessions.FindLatestByProlific(ctx, auth.Prolific.PID, configID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindInternal, "resume lookup by prolific", err)
		}
	}
	return nil, nil
}

// Get implements §4.5's get.
func (r *Runtime) Get(ctx context.Context, sessionID string) (*Snapshot, error) {
	sess, err := r.store.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrSessionNotFound
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load session", err)
	}
	cfg, err := r.store.Configs.GetByID(ctx, sess.ConfigID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load config", err)
	}
	return snapshotOf(sess, pageOrStub(cfg, sess.CurrentPageID)), nil
}

// Advance implements §4.5's advance: idempotent page-graph mutation that
// does not validate the target against the config's page set (§4.5, §9
// Open Questions — this spec freezes the permissive behavior).
func (r *Runtime) Advance(ctx context.Context, sessionID, target, idempotencyKey string) (*Snapshot, error) {
	reserved, err := r.store.Idempotency.Reserve(ctx, idempotencyKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "reserve idempotency key", err)
	}
	if !reserved {
		snap, err := r.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		snap.Deduplicated = true
		return snap, nil
	}

	sess, err := r.store.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrSessionNotFound
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load session", err)
	}
	if sess.Ended() {
		return nil, apperr.New(apperr.KindSessionBlocked, "session_ended")
	}

	cfg, err := r.store.Configs.GetByID(ctx, sess.ConfigID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load config", err)
	}
	targetPage, known := cfg.Page(target)
	isEnd := known && targetPage.End

	updated, err := r.store.Sessions.UpdateCurrentPage(ctx, sessionID, target, isEnd)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "advance session", err)
	}

	r.bus.BroadcastToSession(sessionID, "page_change", map[string]any{
		"sessionId":     sessionID,
		"currentPageId": target,
		"endedAt":       updated.EndedAt,
	})

	return snapshotOf(updated, pageOrStub(cfg, updated.CurrentPageID)), nil
}

// validatePath enforces §4.5 updateState's reserved-character rules: no
// "$", no leading or trailing ".".
func validatePath(path string) error {
	if path == "" {
		return apperr.New(apperr.KindInvalidInput, "state path must not be empty")
	}
	if strings.Contains(path, "$") {
		return apperr.New(apperr.KindInvalidInput, fmt.Sprintf("state path %q must not contain \"$\"", path))
	}
	if strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") {
		return apperr.New(apperr.KindInvalidInput, fmt.Sprintf("state path %q must not start or end with \".\"", path))
	}
	return nil
}

// setNested writes value at the dotted path within root, creating
// intermediate maps as needed. It copies every map it touches rather than
// mutating root in place, and performs no recursive merging beyond what
// the path itself names (§4.5: "No recursive merging").
func setNested(root map[string]any, parts []string, value any) map[string]any {
	cp := make(map[string]any, len(root)+1)
	for k, v := range root {
		cp[k] = v
	}
	if len(parts) == 1 {
		cp[parts[0]] = value
		return cp
	}
	var child map[string]any
	if existing, ok := cp[parts[0]].(map[string]any); ok {
		child = existing
	} else {
		child = map[string]any{}
	}
	cp[parts[0]] = setNested(child, parts[1:], value)
	return cp
}

// UpdateState implements §4.5's updateState: one dotted-path set per
// update entry, batched into a single top-level patch per affected root
// key so the store only needs one round trip.
func (r *Runtime) UpdateState(ctx context.Context, sessionID string, updates map[string]any, idempotencyKey string) error {
	reserved, err := r.store.Idempotency.Reserve(ctx, idempotencyKey)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "reserve idempotency key", err)
	}
	if !reserved {
		return nil
	}

	sess, err := r.store.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrSessionNotFound
		}
		return apperr.Wrap(apperr.KindInternal, "load session", err)
	}

	patch := map[string]any{}
	state := sess.UserState
	for path, value := range updates {
		if err := validatePath(path); err != nil {
			return err
		}
		parts := strings.Split(path, ".")
		state = setNested(state, parts, value)
		patch[parts[0]] = state[parts[0]]
	}

	if _, err := r.store.Sessions.PatchState(ctx, sessionID, patch); err != nil {
		return apperr.Wrap(apperr.KindInternal, "patch user_state", err)
	}

	for path, value := range updates {
		r.bus.BroadcastToSession(sessionID, "user_state_change", map[string]any{
			"sessionId": sessionID,
			"path":      path,
			"value":     value,
		})
	}
	return nil
}

// SubmitEvent implements §4.5's submitEvent.
func (r *Runtime) SubmitEvent(ctx context.Context, ev *models.Event) (eventID string, deduplicated bool, err error) {
	if _, getErr := r.store.Sessions.GetByID(ctx, ev.SessionID); getErr != nil {
		if errors.Is(getErr, store.ErrNotFound) {
			return "", false, apperr.ErrSessionNotFound
		}
		return "", false, apperr.Wrap(apperr.KindInternal, "load session", getErr)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	id, dup, err := r.store.Events.Insert(ctx, ev)
	if err != nil {
		return "", false, apperr.Wrap(apperr.KindInternal, "insert event", err)
	}
	return id, dup, nil
}

// RandomizeResult is the response to §6's POST /sessions/:id/randomize.
type RandomizeResult struct {
	Condition string
	Existing  bool
}

// Randomize implements §4.3's treatment assignment as exposed through the
// session runtime, idempotent per (session, stateKey) by consulting
// user_state directly rather than the idempotency_keys collection (§6).
func (r *Runtime) Randomize(ctx context.Context, sessionID, assignmentType string, conditions []string, stateKey string) (*RandomizeResult, error) {
	if stateKey == "" {
		stateKey = "treatment"
	}

	sess, err := r.store.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrSessionNotFound
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load session", err)
	}

	if existing, ok := sess.UserState[stateKey]; ok {
		if s, ok := existing.(string); ok {
			return &RandomizeResult{Condition: s, Existing: true}, nil
		}
	}

	balanceKey := sess.ConfigID + ":" + stateKey
	condition, err := r.treatment.Assign(assignmentType, balanceKey, conditions)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "assign treatment", err)
	}

	patch := map[string]any{stateKey: condition}
	if _, err := r.store.Sessions.PatchState(ctx, sessionID, patch); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "patch user_state", err)
	}
	r.bus.BroadcastToSession(sessionID, "user_state_change", map[string]any{
		"sessionId": sessionID,
		"path":      stateKey,
		"value":     condition,
	})

	return &RandomizeResult{Condition: condition, Existing: false}, nil
}
