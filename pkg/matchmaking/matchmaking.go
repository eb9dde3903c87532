// Package matchmaking implements the FIFO pool scheduler of §4.4: sessions
// enqueue into a pool keyed by (configId, poolId) and are spliced into a
// Group once the pool reaches its target size, or time out individually.
package matchmaking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pairium/experimentd/pkg/eventbus"
	"github.com/pairium/experimentd/pkg/models"
	"github.com/pairium/experimentd/pkg/store"
	"github.com/pairium/experimentd/pkg/treatment"
)

// AssignmentSpec carries the optional treatment-strategy override a
// caller may pass in a matchmake request's `assignment` field.
type AssignmentSpec struct {
	Strategy   string
	Candidates []string
}

// PoolConfig is the per-call configuration supplied to Enqueue.
type PoolConfig struct {
	NumUsers       int
	TimeoutSeconds int
	TimeoutTarget  string
	Assignment     *AssignmentSpec
}

// Status values returned by Enqueue and Remove.
const (
	StatusWaiting   = "waiting"
	StatusMatched   = "matched"
	StatusCancelled = "cancelled"
	StatusNotFound  = "not_found"
)

// Result is the outcome of Enqueue: either a waiting position or a
// formed group's id and treatment.
type Result struct {
	Status    string
	Position  int
	GroupID   string
	Treatment string
}

type waitingEntry struct {
	sessionID string
	configID  string
	poolID    string
	cfg       PoolConfig
	timer     *time.Timer
}

type pool struct {
	mu      sync.Mutex
	entries []*waitingEntry
}

// Scheduler holds all pool state. A Scheduler is process-local; it does
// not survive restarts (§4.4, §9).
type Scheduler struct {
	poolsMu sync.RWMutex
	pools   map[string]*pool

	revMu   sync.Mutex
	session map[string]string // sessionID -> poolKey, invariant (a): at most one entry per session

	store     *store.Client
	bus       *eventbus.Bus
	treatment *treatment.Counters
}

// New constructs a Scheduler wired to the Persistence Gateway, Event Bus,
// and Treatment Assigner it calls into on group formation and timeout.
func New(st *store.Client, bus *eventbus.Bus, cnt *treatment.Counters) *Scheduler {
	return &Scheduler{
		pools:     make(map[string]*pool),
		session:   make(map[string]string),
		store:     st,
		bus:       bus,
		treatment: cnt,
	}
}

func poolKey(configID, poolID string) string {
	return configID + ":" + poolID
}

func (s *Scheduler) poolFor(key string) *pool {
	s.poolsMu.Lock()
	defer s.poolsMu.Unlock()
	p, ok := s.pools[key]
	if !ok {
		p = &pool{}
		s.pools[key] = p
	}
	return p
}

// deletePoolIfEmpty drops a pool's map entry once its entries list is
// empty, bounding memory per invariant (d). Caller must not hold p.mu.
func (s *Scheduler) deletePoolIfEmpty(key string, p *pool) {
	p.mu.Lock()
	empty := len(p.entries) == 0
	p.mu.Unlock()
	if !empty {
		return
	}
	s.poolsMu.Lock()
	if cur, ok := s.pools[key]; ok && cur == p {
		cur.mu.Lock()
		stillEmpty := len(cur.entries) == 0
		cur.mu.Unlock()
		if stillEmpty {
			delete(s.pools, key)
		}
	}
	s.poolsMu.Unlock()
}

// Enqueue implements §4.4's enqueue. If the session is already waiting in
// this pool, it returns its existing position rather than double-enqueuing.
func (s *Scheduler) Enqueue(ctx context.Context, sessionID, configID, poolID string, cfg PoolConfig) (*Result, error) {
	key := poolKey(configID, poolID)
	p := s.poolFor(key)

	p.mu.Lock()
	for i, e := range p.entries {
		if e.sessionID == sessionID {
			position := i + 1
			p.mu.Unlock()
			return &Result{Status: StatusWaiting, Position: position}, nil
		}
	}

	entry := &waitingEntry{sessionID: sessionID, configID: configID, poolID: poolID, cfg: cfg}
	entry.timer = time.AfterFunc(time.Duration(cfg.TimeoutSeconds)*time.Second, func() {
		s.onTimeout(key, entry)
	})
	p.entries = append(p.entries, entry)

	s.revMu.Lock()
	s.session[sessionID] = key
	s.revMu.Unlock()

	if len(p.entries) >= cfg.NumUsers {
		members := p.entries[:cfg.NumUsers]
		p.entries = p.entries[cfg.NumUsers:]
		for _, m := range members {
			m.timer.Stop()
			s.revMu.Lock()
			delete(s.session, m.sessionID)
			s.revMu.Unlock()
		}
		p.mu.Unlock()
		s.deletePoolIfEmpty(key, p)

		groupID, cond, err := s.formGroup(ctx, configID, poolID, members)
		if err != nil {
			return nil, err
		}
		return &Result{Status: StatusMatched, GroupID: groupID, Treatment: cond}, nil
	}

	position := len(p.entries)
	p.mu.Unlock()
	return &Result{Status: StatusWaiting, Position: position}, nil
}

// formGroup persists a Group, patches each member's user_state, and
// broadcasts match_found to every member — §4.4's formGroup.
func (s *Scheduler) formGroup(ctx context.Context, configID, poolID string, members []*waitingEntry) (groupID, condition string, err error) {
	groupID = uuid.NewString()
	memberIDs := make([]string, len(members))
	for i, m := range members {
		memberIDs[i] = m.sessionID
	}

	strategy := treatment.Random
	var candidates []string
	if len(members) > 0 && members[0].cfg.Assignment != nil {
		strategy = members[0].cfg.Assignment.Strategy
		candidates = members[0].cfg.Assignment.Candidates
	}
	condition, err = s.treatment.Assign(strategy, poolKey(configID, poolID), candidates)
	if err != nil {
		return "", "", err
	}

	group := &models.Group{
		ID:               groupID,
		ConfigID:         configID,
		PoolID:           poolID,
		MemberSessionIDs: memberIDs,
		Treatment:        condition,
		MatchedAt:        time.Now(),
		Status:           "active",
	}
	if err := s.store.Groups.Insert(ctx, group); err != nil {
		return "", "", err
	}

	for _, sessionID := range memberIDs {
		patch := map[string]any{
			"group_id":      groupID,
			"chat_group_id": groupID,
			"treatment":     condition,
		}
		if _, err := s.store.Sessions.PatchState(ctx, sessionID, patch); err != nil {
			slog.Error("matchmaking: failed to patch member user_state after group formation",
				"session_id", sessionID, "group_id", groupID, "error", err)
			continue
		}
	}

	memberCount := len(memberIDs)
	s.bus.BroadcastToSessions(memberIDs, "match_found", map[string]any{
		"groupId":     groupID,
		"treatment":   condition,
		"memberCount": memberCount,
	})

	return groupID, condition, nil
}

// onTimeout fires when a waiting entry's one-shot timer expires. It
// removes the entry (if still present — a race with formGroup may have
// already spliced it out) and notifies the session via match_timeout.
func (s *Scheduler) onTimeout(key string, entry *waitingEntry) {
	s.poolsMu.RLock()
	p, ok := s.pools[key]
	s.poolsMu.RUnlock()
	if !ok {
		return
	}

	p.mu.Lock()
	found := false
	for i, e := range p.entries {
		if e == entry {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			found = true
			break
		}
	}
	p.mu.Unlock()
	if !found {
		return
	}
	s.deletePoolIfEmpty(key, p)

	s.revMu.Lock()
	delete(s.session, entry.sessionID)
	s.revMu.Unlock()

	s.bus.BroadcastToSession(entry.sessionID, "match_timeout", map[string]any{
		"poolId":        entry.poolID,
		"timeoutTarget": entry.cfg.TimeoutTarget,
	})
}

// Remove implements §4.4's removeSession / handleDisconnect: cancels the
// entry's timer and drops it from its pool and the reverse map.
func (s *Scheduler) Remove(sessionID string) string {
	s.revMu.Lock()
	key, ok := s.session[sessionID]
	if ok {
		delete(s.session, sessionID)
	}
	s.revMu.Unlock()
	if !ok {
		return StatusNotFound
	}

	s.poolsMu.RLock()
	p, ok := s.pools[key]
	s.poolsMu.RUnlock()
	if !ok {
		return StatusNotFound
	}

	p.mu.Lock()
	removed := false
	for i, e := range p.entries {
		if e.sessionID == sessionID {
			e.timer.Stop()
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			removed = true
			break
		}
	}
	p.mu.Unlock()
	if !removed {
		return StatusNotFound
	}
	s.deletePoolIfEmpty(key, p)
	return StatusCancelled
}

// HandleDisconnect is called by the Event Bus's stream handler when a
// client's SSE connection closes (§4.2's cancellation contract).
func (s *Scheduler) HandleDisconnect(sessionID string) {
	s.Remove(sessionID)
}
