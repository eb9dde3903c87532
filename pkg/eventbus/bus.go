// Package eventbus implements the in-process, per-session Server-Sent
// Events fan-out described in §4.2. It intentionally does not carry over
// the teacher's Postgres NOTIFY/LISTEN bridge (pkg/events.NotifyListener):
// this core makes no attempt at cross-process coordination (see
// SPEC_FULL.md Open Questions), so a subscriber set held in memory is
// the whole mechanism.
package eventbus

import (
	"sync"
)

// queueSize bounds each subscriber's buffered channel. Once a slow
// consumer falls this many events behind, further events for it are
// dropped rather than stalling the broadcaster; the subscriber itself
// stays registered.
const queueSize = 64

// Message is one (event name, payload) pair as popped by a subscriber.
type Message struct {
	Event string
	Data  any
}

// Subscriber is a single open SSE stream. Its queue is written to by
// Bus.broadcast* calls and drained by the HTTP handler's pop loop.
type Subscriber struct {
	id     uint64
	queue  chan Message
	mu     sync.Mutex
	closed bool
}

// push enqueues a message for delivery. A full queue means the client
// has stopped reading; the message is dropped (push returns false)
// rather than blocking the broadcaster, which would otherwise
// head-of-line block every other subscriber of the session.
func (s *Subscriber) push(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- msg:
		return true
	default:
		return false
	}
}

// Pop blocks until a message is available or the subscriber is closed,
// in which case it returns (Message{}, false).
func (s *Subscriber) Pop() (Message, bool) {
	msg, ok := <-s.queue
	return msg, ok
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}

// Bus holds, per session id, the set of subscribers currently streaming
// that session's events. Membership of every session is guarded by one
// bus-wide RWMutex: Subscribe and Unsubscribe take the write lock, and
// broadcasts hold the read lock only while snapshotting a session's
// subscribers, pushing after it is released.
type Bus struct {
	mu     sync.RWMutex
	byID   map[string]map[uint64]*Subscriber
	nextID uint64
	idMu   sync.Mutex
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{byID: make(map[string]map[uint64]*Subscriber)}
}

// Subscribe registers a new Subscriber for sessionID and returns it. The
// caller must eventually call Unsubscribe to release it, typically via
// defer in the stream handler.
func (b *Bus) Subscribe(sessionID string) *Subscriber {
	b.idMu.Lock()
	b.nextID++
	id := b.nextID
	b.idMu.Unlock()

	sub := &Subscriber{id: id, queue: make(chan Message, queueSize)}

	b.mu.Lock()
	set, ok := b.byID[sessionID]
	if !ok {
		set = make(map[uint64]*Subscriber)
		b.byID[sessionID] = set
	}
	set[id] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes sub from sessionID's subscriber set and closes its
// queue, waking any blocked Pop with (Message{}, false).
func (b *Bus) Unsubscribe(sessionID string, sub *Subscriber) {
	b.mu.Lock()
	if set, ok := b.byID[sessionID]; ok {
		delete(set, sub.id)
		if len(set) == 0 {
			delete(b.byID, sessionID)
		}
	}
	b.mu.Unlock()
	sub.close()
}

// BroadcastToSession enqueues (event, data) to every current subscriber
// of sessionID. A session with no subscribers is not an error — it is
// the common case for a session whose owner has no tab open.
func (b *Bus) BroadcastToSession(sessionID, event string, data any) {
	b.mu.RLock()
	set := b.byID[sessionID]
	subs := make([]*Subscriber, 0, len(set))
	for _, s := range set {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.push(Message{Event: event, Data: data})
	}
}

// BroadcastToSessions enqueues (event, data) to every subscriber of each
// session in ids. Used by callers that have already resolved a group's
// member session ids (§4.2's broadcastToGroup semantics live one layer
// up, in pkg/chat and pkg/agentrunner, since resolving group membership
// requires a store lookup this package does not have).
func (b *Bus) BroadcastToSessions(ids []string, event string, data any) {
	for _, id := range ids {
		b.BroadcastToSession(id, event, data)
	}
}

// SubscriberCount reports the number of open streams for a session.
// Used by §4.2's "zero subscribers -> nobody to stream to" shortcut in
// the agent runner.
func (b *Bus) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID[sessionID])
}
