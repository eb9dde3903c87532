package api

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pairium/experimentd/pkg/eventbus"
)

// heartbeatInterval is the 30s cadence a connected stream emits a
// heartbeat at while open (§4.2, §5).
const heartbeatInterval = 30 * time.Second

// streamHandler handles GET /sessions/:id/stream, the Event Bus's sole
// HTTP-facing surface. SSE framing is rendered by gin's built-in
// SSEvent, backed by gin-contrib/sse (§9 AMBIENT STACK).
func (s *Server) streamHandler(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := s.runtime.Get(c.Request.Context(), sessionID); err != nil {
		writeError(c, err)
		return
	}

	sub := s.bus.Subscribe(sessionID)
	defer func() {
		s.bus.Unsubscribe(sessionID, sub)
		s.matchmaker.HandleDisconnect(sessionID)
	}()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ctx := c.Request.Context()

	msgCh := make(chan eventbus.Message)
	closedCh := make(chan struct{})
	go func() {
		for {
			msg, ok := sub.Pop()
			if !ok {
				close(closedCh)
				return
			}
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	c.SSEvent("connected", gin.H{"sessionId": sessionID})
	c.Writer.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-closedCh:
			return false
		case <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"ts": time.Now().Unix()})
			return true
		case msg := <-msgCh:
			c.SSEvent(msg.Event, msg.Data)
			return true
		}
	})
}
