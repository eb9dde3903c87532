// Package api provides the HTTP surface of the experiment orchestration
// core (§4.9).
package api

import (
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pairium/experimentd/pkg/chat"
	"github.com/pairium/experimentd/pkg/eventbus"
	"github.com/pairium/experimentd/pkg/matchmaking"
	"github.com/pairium/experimentd/pkg/runtime"
)

// Server is the HTTP API server, built on gin rather than the teacher's
// echo v5 (§9 AMBIENT STACK: echo v5 is absent from the retrieved
// dependency pack, so gin-gonic/gin is adopted as the concrete HTTP
// stack instead, matched with gin-contrib/sse and gin-contrib/cors).
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	runtime    *runtime.Runtime
	chat       *chat.Orchestrator
	matchmaker *matchmaking.Scheduler
	bus        *eventbus.Bus
}

// NewServer wires middleware and routes and returns a ready Server.
func NewServer(rt *runtime.Runtime, orch *chat.Orchestrator, mm *matchmaking.Scheduler, bus *eventbus.Bus, corsOrigins []string) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsConfig(corsOrigins))
	engine.Use(securityHeaders())
	engine.Use(bodyLimit())

	s := &Server{
		engine:     engine,
		runtime:    rt,
		chat:       orch,
		matchmaker: mm,
		bus:        bus,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)

	s.engine.POST("/sessions/start", s.startHandler)
	s.engine.GET("/sessions/:id", s.getSessionHandler)
	s.engine.POST("/sessions/:id/advance", s.advanceHandler)
	s.engine.POST("/sessions/:id/state", s.updateStateHandler)
	s.engine.POST("/sessions/:id/events", s.submitEventHandler)
	s.engine.POST("/sessions/:id/matchmake", s.matchmakeHandler)
	s.engine.POST("/sessions/:id/matchmake/cancel", s.matchmakeCancelHandler)
	s.engine.POST("/sessions/:id/randomize", s.randomizeHandler)
	s.engine.GET("/sessions/:id/stream", s.streamHandler)

	s.engine.POST("/chat/:groupId/send", s.chatSendHandler)
	s.engine.GET("/chat/:groupId/history", s.chatHistoryHandler)
	s.engine.POST("/chat/:groupId/start-agents", s.chatStartAgentsHandler)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener,
// such as one bound to a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
