// Package statusserver exposes the read-only operator surface spec §5
// names: a JSON status snapshot and a liveness probe. Grounded on the
// teacher's internal/api/server.go gin.New/cors.New/http.Server
// wiring and its Start/Shutdown/handleHealth shape, trimmed from that
// package's large multi-tenant dashboard route table down to the two
// routes this spec needs.
package statusserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nirre55/futures-trading-bot/internal/logging"
	"github.com/nirre55/futures-trading-bot/internal/signal"
	"github.com/nirre55/futures-trading-bot/internal/strategy"
)

// StatusProvider is the subset of the runtime's state the status
// surface reports. Satisfied structurally by *runtime.Runtime without
// either package importing the other.
type StatusProvider interface {
	Strategy() strategy.Strategy
	Engine() *signal.Engine
}

// Config is the subset of STATUS_CONFIG the server needs.
type Config struct {
	Host string
	Port int
}

// Server is the status/health HTTP surface.
type Server struct {
	cfg        Config
	symbol     string
	provider   StatusProvider
	router     *gin.Engine
	httpServer *http.Server
	log        *logging.Logger
}

// New constructs a Server. Routes are registered immediately; Run
// starts listening.
func New(cfg Config, symbol string, provider StatusProvider) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		cfg:      cfg,
		symbol:   symbol,
		provider: provider,
		router:   router,
		log:      logging.WithComponent("statusserver"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/status", s.handleStatus)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"symbol":         s.symbol,
		"signal_state":   s.provider.Engine().CurrentState(),
		"strategy":       s.provider.Strategy().Snapshot(),
		"has_outstanding_tp": s.provider.Strategy().HasOutstandingTP(),
	})
}

// Run starts the HTTP server and blocks until ctx is canceled, then
// shuts it down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status server listening on %s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
