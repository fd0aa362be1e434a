// Package httpapi exposes a thin read-only status surface over the
// engine: health, tracked candidates, open positions, and today's
// reconciliation stats. It never issues a trading decision itself —
// every mutating action lives in scanner/signal/entry/exit.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/logging"
	"github.com/candletrader/engine/internal/reconcile"
	"github.com/candletrader/engine/internal/store"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// StatsProvider is satisfied by *reconcile.Reconciler.
type StatsProvider interface {
	Stats() reconcile.DailyStats
}

// HealthChecker reports whether a dependency the engine relies on (the
// brokerage session, the database pool) is currently reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds the server's network settings.
type Config struct {
	Addr           string
	ProductionMode bool
	AllowedOrigins []string
}

// Server is the read-only status API.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	store      *store.Store
	stats      StatsProvider
	health     HealthChecker
	logger     *logging.Logger
	cfg        Config
}

// New builds a Server. stats and health may be nil (their endpoints
// degrade gracefully rather than failing).
func New(st *store.Store, stats StatsProvider, health HealthChecker, logger *logging.Logger, cfg Config) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if len(cfg.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
		router.Use(cors.New(corsConfig))
	}

	s := &Server{
		router: router,
		store:  st,
		stats:  stats,
		health: health,
		logger: logger,
		cfg:    cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/candidates", s.handleCandidates)
		api.GET("/candidates/:stockCode", s.handleCandidate)
		api.GET("/positions", s.handlePositions)
		api.GET("/stats", s.handleStats)
	}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = ":8089"
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logf("status API listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi: listen failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleCandidates(c *gin.Context) {
	var all []*candidate.Candidate
	if status := c.Query("status"); status != "" {
		all = s.store.GetByState(candidate.Status(status))
	} else {
		all = s.store.All()
	}
	c.JSON(http.StatusOK, gin.H{"candidates": all, "count": len(all)})
}

func (s *Server) handleCandidate(c *gin.Context) {
	stockCode := c.Param("stockCode")
	cand, found := s.store.Get(stockCode)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "candidate not found", "stock_code": stockCode})
		return
	}
	c.JSON(http.StatusOK, cand)
}

func (s *Server) handlePositions(c *gin.Context) {
	positions := s.store.GetByState(candidate.StatusEntered, candidate.StatusPendingOrder)
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (s *Server) handleStats(c *gin.Context) {
	if s.stats == nil {
		c.JSON(http.StatusOK, gin.H{"stats": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": s.stats.Stats()})
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(fmt.Sprintf(format, args...))
	}
}
