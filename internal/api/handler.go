package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signal-core/internal/engine"
	"signal-core/internal/events"
	"signal-core/internal/monitor"
	"signal-core/pkg/db"
	"signal-core/pkg/logger"
)

// Server wires read-only dashboard endpoints and the manual close override
// around the engine service.
type Server struct {
	Router  *gin.Engine
	Bus     *events.Bus
	DB      *db.Database
	Engine  engine.Service
	Metrics *monitor.SystemMetrics
	Log     *zap.Logger
}

// Options tunes the middleware stack.
type Options struct {
	RateLimit float64 // requests per second per IP
	Burst     int
	Timeout   time.Duration
}

func NewServer(bus *events.Bus, database *db.Database, svc engine.Service, metrics *monitor.SystemMetrics, log *zap.Logger, opts Options) *Server {
	log = logger.OrNop(log)
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 50
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                                       // Panic recovery (first)
	r.Use(RequestIDMiddleware())                                // Request ID tracking
	r.Use(RequestLogger(log))                                   // Request logging (after ID is set)
	r.Use(RateLimitMiddleware(opts.RateLimit, opts.Burst, log)) // Rate limiting
	r.Use(TimeoutMiddleware(opts.Timeout, log))                 // Request timeout
	r.Use(CORSMiddleware())                                     // CORS (last before routes)

	s := &Server{
		Router:  r,
		Bus:     bus,
		DB:      database,
		Engine:  svc,
		Metrics: metrics,
		Log:     log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.streamEvents)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)

		// Ledger views
		api.GET("/snapshot", s.getSnapshot)
		api.GET("/positions", s.getPositions)
		api.GET("/trades", s.getTrades)
		api.GET("/portfolio", s.getPortfolio)

		// Signals
		api.GET("/signals/:symbol", s.getSignal)
		api.GET("/signals/:symbol/history", s.getSignalHistory)
		api.GET("/scan", s.scan)

		// Manual override
		api.POST("/positions/:symbol/close", s.closePosition)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Handler exposes the router for an http.Server managed by the caller.
func (s *Server) Handler() http.Handler {
	return s.Router
}
