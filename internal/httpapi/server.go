// Package httpapi is the minimal entry-point contract of spec.md §6: a thin
// gin/JSON boundary in front of the database facade, just enough surface
// for a client (or test harness) to drive the transactional core.
package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/basalt-db/basalt/pkg/database"
)

// Server wraps the database facade with the HTTP routes that admit it to
// the outside world.
type Server struct {
	db     *database.Database
	logger *zap.Logger
	engine *gin.Engine
}

// Config controls the ambient HTTP concerns that sit around routing:
// whether to enable permissive dev CORS, and the logger to use.
type Config struct {
	DevCORS bool
	Logger  *zap.Logger
}

// New builds the gin engine with the teacher's middleware ordering:
// recovery outermost, then CORS (dev only), then request logging, then
// request-id tagging, then routes.
func New(db *database.Database, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger, _ = zap.NewDevelopment()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if cfg.DevCORS {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "X-Request-ID")
		engine.Use(cors.New(corsCfg))
	}
	engine.Use(ZapLogger(cfg.Logger))
	engine.Use(RequestID())

	s := &Server{db: db, logger: cfg.Logger, engine: engine}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() *gin.Engine {
	return s.engine
}
