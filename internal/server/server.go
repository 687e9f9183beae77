package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/droiddeck/backend/internal/api/http"
	"github.com/droiddeck/backend/internal/api/middleware"
	"github.com/droiddeck/backend/internal/events"
	"github.com/droiddeck/backend/internal/infrastructure/config"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/infrastructure/monitoring"
	"github.com/droiddeck/backend/internal/infrastructure/tracing"
	"github.com/droiddeck/backend/internal/ws"
)

// Server wraps the HTTP server and its router.
type Server struct {
	router *gin.Engine
	http   *http.Server
	log    *logging.Logger
}

// New builds the transport stack over the integration facade.
func New(cfg *config.Config, orch apihttp.Orchestrator, bus *events.Bus, metrics *monitoring.Metrics, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}
	log = log.Named("server")

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.CORS))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}
	if metrics != nil {
		router.Use(monitoring.Middleware(metrics))
	}
	tracer := tracing.New("droiddeck-backend", log)
	router.Use(tracing.HTTPMiddleware(tracer))

	handlers := apihttp.NewHandlers(orch, metrics, log)
	wsHandler := ws.NewHandler(bus, metrics, log)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/status", handlers.Status)
	router.GET("/diagnostics", handlers.Diagnostics)

	router.POST("/subsystem/start", handlers.StartSubsystem)
	router.POST("/subsystem/stop", handlers.StopSubsystem)
	router.POST("/subsystem/connect", handlers.Connect)

	router.GET("/packages", handlers.ListPackages)
	router.POST("/install", handlers.Install)
	router.POST("/validate", handlers.Validate)
	router.POST("/metadata", handlers.Metadata)
	router.GET("/discovery", handlers.Discover)
	router.POST("/packages/:name/launch", handlers.LaunchPackage)
	router.POST("/packages/:name/stop", handlers.StopPackage)
	router.POST("/packages/:name/clear", handlers.ClearPackageData)
	router.DELETE("/packages/:name", handlers.UninstallPackage)
	router.GET("/installs/history", handlers.History)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stream", wsHandler.HandleConnection)

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run serves HTTP until Shutdown is called or the listener fails.
func (s *Server) Run() error {
	s.log.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
