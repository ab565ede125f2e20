package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/signalctl/internal/auth"
	"github.com/danmuck/signalctl/internal/bridge"
	"github.com/danmuck/signalctl/internal/config"
	"github.com/danmuck/signalctl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Info describes the running build for /about.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Server is the HTTP front end of the terminal.
type Server struct {
	bridge  *bridge.Bridge
	router  *gin.Engine
	addr    string
	info    Info
	started time.Time
}

func New(b *bridge.Bridge, cfg config.Config, info Info) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(info.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.API.CORSOrigins),
		AllowMethods: []string{"GET", "POST", "PUT"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		bridge:  b,
		router:  r,
		addr:    strings.TrimSpace(cfg.API.Listen),
		info:    info,
		started: time.Now(),
	}
	s.registerRoutes(cfg.API)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("api.Server.Serve listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(cfg config.APIConfig) {
	s.router.GET("/health", s.health)
	s.router.GET("/ready", s.ready)
	s.router.GET("/about", s.about)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	if cfg.RateLimit > 0 {
		api.Use(RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		api.Use(auth.Middleware(auth.StaticToken{Token: token}))
	}

	api.GET("/connection", s.getConnection)
	api.PUT("/connection/open", s.connectionAction(bridge.Connect))
	api.PUT("/connection/close", s.connectionAction(bridge.Disconnect))
	api.PUT("/connection/restart", s.connectionAction(bridge.Reconnect))

	api.GET("/transactions", s.getTransactions)
	api.POST("/transactions", s.sendTransaction)
	api.GET("/transactions/reversible", s.getReversible)
	api.GET("/transactions/:id", s.getTransaction)
	api.POST("/transactions/:id/reverse", s.reverseTransaction)

	api.GET("/specification", s.getSpec)
	api.PUT("/specification", s.updateSpec)
	api.GET("/config", s.getConfig)
	api.PUT("/config", s.updateConfig)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
