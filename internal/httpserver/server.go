// Package httpserver exposes the cached export over a small
// authenticated HTTP API.
package httpserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	"github.com/Abdullah0297445/clickup-exporter/internal/cache"
	"github.com/Abdullah0297445/clickup-exporter/internal/logging"
)

// ExportReader is the narrow cache contract required by the API.
type ExportReader interface {
	Latest(ctx context.Context, teamID string) (string, error)
	Get(ctx context.Context, teamID, version string) (*cache.Envelope, error)
}

// Config holds server construction parameters.
type Config struct {
	Addr      string
	TeamID    string
	AuthToken string
	Logger    *slog.Logger
}

// Server serves the export API.
type Server struct {
	addr      string
	teamID    string
	authToken string
	store     ExportReader
	logger    *slog.Logger

	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates the API server over an export reader.
func NewServer(store ExportReader, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0:8000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      cfg.Addr,
		teamID:    cfg.TeamID,
		authToken: cfg.AuthToken,
		store:     store,
		logger:    logging.Component(cfg.Logger, "http_api"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// handler builds the routed handler wrapped with gzip compression.
func (s *Server) handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.handleHealth)
	r.GET("/api/v1/export/", s.handleExport)

	return gzhttp.GzipHandler(r)
}

// Start begins serving HTTP requests. Responses are gzip-compressed
// for clients that accept it.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http_request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000.0))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if version, err := s.store.Latest(c.Request.Context(), s.teamID); err == nil && version != "" {
		body["latest_export"] = version
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleExport(c *gin.Context) {
	if s.authToken == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Server not configured"})
		return
	}

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Missing bearer token"})
		return
	}
	if token != s.authToken {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token"})
		return
	}

	if s.teamID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "team_id missing"})
		return
	}

	ctx := c.Request.Context()
	version, err := s.store.Latest(ctx, s.teamID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "cache unavailable"})
		return
	}
	if version == "" {
		c.JSON(http.StatusAccepted, gin.H{"status": "not_ready", "detail": "No cached export available"})
		return
	}

	env, err := s.store.Get(ctx, s.teamID, version)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "cache unavailable"})
		return
	}
	if env == nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "not_ready", "detail": "No cached export available"})
		return
	}

	if env.Status == cache.StatusSuccess && len(env.Data) > 0 {
		c.Data(http.StatusOK, "application/json; charset=utf-8", env.Data)
		return
	}
	c.JSON(http.StatusOK, env)
}

// bearerToken extracts the client token from the Authorization header
// or, failing that, from the token/api_token/authorization query
// parameters. The last whitespace-separated part wins, so both bare
// tokens and "Bearer <token>" values work.
func bearerToken(c *gin.Context) string {
	sources := []string{c.GetHeader("Authorization")}
	for _, key := range []string{"token", "api_token", "authorization"} {
		sources = append(sources, c.Query(key))
	}
	for _, src := range sources {
		parts := strings.Fields(src)
		if len(parts) == 0 {
			continue
		}
		if len(parts) >= 2 {
			return parts[1]
		}
		return parts[0]
	}
	return ""
}
