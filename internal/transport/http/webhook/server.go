// Package webhookhttp serves the signal webhook and the operator endpoints.
package webhookhttp

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bracketbot/internal/engine"
	"bracketbot/internal/logger"
	"bracketbot/internal/store/journal"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	maxBodyBytes     = 64 << 10
	defaultListLimit = 50
	maxListLimit     = 500
)

// SignalEngine is the part of the engine the intake drives.
type SignalEngine interface {
	HandleSignal(ctx context.Context, sig engine.Signal) engine.SignalResult
	State() engine.PositionState
	SafetyClose(ctx context.Context, symbol string) (bool, error)
}

// TradeLister reads back the journal for /api/trades.
type TradeLister interface {
	List(ctx context.Context, limit int) ([]journal.Entry, error)
}

type ServerConfig struct {
	Addr     string
	Engine   SignalEngine
	Journal  TradeLister
	Defaults Defaults
	// Secret, when set, must match the payload's secret field.
	Secret         string
	MetricsPath    string
	MetricsHandler http.Handler
	Now            func() time.Time
}

type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("webhook server requires an engine")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":5000"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger())

	h := &handlers{cfg: cfg}
	router.POST("/webhook", h.webhook)
	router.GET("/ping", h.ping)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := router.Group("/api")
	api.GET("/state", h.state)
	api.GET("/trades", h.trades)
	api.POST("/safety/close", h.safetyClose)
	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(cfg.MetricsHandler))
	}
	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http: listening on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		client := c.ClientIP()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s id=%s dur=%s",
			method, path, c.Writer.Status(), client, c.GetString("request_id"), time.Since(start))
	}
}

type handlers struct {
	cfg ServerConfig
}

func (h *handlers) webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "could not read body"})
		return
	}
	// unauthenticated callers learn nothing about the payload rules.
	if !secretMatches(h.cfg.Secret, gjson.GetBytes(body, "secret").String()) {
		logger.Warnf("webhook: bad secret ip=%s", c.ClientIP())
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "invalid secret"})
		return
	}
	payload, err := DecodeSignal(body, h.cfg.Defaults)
	if err != nil {
		logger.Warnf("webhook: rejected payload ip=%s: %v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	res := h.cfg.Engine.HandleSignal(c.Request.Context(), payload.Signal)
	c.JSON(statusCode(res.Status), res)
}

func secretMatches(want, got string) bool {
	if want == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func statusCode(s engine.SignalStatus) int {
	switch s {
	case engine.StatusPlaced, engine.StatusClosed, engine.StatusIgnored:
		return http.StatusOK
	case engine.StatusRejected:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (h *handlers) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"message":   "bracketbot is running",
		"timestamp": h.cfg.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.cfg.Engine.State())
}

func (h *handlers) trades(c *gin.Context) {
	if h.cfg.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	entries, err := h.cfg.Journal.List(c.Request.Context(), limit)
	if err != nil {
		logger.Errorf("[api] journal list failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type safetyCloseRequest struct {
	Symbol string `json:"symbol"`
	Secret string `json:"secret"`
}

func (h *handlers) safetyClose(c *gin.Context) {
	var req safetyCloseRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	if !secretMatches(h.cfg.Secret, req.Secret) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid secret"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		symbol = h.cfg.Defaults.Symbol
	}
	closed, err := h.cfg.Engine.SafetyClose(c.Request.Context(), symbol)
	if err != nil {
		logger.Errorf("[api] safety close %s failed: %v", symbol, err)
		c.JSON(http.StatusBadGateway, gin.H{"symbol": symbol, "closed": closed, "error": "safety close failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "closed": closed})
}
