// Package server exposes the ingest pipeline over HTTP so a scheduler or an
// operator can trigger runs remotely.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pfrederiksen/retreat-events/internal/ingest"
	"github.com/pfrederiksen/retreat-events/internal/logger"
	"github.com/pfrederiksen/retreat-events/internal/storage"
)

const shutdownGrace = 30 * time.Second

// Runner executes one ingest run. *ingest.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, opts ingest.Options) (*ingest.Summary, error)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Server holds the router and serializes runs.
type Server struct {
	runner   Runner
	token    string
	defaults ingest.Options
	router   *gin.Engine

	// running is held for the duration of a run; a second trigger gets 409.
	running sync.Mutex
}

// New creates a Server. defaults supplies the limits used when a request
// does not override them. token must be non-empty.
func New(runner Runner, token string, defaults ingest.Options) *Server {
	s := &Server{
		runner:   runner,
		token:    token,
		defaults: defaults,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api", s.authorize)
	api.GET("/ingest", s.handleIngest)
	api.POST("/ingest", s.handleIngest)

	s.router = router
	return s
}

// Handler returns the http.Handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) authorize(c *gin.Context) {
	got := c.Query("token")
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		got = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if s.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody{
			Error: "unauthorized",
			Hint:  "send Authorization: Bearer <token> or ?token=<token>",
			Code:  "unauthorized",
		})
		return
	}
	c.Next()
}

func (s *Server) handleIngest(c *gin.Context) {
	opts, err := s.options(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody{Error: err.Error(), Code: "invalid_parameter"})
		return
	}

	if !s.running.TryLock() {
		c.JSON(http.StatusConflict, ErrorBody{
			Error: "an ingest run is already in progress",
			Code:  "run_in_progress",
		})
		return
	}
	defer s.running.Unlock()

	sum, err := s.runner.Run(c.Request.Context(), opts)
	if err != nil {
		status, body := errorResponse(err)
		logger.Error("Ingest request failed", logger.Fields{"status": status}, err)
		if sum != nil {
			c.JSON(status, gin.H{
				"error":   body.Error,
				"hint":    body.Hint,
				"code":    body.Code,
				"summary": sum,
			})
			return
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, sum)
}

// options reads dry, source, feedLimit and detailLimit from the query.
func (s *Server) options(c *gin.Context) (ingest.Options, error) {
	opts := s.defaults

	if v := c.Query("dry"); v != "" {
		dry, err := parseBool(v)
		if err != nil {
			return opts, err
		}
		opts.Dry = dry
	}

	sources, err := ingest.ParseSources(c.Query("source"))
	if err != nil {
		return opts, err
	}
	opts.Sources = sources

	if opts.PerFeedItemLimit, err = intParam(c, "feedLimit", opts.PerFeedItemLimit); err != nil {
		return opts, err
	}
	if opts.ListingDetailPageLimit, err = intParam(c, "detailLimit", opts.ListingDetailPageLimit); err != nil {
		return opts, err
	}
	return opts, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, errors.New("dry must be a boolean")
}

func intParam(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def, errors.New(name + " must be a positive integer")
	}
	return n, nil
}

// errorResponse maps a run error to a status code and body.
func errorResponse(err error) (int, ErrorBody) {
	var apiErr *storage.APIError
	switch {
	case errors.Is(err, ingest.ErrNoStore):
		return http.StatusServiceUnavailable, ErrorBody{
			Error: err.Error(),
			Hint:  "configure storage.driver or call with dry=1",
			Code:  "no_store",
		}
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, ErrorBody{
			Error: err.Error(),
			Hint:  apiErr.Hint,
			Code:  apiErr.Code,
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorBody{Error: err.Error(), Code: "canceled"}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: err.Error(), Code: "ingest_failed"}
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("HTTP request", logger.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		})
	}
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down,
// giving in-flight requests up to shutdownGrace to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", logger.Fields{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
