// Package server exposes the recomputation gate over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/dyluth/larder/internal/gate"
	"github.com/dyluth/larder/internal/generator"
	"github.com/dyluth/larder/internal/quota"
	"github.com/dyluth/larder/internal/records"
	"github.com/dyluth/larder/pkg/larder"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Gatekeeper is the gate surface served over HTTP. *gate.Gate implements it.
type Gatekeeper interface {
	Request(ctx context.Context, req gate.Request) (*gate.Result, error)
	Invalidate(ctx context.Context, kind larder.Kind, subject larder.Subject) (bool, error)
	TaskEdited(ctx context.Context, userID, taskID string, edit gate.TaskEdit) (int, error)
	AllTasksCompleted(ctx context.Context, userID string) (int, error)
}

// RecordStore receives upstream record modifications. *records.Store
// implements it.
type RecordStore interface {
	Touch(ctx context.Context, r records.Record) error
	Delete(ctx context.Context, userID string, source larder.Source, recordID string, at time.Time) error
	Ping(ctx context.Context) error
}

// UsageReader reports quota usage. *quota.Ledger implements it.
type UsageReader interface {
	PeekAll(ctx context.Context, userID string) ([]quota.Usage, error)
}

// Pinger checks connectivity of the shared cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Server.
type Deps struct {
	Gate    Gatekeeper
	Records RecordStore
	Usage   UsageReader
	Cache   Pinger
}

// Server provides HTTP endpoints for larder.
type Server struct {
	echo    *echo.Echo
	gate    Gatekeeper
	records RecordStore
	usage   UsageReader
	cache   Pinger
	logger  *zap.Logger
	port    int
	now     func() time.Time
}

// NewServer creates a new HTTP server listening on port once started.
func NewServer(deps Deps, logger *zap.Logger, port int) (*Server, error) {
	switch {
	case deps.Gate == nil:
		return nil, fmt.Errorf("gate is required")
	case deps.Records == nil:
		return nil, fmt.Errorf("records store is required")
	case deps.Usage == nil:
		return nil, fmt.Errorf("usage reader is required")
	case deps.Cache == nil:
		return nil, fmt.Errorf("cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:    e,
		gate:    deps.Gate,
		records: deps.Records,
		usage:   deps.Usage,
		cache:   deps.Cache,
		logger:  logger,
		port:    port,
		now:     time.Now,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/artifacts/:kind", s.handleRequest)
	v1.DELETE("/artifacts/:kind", s.handleInvalidate)
	v1.PATCH("/tasks/:taskID", s.handleTaskEdited)
	v1.POST("/users/:userID/tasks/completed", s.handleAllTasksCompleted)
	v1.POST("/sources/:source/touch", s.handleTouch)
	v1.GET("/usage/:userID", s.handleUsage)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// ArtifactRequest is the body of POST /api/v1/artifacts/:kind.
type ArtifactRequest struct {
	Subject      larder.Subject   `json:"subject"`
	UserID       string           `json:"user_id,omitempty"`
	Inputs       generator.Inputs `json:"inputs"`
	TaskCategory string           `json:"task_category,omitempty"`
	Force        bool             `json:"force,omitempty"`
}

// SubjectRequest is the body of DELETE /api/v1/artifacts/:kind.
type SubjectRequest struct {
	Subject larder.Subject `json:"subject"`
}

// TaskEditRequest is the body of PATCH /api/v1/tasks/:taskID.
type TaskEditRequest struct {
	UserID string `json:"user_id"`
	gate.TaskEdit
}

// TouchRequest is the body of POST /api/v1/sources/:source/touch.
type TouchRequest struct {
	UserID    string    `json:"user_id"`
	RecordID  string    `json:"record_id"`
	UpdatedAt time.Time `json:"updated_at"` // defaults to now
	Deleted   bool      `json:"deleted,omitempty"`
}

// InvalidatedResponse reports how many entries an edit dropped.
type InvalidatedResponse struct {
	Invalidated int `json:"invalidated"`
}

// UsageResponse is the body of GET /api/v1/usage/:userID.
type UsageResponse struct {
	UserID string        `json:"user_id"`
	Usage  []quota.Usage `json:"usage"`
}

// QuotaExceededResponse is the 429 body.
type QuotaExceededResponse struct {
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	Limit     int       `json:"limit"`
	NextReset string    `json:"next_reset"`
	ResetAt   time.Time `json:"reset_at"`
}

func (s *Server) handleRequest(c echo.Context) error {
	var body ArtifactRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.gate.Request(c.Request().Context(), gate.Request{
		Kind:         larder.Kind(c.Param("kind")),
		Subject:      body.Subject,
		UserID:       body.UserID,
		Inputs:       body.Inputs,
		TaskCategory: body.TaskCategory,
		Force:        body.Force,
	})
	if err != nil {
		return s.gateError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleInvalidate(c echo.Context) error {
	var body SubjectRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if _, err := s.gate.Invalidate(c.Request().Context(), larder.Kind(c.Param("kind")), body.Subject); err != nil {
		return s.gateError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTaskEdited(c echo.Context) error {
	var body TaskEditRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	n, err := s.gate.TaskEdited(c.Request().Context(), body.UserID, c.Param("taskID"), body.TaskEdit)
	if err != nil {
		return s.gateError(c, err)
	}
	return c.JSON(http.StatusOK, InvalidatedResponse{Invalidated: n})
}

func (s *Server) handleAllTasksCompleted(c echo.Context) error {
	n, err := s.gate.AllTasksCompleted(c.Request().Context(), c.Param("userID"))
	if err != nil {
		return s.gateError(c, err)
	}
	return c.JSON(http.StatusOK, InvalidatedResponse{Invalidated: n})
}

func (s *Server) handleTouch(c echo.Context) error {
	var body TouchRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.UpdatedAt.IsZero() {
		body.UpdatedAt = s.now()
	}

	rec := records.Record{
		UserID:    body.UserID,
		Source:    larder.Source(c.Param("source")),
		RecordID:  body.RecordID,
		UpdatedAt: body.UpdatedAt,
	}
	if err := rec.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	var err error
	if body.Deleted {
		err = s.records.Delete(ctx, rec.UserID, rec.Source, rec.RecordID, rec.UpdatedAt)
	} else {
		err = s.records.Touch(ctx, rec)
	}
	if err != nil {
		s.logger.Error("failed to record source change", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record source change")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUsage(c echo.Context) error {
	userID := c.Param("userID")
	if err := (larder.Subject{UserID: userID}).Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	usage, err := s.usage.PeekAll(c.Request().Context(), userID)
	if err != nil {
		s.logger.Error("failed to read usage", zap.String("user_id", userID), zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "usage unavailable")
	}
	return c.JSON(http.StatusOK, UsageResponse{UserID: userID, Usage: usage})
}

// gateError maps gate errors to HTTP responses.
func (s *Server) gateError(c echo.Context, err error) error {
	var qe *gate.QuotaExceededError
	switch {
	case errors.As(err, &qe):
		retry := math.Ceil(qe.ResetAt.Sub(s.now()).Seconds())
		if retry < 1 {
			retry = 1
		}
		c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", int64(retry)))
		return c.JSON(http.StatusTooManyRequests, QuotaExceededResponse{
			Message:   err.Error(),
			Kind:      string(qe.Kind),
			Limit:     qe.Limit,
			NextReset: "Tomorrow",
			ResetAt:   qe.ResetAt,
		})
	case errors.Is(err, gate.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
