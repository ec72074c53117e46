package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status  string `json:"status"`
	Redis   string `json:"redis,omitempty"`
	Records string `json:"records,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleHealth handles GET /healthz.
// Returns 200 OK if Redis and the records database are reachable, 503
// Service Unavailable otherwise.
func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:  "healthy",
		Redis:   "connected",
		Records: "connected",
	}

	if err := s.cache.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Redis = "disconnected"
		response.Error = err.Error()
	}
	if err := s.records.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Records = "disconnected"
		if response.Error == "" {
			response.Error = err.Error()
		}
	}

	if response.Status != "healthy" {
		return c.JSON(http.StatusServiceUnavailable, response)
	}
	return c.JSON(http.StatusOK, response)
}
