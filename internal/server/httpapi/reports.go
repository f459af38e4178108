package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ClientError is what clients post to /api/errors.
type ClientError struct {
	Message   string         `json:"message" binding:"required"`
	Stack     string         `json:"stack,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (s *Server) reportError(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxReportBody)

	var report ClientError
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.logger.Error(c.Request.Context(), "client error reported",
		"message", report.Message,
		"stack", report.Stack,
		"context", report.Context,
		"client_time", report.Timestamp,
		"remote", c.ClientIP())
	s.countReport("error")

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// reportMetric logs whatever the client sent and always answers 200.
func (s *Server) reportMetric(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxReportBody))
	if err != nil {
		s.logger.Warn(c.Request.Context(), "client metric unreadable", "error", err)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	var payload any
	if json.Unmarshal(body, &payload) == nil {
		s.logger.Info(c.Request.Context(), "client metric", "payload", payload)
	} else {
		s.logger.Info(c.Request.Context(), "client metric", "raw", string(body))
	}
	s.countReport("metric")

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) countReport(kind string) {
	if s.metrics != nil {
		s.metrics.ClientReports.WithLabelValues(kind).Inc()
	}
}
