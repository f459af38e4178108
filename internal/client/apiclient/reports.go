package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ErrorReport is posted to /api/errors.
type ErrorReport struct {
	Message   string         `json:"message"`
	Stack     string         `json:"stack,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// MetricReport is posted to /api/metrics.
type MetricReport struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ReportError sends a client-side failure to the backend.
func (c *Client) ReportError(ctx context.Context, err error, details map[string]any) error {
	if err == nil {
		return nil
	}
	return c.post(ctx, "/api/errors", ErrorReport{
		Message:   err.Error(),
		Stack:     fmt.Sprintf("%+v", err),
		Context:   details,
		Timestamp: time.Now().UTC(),
	})
}

func (c *Client) ReportMetric(ctx context.Context, name string, value float64, tags map[string]string) error {
	return c.post(ctx, "/api/metrics", MetricReport{
		Name:      name,
		Value:     value,
		Tags:      tags,
		Timestamp: time.Now().UTC(),
	})
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	resp, err := c.Fetch(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
