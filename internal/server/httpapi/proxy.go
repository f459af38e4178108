package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/agrolink/agrolink/internal/logging"
	"github.com/sony/gobreaker"
)

const proxyPrefix = "/api/proxy"

// breakerSettings trips after five consecutive upstream failures and probes
// again after thirty seconds.
func breakerSettings(l logging.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "proxy-upstream",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn(context.Background(), "circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
}

// newUpstreamProxy forwards /api/proxy/<path> to <upstream>/<path>.
func newUpstreamProxy(upstream string, l logging.Logger) (http.Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid proxy upstream %q", upstream)
	}

	cb := gobreaker.NewCircuitBreaker(breakerSettings(l))

	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.Out.URL.Path = strings.TrimPrefix(r.In.URL.Path, proxyPrefix)
			r.Out.URL.RawPath = ""
			r.SetURL(target)
			r.SetXForwarded()
		},
		Transport: &breakerTransport{next: http.DefaultTransport, cb: cb},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
				return
			}
			l.Error(r.Context(), "proxy error", "path", r.URL.Path, "error", err)
			http.Error(w, "upstream error", http.StatusBadGateway)
		},
	}, nil
}

type breakerTransport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

// RoundTrip counts transport errors and 5xx answers as breaker failures.
func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.cb.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*http.Response), nil
}
