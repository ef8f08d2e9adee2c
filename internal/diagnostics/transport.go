// Package diagnostics records what the service does for the in-app
// diagnostics panel: outbound HTTP calls and recent log entries.
package diagnostics

import (
	"log/slog"
	"net/http"
	"time"
)

type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(started)

	attrs := []any{
		"method", req.Method,
		"url", req.URL.Redacted(),
		"duration_ms", elapsed.Milliseconds(),
	}
	if err != nil {
		t.logger.Warn("outbound request failed", append(attrs, "err", err)...)
		return nil, err
	}
	attrs = append(attrs, "status", resp.StatusCode)
	if resp.StatusCode >= http.StatusBadRequest {
		t.logger.Warn("outbound request", attrs...)
	} else {
		t.logger.Debug("outbound request", attrs...)
	}
	return resp, nil
}

// Install wraps client's transport with request logging and returns client.
// Installing twice on the same client is a no-op. A nil client gets a fresh
// one with a 15s timeout.
func Install(client *http.Client, logger *slog.Logger) *http.Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, ok := client.Transport.(*loggingTransport); ok {
		return client
	}
	next := client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	client.Transport = &loggingTransport{next: next, logger: logger.With("component", "http")}
	return client
}
