package connector

import (
	"log/slog"
	"time"

	"github.com/repoflow/repoflow/pkg/transfer"
)

const (
	defaultUserAgent      = "repoflow/1.0"
	defaultConnectTimeout = 10 * time.Second
	defaultRequestTimeout = 30 * time.Minute
	defaultConcurrency    = 8
)

// SessionConfig carries the per-session knobs the connector honors.
// Zero values are replaced with defaults at construction time.
type SessionConfig struct {
	// UserAgent is sent on every request.
	UserAgent string
	// ConnectTimeout bounds TCP/TLS connection establishment.
	ConnectTimeout time.Duration
	// RequestTimeout bounds one request including the body transfer.
	RequestTimeout time.Duration
	// DisableResumable turns off partial-file scanning and Range
	// requests; every GET starts from byte zero.
	DisableResumable bool
	// UseCache permits intermediary caching; when false every GET
	// carries "Pragma: no-cache".
	UseCache bool
	// Concurrency caps the number of transfers in flight across all
	// batches of one connector.
	Concurrency int64
	// Listener observes transfer lifecycle events. Optional.
	Listener transfer.Listener
	Logger   *slog.Logger
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
