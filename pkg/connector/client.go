package connector

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/repoflow/repoflow/pkg/remote"
)

// newClient builds a retrying HTTP client for the endpoint. Resumed
// (ranged) requests need their own client with compression disabled: a
// byte offset into a compressed response body is meaningless.
func newClient(endpoint remote.Endpoint, cfg SessionConfig, useCompression bool) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = leveledLogger{log: cfg.Logger}
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Backoff = retryablehttp.LinearJitterBackoff
	client.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		if resp.StatusCode >= http.StatusMultipleChoices {
			cfg.Logger.Warn("Unexpected http response",
				slog.String("url", resp.Request.URL.String()), slog.String("status", resp.Status))
		}
	}

	transport := &http.Transport{
		Proxy: proxyFunc(endpoint),
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		DisableCompression:  !useCompression,
		ForceAttemptHTTP2:   true,
	}

	// Redirects are followed by default; the request timeout covers the
	// whole exchange including the body.
	client.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}
	return client
}

// leveledLogger adapts slog to the retry client's LeveledLogger.
type leveledLogger struct {
	log *slog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func proxyFunc(endpoint remote.Endpoint) func(*http.Request) (*url.URL, error) {
	p := endpoint.Proxy
	if p == nil {
		return http.ProxyFromEnvironment
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
	}
	if endpoint.Secure() {
		proxyURL.Scheme = "https"
	}
	if p.Auth != nil {
		proxyURL.User = url.UserPassword(p.Auth.Username, p.Auth.Password)
	}
	return http.ProxyURL(proxyURL)
}

// prepare applies the per-request headers every exchange carries.
func prepare(req *retryablehttp.Request, endpoint remote.Endpoint, cfg SessionConfig) {
	req.Header.Set("User-Agent", cfg.UserAgent)
	req.Header.Set("Accept", "*/*")
	if a := endpoint.Auth; a != nil && a.Username != "" {
		req.SetBasicAuth(a.Username, a.Password)
	}
}
