/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

// Package httpclient provides the http.Client the gateway talks to the portal backend with.
// The client is a chain of round trippers configured with Config. From the outermost one:
// request ID propagation, API key, user agent, client side rate limiting, metrics and logging.
package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bigschom/ss-portal/log"
)

// CloneHTTPRequest returns a shallow copy of the request with a deep copy of its headers.
// Round trippers use it to modify headers without touching the caller's request.
func CloneHTTPRequest(req *http.Request) *http.Request {
	clone := *req
	clone.Header = req.Header.Clone()
	if clone.Header == nil {
		clone.Header = make(http.Header)
	}
	return &clone
}

// Opts configures the round trippers that are not described by Config.
type Opts struct {
	UserAgent string

	// RequestType is the default request type in logs and metrics.
	RequestType string

	// Delegate sends the requests, a clone of http.DefaultTransport is used if nil.
	Delegate http.RoundTripper

	// LoggerProvider returns the logger of the request context.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Logger is used when the request context has no logger.
	Logger log.FieldLogger

	// RequestIDProvider returns the request ID forwarded in X-Request-ID.
	RequestIDProvider func(ctx context.Context) string

	// APIKeyProvider provides the key for the "apikey" and "Authorization" headers. No headers are set when nil.
	APIKeyProvider APIKeyProvider

	// Collector collects metrics, no metrics are collected when nil.
	Collector MetricsCollector
}

type roundTripperLayer struct {
	enabled bool
	wrap    func(delegate http.RoundTripper) (http.RoundTripper, error)
}

// New creates a client with default options.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// Must is like New but panics on error.
func Must(cfg *Config) *http.Client {
	return MustWithOpts(cfg, Opts{})
}

// NewWithOpts creates a client.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) { //nolint:gocritic // hugeParam
	transport := opts.Delegate
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	// Innermost first.
	layers := []roundTripperLayer{
		{cfg.Log.Enabled, func(d http.RoundTripper) (http.RoundTripper, error) {
			logOpts := cfg.Log.TransportOpts()
			logOpts.LoggerProvider, logOpts.Logger, logOpts.RequestType = opts.LoggerProvider, opts.Logger, opts.RequestType
			return NewLoggingRoundTripperWithOpts(d, logOpts), nil
		}},
		{cfg.Metrics.Enabled && opts.Collector != nil, func(d http.RoundTripper) (http.RoundTripper, error) {
			return NewMetricsRoundTripperWithOpts(d, MetricsRoundTripperOpts{
				RequestType: opts.RequestType,
				Collector:   opts.Collector,
			}), nil
		}},
		{cfg.RateLimits.Enabled, func(d http.RoundTripper) (http.RoundTripper, error) {
			rt, err := NewRateLimitingRoundTripperWithOpts(d, cfg.RateLimits.Limit, cfg.RateLimits.TransportOpts())
			if err != nil {
				return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
			}
			return rt, nil
		}},
		{opts.UserAgent != "", func(d http.RoundTripper) (http.RoundTripper, error) {
			return NewUserAgentRoundTripper(d, opts.UserAgent), nil
		}},
		{opts.APIKeyProvider != nil, func(d http.RoundTripper) (http.RoundTripper, error) {
			return NewAPIKeyRoundTripper(d, opts.APIKeyProvider), nil
		}},
		{true, func(d http.RoundTripper) (http.RoundTripper, error) {
			return NewRequestIDRoundTripperWithOpts(d, RequestIDRoundTripperOpts{RequestIDProvider: opts.RequestIDProvider}), nil
		}},
	}
	for _, layer := range layers {
		if !layer.enabled {
			continue
		}
		var err error
		if transport, err = layer.wrap(transport); err != nil {
			return nil, err
		}
	}
	return &http.Client{Transport: transport, Timeout: cfg.Timeout.Duration()}, nil
}

// MustWithOpts is like NewWithOpts but panics on error.
func MustWithOpts(cfg *Config, opts Opts) *http.Client { //nolint:gocritic // hugeParam
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}
