/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

// Package throttle provides a middleware that rate-limits HTTP requests by configurable rules.
// A rule matches requests by method and URL path glob and applies one or more rate-limiting zones to them.
// A zone limits either all matched requests together or each key (client address, header value) separately.
package throttle

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vasayxtx/go-glob"

	"github.com/bigschom/ss-portal/httpserver/middleware"
	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/restapi"
)

// ErrMessageTooManyRequests is the message of the error responded to limited requests.
const ErrMessageTooManyRequests = "Too many requests."

// MiddlewareOpts represents options for the throttling middleware.
type MiddlewareOpts struct {
	// MetricsCollector is optional, rejects are not counted when it is nil.
	MetricsCollector *MetricsCollector
}

type routeMatcher struct {
	methods map[string]struct{}
	path    func(string) bool
}

func (m routeMatcher) match(r *http.Request) bool {
	if len(m.methods) != 0 {
		if _, ok := m.methods[r.Method]; !ok {
			return false
		}
	}
	return m.path(r.URL.Path)
}

type zoneLimiter struct {
	name       string
	limiter    rateLimiter
	getKey     func(r *http.Request) (key string, bypass bool, err error)
	retryAfter time.Duration
	statusCode int
	dryRun     bool
}

type rule struct {
	name     string
	routes   []routeMatcher
	excluded []routeMatcher
	zones    []*zoneLimiter
}

func (rl *rule) match(r *http.Request) bool {
	for _, m := range rl.excluded {
		if m.match(r) {
			return false
		}
	}
	for _, m := range rl.routes {
		if m.match(r) {
			return true
		}
	}
	return false
}

type throttleHandler struct {
	next      http.Handler
	rules     []*rule
	errDomain string
	metrics   *MetricsCollector
}

// Middleware creates the throttling middleware. Rules without rate limits are skipped.
// Zones shared by several rules share their limiter state.
func Middleware(cfg *Config, errDomain string, opts MiddlewareOpts) (func(next http.Handler) http.Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate throttling config: %w", err)
	}
	zones := make(map[string]*zoneLimiter)
	rules := make([]*rule, 0, len(cfg.Rules))
	for i := range cfg.Rules {
		ruleCfg := &cfg.Rules[i]
		if len(ruleCfg.RateLimits) == 0 {
			continue
		}
		rl := &rule{
			name:     ruleCfg.Name(),
			routes:   makeRouteMatchers(ruleCfg.Routes),
			excluded: makeRouteMatchers(ruleCfg.ExcludedRoutes),
		}
		for _, ref := range ruleCfg.RateLimits {
			zoneName := strings.ToLower(ref.Zone)
			zl, ok := zones[zoneName]
			if !ok {
				zoneCfg, _ := cfg.zone(ref.Zone)
				var err error
				if zl, err = makeZoneLimiter(zoneName, zoneCfg); err != nil {
					return nil, fmt.Errorf("create rate limiter for zone %q: %w", ref.Zone, err)
				}
				zones[zoneName] = zl
			}
			rl.zones = append(rl.zones, zl)
		}
		rules = append(rules, rl)
	}

	return func(next http.Handler) http.Handler {
		if len(rules) == 0 {
			return next
		}
		return &throttleHandler{next: next, rules: rules, errDomain: errDomain, metrics: opts.MetricsCollector}
	}, nil
}

func (h *throttleHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	for _, rl := range h.rules {
		if !rl.match(r) {
			continue
		}
		if !h.allow(rw, r, rl) {
			return
		}
		break
	}
	h.next.ServeHTTP(rw, r)
}

// allow checks all zones of the rule and responds with an error if the request must not be served.
func (h *throttleHandler) allow(rw http.ResponseWriter, r *http.Request, rl *rule) bool {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	for _, zl := range rl.zones {
		key, bypass, err := zl.getKey(r)
		if err != nil {
			logger.Error("failed to get rate limiting key", log.String("rule", rl.name),
				log.String("zone", zl.name), log.Error(err))
			restapi.RespondInternalError(rw, h.errDomain, logger)
			return false
		}
		if bypass {
			continue
		}
		allowed, retryAfter, err := zl.limiter.Allow(r.Context(), key)
		if err != nil {
			logger.Error("rate limiting failed", log.String("rule", rl.name),
				log.String("zone", zl.name), log.Error(err))
			restapi.RespondInternalError(rw, h.errDomain, logger)
			return false
		}
		if allowed {
			continue
		}

		h.metrics.incRateLimitRejects(rl.name, zl.dryRun)
		fields := []log.Field{log.String("rule", rl.name), log.String("zone", zl.name), log.String("key", key)}
		if zl.dryRun {
			logger.Warn("too many requests, serving due to dry run mode", fields...)
			continue
		}
		logger.Warn("too many requests, rejecting", fields...)
		if zl.retryAfter > 0 {
			retryAfter = zl.retryAfter
		}
		rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		restapi.RespondError(rw, zl.statusCode,
			restapi.NewErrorForStatus(h.errDomain, zl.statusCode, ErrMessageTooManyRequests), logger)
		return false
	}
	return true
}

func makeRouteMatchers(routes []RouteConfig) []routeMatcher {
	matchers := make([]routeMatcher, 0, len(routes))
	for i := range routes {
		m := routeMatcher{path: glob.Compile(routes[i].Path)}
		if len(routes[i].Methods) != 0 {
			m.methods = make(map[string]struct{}, len(routes[i].Methods))
			for _, method := range routes[i].Methods {
				m.methods[strings.ToUpper(strings.TrimSpace(method))] = struct{}{}
			}
		}
		matchers = append(matchers, m)
	}
	return matchers
}

func makeZoneLimiter(name string, cfg RateLimitZoneConfig) (*zoneLimiter, error) {
	limiter, err := newRateLimiter(cfg)
	if err != nil {
		return nil, err
	}
	return &zoneLimiter{
		name:       name,
		limiter:    limiter,
		getKey:     makeGetKeyFunc(cfg.Key, cfg.ExcludedKeys),
		retryAfter: cfg.ResponseRetryAfter.Duration(),
		statusCode: cfg.responseStatusCode(),
		dryRun:     cfg.DryRun,
	}, nil
}

func makeGetKeyFunc(cfg ZoneKeyConfig, excludedKeys []string) func(r *http.Request) (string, bool, error) {
	var getKey func(r *http.Request) (string, bool, error)
	switch cfg.Type {
	case ZoneKeyTypeHTTPHeader:
		getKey = func(r *http.Request) (string, bool, error) {
			headerVal := strings.TrimSpace(r.Header.Get(cfg.HeaderName))
			return headerVal, headerVal == "" && !cfg.NoBypassEmpty, nil
		}
	case ZoneKeyTypeRemoteAddr:
		getKey = func(r *http.Request) (string, bool, error) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			return host, false, err
		}
	default:
		getKey = func(*http.Request) (string, bool, error) { return "", false, nil }
	}
	if len(excludedKeys) == 0 {
		return getKey
	}

	excluded := make([]func(string) bool, 0, len(excludedKeys))
	for _, key := range excludedKeys {
		excluded = append(excluded, glob.Compile(key))
	}
	return func(r *http.Request) (string, bool, error) {
		key, bypass, err := getKey(r)
		if err != nil || bypass {
			return key, bypass, err
		}
		for _, match := range excluded {
			if match(key) {
				return key, true, nil
			}
		}
		return key, false, nil
	}
}
