/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package throttle

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/bigschom/ss-portal/config"
	"github.com/bigschom/ss-portal/httpserver/middleware"
	"github.com/bigschom/ss-portal/log/logtest"
	"github.com/bigschom/ss-portal/restapi"
)

const testErrDomain = "PortalCache"

type throttleTestEnv struct {
	handler http.Handler
	metrics *MetricsCollector
	logs    *logtest.Recorder
	served  int
}

func newThrottleTestEnv(t *testing.T, cfg *Config) *throttleTestEnv {
	t.Helper()
	env := &throttleTestEnv{metrics: NewMetricsCollector(""), logs: logtest.NewRecorder()}
	mw, err := Middleware(cfg, testErrDomain, MiddlewareOpts{MetricsCollector: env.metrics})
	require.NoError(t, err)
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		env.served++
		rw.WriteHeader(http.StatusNoContent)
	})
	env.handler = mw(next)
	return env
}

func (env *throttleTestEnv) do(method, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	req = req.WithContext(middleware.NewContextWithLogger(req.Context(), env.logs))
	resp := httptest.NewRecorder()
	env.handler.ServeHTTP(resp, req)
	return resp
}

func (env *throttleTestEnv) rejects(rule string, dryRun bool) int {
	dryRunVal := metricsValNo
	if dryRun {
		dryRunVal = metricsValYes
	}
	return int(testutil.ToFloat64(env.metrics.RateLimitRejects.WithLabelValues(dryRunVal, rule)))
}

func requireTooManyRequests(t *testing.T, resp *httptest.ResponseRecorder, wantRetryAfter time.Duration) {
	t.Helper()
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	retryAfter, err := strconv.Atoi(resp.Header().Get("Retry-After"))
	require.NoError(t, err)
	require.LessOrEqual(t, retryAfter, int(wantRetryAfter.Seconds()))
	require.Greater(t, retryAfter, 0)

	var respData restapi.ErrorResponseData
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &respData))
	require.Equal(t, &restapi.Error{Domain: testErrDomain, Code: "tooManyRequests", Message: ErrMessageTooManyRequests},
		respData.Err)
}

func cacheAdminConfig(zone RateLimitZoneConfig) *Config {
	return &Config{
		RateLimitZones: map[string]RateLimitZoneConfig{"cache_admin": zone},
		Rules: []RuleConfig{{
			Alias:      "cache_admin",
			Routes:     []RouteConfig{{Methods: []string{http.MethodDelete}, Path: "/api/portal/v1/cache/entries"}},
			RateLimits: []RuleRateLimit{{Zone: "cache_admin"}},
		}},
	}
}

func TestMiddleware_LeakyBucket(t *testing.T) {
	env := newThrottleTestEnv(t, cacheAdminConfig(RateLimitZoneConfig{
		RateLimit:  RateLimitValue{Count: 1, Duration: time.Minute},
		BurstLimit: 1,
	}))

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/portal/v1/cache/entries", "").Code)
	}
	requireTooManyRequests(t, env.do(http.MethodDelete, "/api/portal/v1/cache/entries", ""), time.Minute)
	require.Equal(t, 2, env.served)
	require.Equal(t, 1, env.rejects("cache_admin", false))

	// Other methods and paths are not limited by the rule.
	require.Equal(t, http.StatusNoContent, env.do(http.MethodGet, "/api/portal/v1/cache/entries", "").Code)
	require.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/portal/v1/cache/entries/users", "").Code)
	require.Equal(t, 4, env.served)

	entry, found := env.logs.FindEntry("too many requests, rejecting")
	require.True(t, found)
	field, found := entry.FindField("zone")
	require.True(t, found)
	require.Equal(t, "cache_admin", string(field.Bytes))
}

func TestMiddleware_SlidingWindowPerRemoteAddr(t *testing.T) {
	cfg := &Config{
		RateLimitZones: map[string]RateLimitZoneConfig{"status_updates": {
			Alg:          RateLimitAlgSlidingWindow,
			RateLimit:    RateLimitValue{Count: 2, Duration: time.Hour},
			Key:          ZoneKeyConfig{Type: ZoneKeyTypeRemoteAddr},
			ExcludedKeys: []string{"10.0.0.*"},
		}},
		Rules: []RuleConfig{{
			Routes:     []RouteConfig{{Methods: []string{"patch"}, Path: "/api/portal/v1/service-requests/*/status"}},
			RateLimits: []RuleRateLimit{{Zone: "STATUS_UPDATES"}},
		}},
	}
	env := newThrottleTestEnv(t, cfg)
	ruleName := "patch /api/portal/v1/service-requests/*/status"

	for _, id := range []string{"1", "2"} {
		resp := env.do(http.MethodPatch, "/api/portal/v1/service-requests/"+id+"/status", "192.0.2.1:5000")
		require.Equal(t, http.StatusNoContent, resp.Code)
	}
	requireTooManyRequests(t, env.do(http.MethodPatch, "/api/portal/v1/service-requests/3/status", "192.0.2.1:5001"),
		time.Hour)

	// Every client address has its own window, excluded addresses are never limited.
	require.Equal(t, http.StatusNoContent,
		env.do(http.MethodPatch, "/api/portal/v1/service-requests/3/status", "192.0.2.2:5000").Code)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusNoContent,
			env.do(http.MethodPatch, "/api/portal/v1/service-requests/3/status", "10.0.0.7:5000").Code)
	}
	require.Equal(t, 1, env.rejects(ruleName, false))
}

func TestMiddleware_DryRun(t *testing.T) {
	env := newThrottleTestEnv(t, cacheAdminConfig(RateLimitZoneConfig{
		RateLimit: RateLimitValue{Count: 1, Duration: time.Hour},
		DryRun:    true,
	}))

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/portal/v1/cache/entries", "").Code)
	}
	require.Equal(t, 3, env.served)
	require.Equal(t, 2, env.rejects("cache_admin", true))
	_, found := env.logs.FindEntry("too many requests, serving due to dry run mode")
	require.True(t, found)
}

func TestMiddleware_ResponseOverrides(t *testing.T) {
	env := newThrottleTestEnv(t, cacheAdminConfig(RateLimitZoneConfig{
		RateLimit:          RateLimitValue{Count: 1, Duration: time.Hour},
		ResponseStatusCode: http.StatusServiceUnavailable,
		ResponseRetryAfter: config.TimeDuration(5 * time.Second),
	}))

	require.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/portal/v1/cache/entries", "").Code)
	resp := env.do(http.MethodDelete, "/api/portal/v1/cache/entries", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.Equal(t, "5", resp.Header().Get("Retry-After"))
}

func TestMiddleware_ExcludedRoutes(t *testing.T) {
	cfg := &Config{
		RateLimitZones: map[string]RateLimitZoneConfig{"api": {RateLimit: RateLimitValue{Count: 1, Duration: time.Hour}}},
		Rules: []RuleConfig{{
			Alias:          "api",
			Routes:         []RouteConfig{{Path: "/api/portal/v1/*"}},
			ExcludedRoutes: []RouteConfig{{Methods: []string{http.MethodGet}, Path: "/api/portal/v1/cache/stats"}},
			RateLimits:     []RuleRateLimit{{Zone: "api"}},
		}},
	}
	env := newThrottleTestEnv(t, cfg)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusNoContent, env.do(http.MethodGet, "/api/portal/v1/cache/stats", "").Code)
	}
	require.Equal(t, http.StatusNoContent, env.do(http.MethodGet, "/api/portal/v1/users", "").Code)
	require.Equal(t, http.StatusTooManyRequests, env.do(http.MethodGet, "/api/portal/v1/audit-logs", "").Code)
}

func TestMiddleware_Errors(t *testing.T) {
	_, err := Middleware(&Config{Rules: []RuleConfig{{
		Alias:      "r",
		Routes:     []RouteConfig{{Path: "/api"}},
		RateLimits: []RuleRateLimit{{Zone: "missing"}},
	}}}, testErrDomain, MiddlewareOpts{})
	require.EqualError(t, err, `validate throttling config: validate rule "r": rate limit zone "missing" is undefined`)

	// Invalid remote addresses cannot be keyed.
	env := newThrottleTestEnv(t, &Config{
		RateLimitZones: map[string]RateLimitZoneConfig{"z": {
			RateLimit: RateLimitValue{Count: 1, Duration: time.Second},
			Key:       ZoneKeyConfig{Type: ZoneKeyTypeRemoteAddr},
		}},
		Rules: []RuleConfig{{Routes: []RouteConfig{{Path: "/*"}}, RateLimits: []RuleRateLimit{{Zone: "z"}}}},
	})
	resp := env.do(http.MethodGet, "/api/portal/v1/users", "not-an-address")
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.Equal(t, 0, env.served)
}

func TestMiddleware_NoRules(t *testing.T) {
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	mw, err := Middleware(&Config{}, testErrDomain, MiddlewareOpts{})
	require.NoError(t, err)
	require.IsType(t, next, mw(next), "handler is not wrapped without rules")
}
