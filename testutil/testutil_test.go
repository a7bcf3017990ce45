/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type MockT struct {
	Failed bool
	Format string
	Args   []interface{}
}

func (t *MockT) FailNow() {
	t.Failed = true
}

func (t *MockT) Errorf(format string, args ...interface{}) {
	t.Format, t.Args = format, args
}

func TestRequireErrorInRecorder(t *testing.T) {
	newResp := func(code int, body string) *httptest.ResponseRecorder {
		resp := httptest.NewRecorder()
		resp.Header().Set("Content-Type", contentTypeAppJSON)
		resp.WriteHeader(code)
		_, _ = resp.WriteString(body)
		return resp
	}
	const body = `{"error":{"domain":"PortalCache","code":"notFound","message":"Not found."}}`

	mockT := &MockT{}
	RequireErrorInRecorder(mockT, newResp(http.StatusNotFound, body), http.StatusNotFound, "PortalCache", "notFound")
	require.False(t, mockT.Failed)

	mockT = &MockT{}
	RequireErrorInRecorder(mockT, newResp(http.StatusNotFound, body), http.StatusBadGateway, "PortalCache", "notFound")
	require.True(t, mockT.Failed)

	mockT = &MockT{}
	RequireErrorInRecorder(mockT, newResp(http.StatusNotFound, body), http.StatusNotFound, "PortalCache", "badGateway")
	require.True(t, mockT.Failed)
}

func TestRequireJSONInRecorder(t *testing.T) {
	type stats struct {
		Entries int `json:"entries"`
	}
	resp := httptest.NewRecorder()
	resp.Header().Set("Content-Type", contentTypeAppJSON)
	_, _ = resp.WriteString(`{"entries":3}`)

	mockT := &MockT{}
	RequireJSONInRecorder(mockT, resp, &stats{Entries: 3}, &stats{})
	require.False(t, mockT.Failed)

	mockT = &MockT{}
	RequireStringJSONInRecorder(mockT, resp, `{"entries":3}`)
	require.False(t, mockT.Failed)
}

func TestCountingHandler(t *testing.T) {
	h := NewCountingHandler(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusNoContent)
	}))
	srv := httptest.NewServer(h)
	defer srv.Close()

	for _, path := range []string{"/rest/v1/users", "/rest/v1/users", "/rest/v1/audit_logs"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
	require.Equal(t, 3, h.Total())
	require.Equal(t, 2, h.Count("/rest/v1/users"))
	require.Equal(t, 1, h.Count("/rest/v1/audit_logs"))
	require.Equal(t, 0, h.Count("/rest/v1/service_requests"))
}

func TestRequireNoErrorInChannel(t *testing.T) {
	ch := make(chan error, 1)

	mockT := &MockT{}
	RequireNoErrorInChannel(mockT, ch)
	require.False(t, mockT.Failed)

	ch <- errors.New("listen tcp: address already in use")
	RequireNoErrorInChannel(mockT, ch)
	require.True(t, mockT.Failed)
}

func TestRequireSamplesCountInHistogram(t *testing.T) {
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "backend_request_duration_seconds"}, []string{"method"})
	hist.WithLabelValues("GET").Observe(0.2)
	hist.WithLabelValues("GET").Observe(0.4)

	mockT := &MockT{}
	RequireSamplesCountInHistogram(mockT, hist, 2)
	require.False(t, mockT.Failed)

	mockT = &MockT{}
	RequireSamplesCountInHistogram(mockT, hist, 1)
	require.True(t, mockT.Failed)
}

func TestWaitListeningServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	require.NoError(t, WaitListeningServer(srv.Listener.Addr().String(), time.Second))
	require.Error(t, WaitListeningServer(GetLocalAddrWithFreeTCPPort(), 50*time.Millisecond))
}
