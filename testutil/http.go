/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const contentTypeAppJSON = "application/json"

type errorRespData struct {
	Domain  string `json:"domain"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wrappedErrorRespData struct {
	Error errorRespData `json:"error"`
}

// RequireErrorInRecorder asserts that the recorded response has the status and the {"error": {...}} body
// with the domain and the code.
func RequireErrorInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.Code, resp.Header(), resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

// RequireErrorInResponse is RequireErrorInRecorder for a real http.Response.
func RequireErrorInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, wantErrDomain, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.StatusCode, resp.Header, resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

func requireErrorInResponse(
	t require.TestingT, code int, header http.Header, body io.Reader, wantHTTPCode int, wantErrDomain, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, code)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	var errResp wrappedErrorRespData
	require.NoError(t, json.NewDecoder(body).Decode(&errResp))
	require.Equal(t, wantErrDomain, errResp.Error.Domain)
	require.Equal(t, wantErrCode, errResp.Error.Code)
}

// RequireEmptyBodyInRecorder asserts that the recorded response has no body.
func RequireEmptyBodyInRecorder(t require.TestingT, resp *httptest.ResponseRecorder) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, 0, resp.Body.Len())
}

// RequireJSONInRecorder asserts that the recorded response contains want in JSON format.
// The body is decoded into dest, which must be a pointer of the same type as want.
func RequireJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, resp.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), dest))
	require.Equal(t, want, dest)
}

// RequireStringJSONInRecorder asserts that the recorded response body is exactly the JSON string.
func RequireStringJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, resp.Header().Get("Content-Type"))
	require.Equal(t, want, resp.Body.String())
}

// CountingHandler wraps an http.Handler and counts served requests per URL path.
// It is used as a fake backend to check how many requests reach it.
type CountingHandler struct {
	Handler http.Handler

	mu     sync.Mutex
	byPath map[string]*atomic.Int32
	total  atomic.Int32
}

// NewCountingHandler creates a new CountingHandler.
func NewCountingHandler(handler http.Handler) *CountingHandler {
	return &CountingHandler{Handler: handler, byPath: make(map[string]*atomic.Int32)}
}

// ServeHTTP implements http.Handler.
func (h *CountingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	h.total.Inc()
	h.counter(r.URL.Path).Inc()
	h.Handler.ServeHTTP(rw, r)
}

// Total returns the number of served requests.
func (h *CountingHandler) Total() int {
	return int(h.total.Load())
}

// Count returns the number of served requests with the URL path.
func (h *CountingHandler) Count(path string) int {
	return int(h.counter(path).Load())
}

func (h *CountingHandler) counter(path string) *atomic.Int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.byPath[path]
	if !ok {
		c = atomic.NewInt32(0)
		h.byPath[path] = c
	}
	return c
}
