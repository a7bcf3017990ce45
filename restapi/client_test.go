/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package restapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/log/logtest"
)

func TestNewJSONRequest(t *testing.T) {
	_, err := NewJSONRequest(context.Background(), http.MethodPatch, "/", nil)
	require.EqualError(t, err, "data cannot be nil")

	_, err = NewJSONRequest(context.Background(), http.MethodDelete, "/", map[string]string{"status": "completed"})
	require.EqualError(t, err, "method DELETE is not allowed for json request")

	req, err := NewJSONRequest(context.Background(), http.MethodPatch, "/rest/v1/service_requests?id=eq.42",
		map[string]string{"status": "completed"})
	require.NoError(t, err)
	require.Equal(t, ContentTypeAppJSON, req.Header.Get("Content-Type"))
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"completed"}`, string(body))
}

func TestDoRequestAndUnmarshalJSON(t *testing.T) {
	type user struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}

	tests := []struct {
		name           string
		respStatus     int
		respCType      string
		respBody       string
		wantUsers      []user
		wantClientErr  *ClientError
		wantErrContain string
	}{
		{
			name:       "ok",
			respStatus: http.StatusOK,
			respCType:  ContentTypeAppJSON,
			respBody:   `[{"id":"1","username":"alice"}]`,
			wantUsers:  []user{{ID: "1", Username: "alice"}},
		},
		{
			name:          "wrapped error body",
			respStatus:    http.StatusNotFound,
			respCType:     ContentTypeAppJSON,
			respBody:      `{"error":{"domain":"Portal","code":"notFound","message":"User not found."}}`,
			wantClientErr: &ClientError{StatusCode: http.StatusNotFound, Code: "notFound", Message: "User not found."},
		},
		{
			name:       "postgrest error body",
			respStatus: http.StatusBadRequest,
			respCType:  "application/json; charset=utf-8",
			respBody:   `{"code":"22P02","message":"invalid input syntax for type uuid","details":"value \"x\""}`,
			wantClientErr: &ClientError{StatusCode: http.StatusBadRequest, Code: "22P02",
				Message: `invalid input syntax for type uuid (value "x")`},
		},
		{
			name:          "plain text error body",
			respStatus:    http.StatusServiceUnavailable,
			respCType:     "text/plain",
			respBody:      "upstream connect error\n",
			wantClientErr: &ClientError{StatusCode: http.StatusServiceUnavailable, Message: "upstream connect error"},
		},
		{
			name:          "empty error body",
			respStatus:    http.StatusBadGateway,
			wantClientErr: &ClientError{StatusCode: http.StatusBadGateway},
		},
		{
			name:           "malformed success body",
			respStatus:     http.StatusOK,
			respCType:      ContentTypeAppJSON,
			respBody:       `[{"id":`,
			wantErrContain: "unmarshal response of GET",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				if tt.respCType != "" {
					rw.Header().Set("Content-Type", tt.respCType)
				}
				rw.WriteHeader(tt.respStatus)
				_, _ = rw.Write([]byte(tt.respBody))
			}))
			defer srv.Close()

			req, err := http.NewRequest(http.MethodGet, srv.URL+"/rest/v1/users", nil)
			require.NoError(t, err)
			var users []user
			err = DoRequestAndUnmarshalJSON(srv.Client(), req, &users, logtest.NewLogger())

			switch {
			case tt.wantClientErr != nil:
				var clientErr *ClientError
				require.True(t, errors.As(err, &clientErr))
				require.Equal(t, http.MethodGet, clientErr.Method)
				require.Equal(t, "/rest/v1/users", clientErr.URL.Path)
				require.Equal(t, tt.wantClientErr.StatusCode, clientErr.StatusCode)
				require.Equal(t, tt.wantClientErr.Code, clientErr.Code)
				require.Equal(t, tt.wantClientErr.Message, clientErr.Message)
			case tt.wantErrContain != "":
				require.ErrorContains(t, err, tt.wantErrContain)
				var clientErr *ClientError
				require.False(t, errors.As(err, &clientErr), "a malformed success body is not a remote error")
			default:
				require.NoError(t, err)
				require.Equal(t, tt.wantUsers, users)
			}
		})
	}
}

func TestDoRequest_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/rest/v1/users", nil)
	require.NoError(t, err)
	logger := logtest.NewRecorder()
	err = DoRequestAndUnmarshalJSON(http.DefaultClient, req, nil, logger)
	require.ErrorContains(t, err, "do request: ")
	var clientErr *ClientError
	require.False(t, errors.As(err, &clientErr))
	errEntry, found := logger.FindEntryByFilter(func(entry logtest.RecordedEntry) bool {
		return entry.Level == log.LevelError
	})
	require.True(t, found)
	require.Contains(t, errEntry.Text, "failed to do http request GET")
}

func TestClientError(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://portal.example.com/rest/v1/users/7", nil)
	require.NoError(t, err)

	clientErr := &ClientError{Method: req.Method, URL: req.URL, StatusCode: http.StatusNotFound, Code: "notFound", Message: "User not found."}
	require.EqualError(t, clientErr, "GET https://portal.example.com/rest/v1/users/7: status 404 (notFound): User not found.")
	require.Equal(t, "User not found.", clientErr.RemoteErrorMessage())
	require.False(t, clientErr.Retryable())

	clientErr = &ClientError{Method: req.Method, URL: req.URL, StatusCode: http.StatusServiceUnavailable}
	require.EqualError(t, clientErr, "GET https://portal.example.com/rest/v1/users/7: status 503")
	require.Equal(t, "Service Unavailable", clientErr.RemoteErrorMessage())
	require.True(t, clientErr.Retryable())

	require.True(t, IsRetryableStatus(http.StatusTooManyRequests))
	require.False(t, IsRetryableStatus(http.StatusConflict))
}
