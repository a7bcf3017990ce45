/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/bigschom/ss-portal/log"
)

const (
	logKeyMethod = "method"
	logKeyURI    = "uri"
	logKeyStatus = "status"
)

// MaxErrorBodySize limits the number of bytes of an error response body that are read and kept.
const MaxErrorBodySize = 4096

// DoRequest does the HTTP request and logs its details.
func DoRequest(client *http.Client, req *http.Request, logger log.FieldLogger) (*http.Response, error) {
	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("sent request", log.String(logKeyMethod, req.Method), log.String(logKeyURI, req.URL.String()))
	})

	resp, err := client.Do(req)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to do http request %s %s", req.Method, req.URL.String()),
			log.String(logKeyMethod, req.Method),
			log.String(logKeyURI, req.URL.String()),
			log.Error(err),
		)
		return nil, fmt.Errorf("do request: %w", err)
	}

	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("got response",
			log.String(logKeyMethod, req.Method),
			log.String(logKeyURI, req.URL.String()),
			log.Int(logKeyStatus, resp.StatusCode),
		)
	})
	return resp, nil
}

// DoRequestAndUnmarshalJSON does the HTTP request and decodes a successful JSON response into result
// (result may be nil if the body is not needed).
// A response with a non-2xx status is returned as *ClientError.
func DoRequestAndUnmarshalJSON(client *http.Client, req *http.Request, result interface{}, logger log.FieldLogger) error {
	resp, err := DoRequest(client, req, logger)
	if err != nil {
		return err // already logged
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("failed to close response body",
				log.String(logKeyMethod, req.Method), log.String(logKeyURI, req.URL.String()), log.Error(closeErr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		clientErr := newClientErrorFromResponse(req, resp)
		logger.Warn("error response",
			log.String(logKeyMethod, req.Method),
			log.String(logKeyURI, req.URL.String()),
			log.Int(logKeyStatus, resp.StatusCode),
			log.String("error_message", clientErr.Message),
		)
		return clientErr
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(result); err != nil {
		logger.Error("failed to unmarshal response",
			log.String(logKeyMethod, req.Method), log.String(logKeyURI, req.URL.String()), log.Error(err))
		return fmt.Errorf("unmarshal response of %s %s: %w", req.Method, req.URL, err)
	}
	return nil
}

// remoteErrorBody covers both error shapes the portal backend produces:
// {"error": {"code": "...", "message": "..."}} and {"code": "...", "message": "...", "details": "..."}.
type remoteErrorBody struct {
	Err     *Error `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func newClientErrorFromResponse(req *http.Request, resp *http.Response) *ClientError {
	clientErr := &ClientError{Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
	if err != nil {
		clientErr.Err = fmt.Errorf("read error response body: %w", err)
		return clientErr
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return clientErr
	}

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if contentType != ContentTypeAppJSON {
		clientErr.Message = string(bytes.TrimSpace(buf))
		return clientErr
	}

	var body remoteErrorBody
	if err = json.Unmarshal(buf, &body); err != nil {
		clientErr.Err = fmt.Errorf("unmarshal error response body: %w", err)
		return clientErr
	}
	switch {
	case body.Err != nil:
		clientErr.Code = body.Err.Code
		clientErr.Message = body.Err.Message
	default:
		clientErr.Code = body.Code
		clientErr.Message = body.Message
		if body.Details != "" {
			clientErr.Message += " (" + body.Details + ")"
		}
	}
	return clientErr
}

// NewJSONRequest marshals data to JSON and creates a new http.Request with it as the body.
func NewJSONRequest(ctx context.Context, method, url string, data interface{}) (*http.Request, error) {
	if data == nil {
		return nil, fmt.Errorf("data cannot be nil")
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, fmt.Errorf("method %s is not allowed for json request", method)
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentTypeAppJSON)
	return req, nil
}
