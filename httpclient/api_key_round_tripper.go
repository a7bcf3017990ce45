/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
)

// Headers carrying the API key. PostgREST-style backends expect the key in both.
const (
	HeaderAPIKey        = "apikey"
	HeaderAuthorization = "Authorization"
)

// APIKeyRoundTripperError is returned in RoundTrip method of APIKeyRoundTripper
// when the key cannot be obtained.
type APIKeyRoundTripperError struct {
	Inner error
}

func (e *APIKeyRoundTripperError) Error() string {
	return fmt.Sprintf("api key round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *APIKeyRoundTripperError) Unwrap() error {
	return e.Inner
}

// APIKeyProvider provides the key used for authorization of outgoing requests.
type APIKeyProvider interface {
	GetAPIKey(ctx context.Context) (string, error)
}

// APIKeyProviderFunc allows to use an ordinary function as APIKeyProvider.
type APIKeyProviderFunc func(ctx context.Context) (string, error)

// GetAPIKey implements APIKeyProvider.
func (f APIKeyProviderFunc) GetAPIKey(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticAPIKey is an APIKeyProvider that always returns the same key.
type StaticAPIKey string

// GetAPIKey implements APIKeyProvider.
func (k StaticAPIKey) GetAPIKey(context.Context) (string, error) {
	return string(k), nil
}

// APIKeyRoundTripper implements http.RoundTripper interface
// and sets "apikey" and "Authorization: Bearer" HTTP headers in all outgoing requests.
type APIKeyRoundTripper struct {
	Delegate http.RoundTripper
	Provider APIKeyProvider
}

// NewAPIKeyRoundTripper creates a new APIKeyRoundTripper.
func NewAPIKeyRoundTripper(delegate http.RoundTripper, provider APIKeyProvider) *APIKeyRoundTripper {
	return &APIKeyRoundTripper{Delegate: delegate, Provider: provider}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *APIKeyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(HeaderAuthorization) != "" {
		return rt.Delegate.RoundTrip(req)
	}
	apiKey, err := rt.Provider.GetAPIKey(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close() // Per RoundTripper contract.
		}
		return nil, &APIKeyRoundTripperError{Inner: err}
	}
	if apiKey == "" {
		return rt.Delegate.RoundTrip(req)
	}
	req = CloneHTTPRequest(req) // Per RoundTripper contract.
	req.Header.Set(HeaderAPIKey, apiKey)
	req.Header.Set(HeaderAuthorization, "Bearer "+apiKey)
	return rt.Delegate.RoundTrip(req)
}
