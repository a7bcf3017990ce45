/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package httpclient

import "net/http"

// UserAgentUpdateStrategy defines what UserAgentRoundTripper does with a User-Agent the request already has.
type UserAgentUpdateStrategy int

// User-Agent update strategies.
const (
	// UserAgentUpdateStrategySetIfEmpty keeps the existing value.
	UserAgentUpdateStrategySetIfEmpty UserAgentUpdateStrategy = iota
	// UserAgentUpdateStrategyAppend appends the gateway's value after the existing one.
	UserAgentUpdateStrategyAppend
)

// UserAgentRoundTripper identifies the gateway in the User-Agent header of backend requests.
type UserAgentRoundTripper struct {
	Delegate       http.RoundTripper
	UserAgent      string
	UpdateStrategy UserAgentUpdateStrategy
}

// NewUserAgentRoundTripper creates a UserAgentRoundTripper with UserAgentUpdateStrategySetIfEmpty.
func NewUserAgentRoundTripper(delegate http.RoundTripper, userAgent string) *UserAgentRoundTripper {
	return &UserAgentRoundTripper{Delegate: delegate, UserAgent: userAgent}
}

// RoundTrip implements http.RoundTripper.
func (rt *UserAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if value, changed := rt.userAgentFor(req.UserAgent()); changed {
		req = CloneHTTPRequest(req)
		req.Header.Set("User-Agent", value)
	}
	return rt.Delegate.RoundTrip(req)
}

func (rt *UserAgentRoundTripper) userAgentFor(current string) (value string, changed bool) {
	if current == "" {
		return rt.UserAgent, true
	}
	if rt.UpdateStrategy == UserAgentUpdateStrategyAppend {
		return current + " " + rt.UserAgent, true
	}
	return current, false
}
