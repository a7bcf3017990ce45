/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package portalapi

import (
	"net/url"
	"strconv"
)

// Cache keys and key prefixes of portal resources.
const (
	ServiceRequestKeyPrefix     = tableServiceRequests + "/"
	ServiceRequestListKeyPrefix = tableServiceRequests + "?"
	UserKeyPrefix               = tableUsers + "/"
	UsersKey                    = tableUsers
	AuditLogListKeyPrefix       = tableAuditLogs + "?"
)

// ServiceRequestKey returns the cache key of the service request.
func ServiceRequestKey(id string) string {
	return ServiceRequestKeyPrefix + id
}

// ServiceRequestListKey returns the cache key of the page of service requests.
// Query parameters are sorted, so equal filters always give equal keys.
func ServiceRequestListKey(filter ServiceRequestFilter) string {
	query := url.Values{"limit": {strconv.Itoa(filter.Limit)}}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.ServiceType != "" {
		query.Set("type", string(filter.ServiceType))
	}
	return ServiceRequestListKeyPrefix + query.Encode()
}

// UserKey returns the cache key of the user.
func UserKey(id string) string {
	return UserKeyPrefix + id
}

// AuditLogListKey returns the cache key of the page of audit logs.
func AuditLogListKey(filter AuditLogFilter) string {
	query := url.Values{"limit": {strconv.Itoa(filter.Limit)}}
	if filter.UserID != "" {
		query.Set("user_id", filter.UserID)
	}
	return AuditLogListKeyPrefix + query.Encode()
}
