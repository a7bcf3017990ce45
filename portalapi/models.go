/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package portalapi

import "time"

// ServiceType is a kind of service request handled by the security services team.
type ServiceType string

// Service types.
const (
	ServiceTypePhoneNumberRequest     ServiceType = "phone_number_request"
	ServiceTypeSIMCardIssue           ServiceType = "sim_card_issue"
	ServiceTypeMoMoTransactionDispute ServiceType = "momo_transaction_dispute"
	ServiceTypeVisitorAccess          ServiceType = "visitor_access"
	ServiceTypeDatacenterAccess       ServiceType = "datacenter_access"
)

// IsValid reports whether the service type is known.
func (t ServiceType) IsValid() bool {
	switch t {
	case ServiceTypePhoneNumberRequest, ServiceTypeSIMCardIssue, ServiceTypeMoMoTransactionDispute,
		ServiceTypeVisitorAccess, ServiceTypeDatacenterAccess:
		return true
	}
	return false
}

// Status is a processing status of a service request.
type Status string

// Statuses of service requests.
const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// ServiceRequest is a request submitted to the security services team.
type ServiceRequest struct {
	ID              string      `json:"id"`
	ReferenceNumber string      `json:"reference_number"`
	ServiceType     ServiceType `json:"service_type"`
	Status          Status      `json:"status"`
	Priority        string      `json:"priority,omitempty"`
	RequesterName   string      `json:"requester_name,omitempty"`
	RequesterPhone  string      `json:"requester_phone,omitempty"`
	AssignedTo      string      `json:"assigned_to,omitempty"`
	Description     string      `json:"description,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// User is a portal user. Credentials are never requested from the backend.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}

// AuditLog is a record of an action performed in the portal.
type AuditLog struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ServiceRequestFilter narrows ListServiceRequests. Empty fields are not applied.
type ServiceRequestFilter struct {
	Status      Status
	ServiceType ServiceType
	Limit       int
}

// AuditLogFilter narrows ListAuditLogs. Empty fields are not applied.
type AuditLogFilter struct {
	UserID string
	Limit  int
}
