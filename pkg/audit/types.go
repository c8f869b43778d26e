package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// EventTypeDecision records a terminal authorization decision.
	EventTypeDecision EventType = "authz.decision"
	// EventTypeDiscrepancy records a fallback verdict that differed from the
	// fast path's: the token no longer reflects the membership store.
	EventTypeDiscrepancy EventType = "authz.discrepancy"
	// EventTypeMalformedClaims records token claim entries that failed to decode.
	EventTypeMalformedClaims EventType = "authz.malformed_claims"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusAllowed EventStatus = "allowed"
	EventStatusDenied  EventStatus = "denied"
	EventStatusNotice  EventStatus = "notice"
)

// Event is a single audit log entry. It carries enough detail to
// reconstruct who tried what, as which role, at which organization, when,
// and why it was allowed or denied.
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor and target
	SubjectID      string `json:"subject_id,omitempty"`
	Anonymous      bool   `json:"anonymous,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`

	// Decision detail
	Operation   string `json:"operation,omitempty"`
	MinimumRole string `json:"minimum_role,omitempty"`
	MatchedRole string `json:"matched_role,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Source      string `json:"source,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// RetentionPolicy defines how long audit events should be kept.
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep audit events
	RetentionDays int
}

// DefaultRetentionPolicy returns a default retention policy (90 days)
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{RetentionDays: 90}
}
