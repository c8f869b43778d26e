package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/assembly-hq/assembly/pkg/authz"
	"github.com/assembly-hq/assembly/pkg/contextkeys"
	"github.com/assembly-hq/assembly/pkg/observability"
)

// Recorder adapts an audit sink to the guard's DecisionRecorder interface.
// Sink failures are logged and swallowed: auditing must never change an
// authorization outcome.
type Recorder struct {
	sink   Logger
	logger *observability.Logger
}

// NewRecorder creates a decision recorder writing to the given sink.
func NewRecorder(sink Logger, logger *observability.Logger) *Recorder {
	if sink == nil {
		sink = NopLogger{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Recorder{sink: sink, logger: logger}
}

// RecordDecision records a terminal authorization decision.
func (r *Recorder) RecordDecision(ctx context.Context, req authz.AccessRequest, decision authz.AccessDecision) {
	event := decisionEvent(ctx, req, decision)
	if err := r.sink.Log(ctx, event); err != nil {
		r.logger.WithError(err).Warn("failed to record audit event")
	}
}

// RecordDiscrepancy records a stale-token reconciliation: the slow path's
// verdict differed from the fast path's.
func (r *Recorder) RecordDiscrepancy(ctx context.Context, req authz.AccessRequest, fast, slow authz.AccessDecision) {
	event := decisionEvent(ctx, req, slow)
	event.EventType = EventTypeDiscrepancy
	event.Status = EventStatusNotice
	event.Message = fmt.Sprintf("token stale: fast path %s (%s), membership store %s (%s)",
		verdict(fast), fast.Reason, verdict(slow), slow.Reason)
	if err := r.sink.Log(ctx, event); err != nil {
		r.logger.WithError(err).Warn("failed to record audit discrepancy")
	}
}

// RecordMalformedClaims records token entries that failed to decode.
func (r *Recorder) RecordMalformedClaims(ctx context.Context, subjectID string, entries []string) {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: EventTypeMalformedClaims,
		Status:    EventStatusNotice,
		SubjectID: subjectID,
		RequestID: contextkeys.GetRequestID(ctx),
		Message:   fmt.Sprintf("%d malformed claim entries skipped", len(entries)),
		Metadata:  map[string]interface{}{"entries": entries},
	}
	if err := r.sink.Log(ctx, event); err != nil {
		r.logger.WithError(err).Warn("failed to record malformed claims")
	}
}

func decisionEvent(ctx context.Context, req authz.AccessRequest, decision authz.AccessDecision) *Event {
	status := EventStatusDenied
	if decision.Allowed {
		status = EventStatusAllowed
	}
	return &Event{
		Timestamp:      decision.CheckedAt,
		EventType:      EventTypeDecision,
		Status:         status,
		SubjectID:      req.Principal.SubjectID,
		Anonymous:      req.Principal.Anonymous,
		OrganizationID: req.OrganizationID,
		Operation:      req.Operation,
		MinimumRole:    string(req.MinimumRole),
		MatchedRole:    string(decision.MatchedRole),
		Reason:         string(decision.Reason),
		Source:         string(decision.Source),
		RequestID:      contextkeys.GetRequestID(ctx),
	}
}

func verdict(d authz.AccessDecision) string {
	if d.Allowed {
		return "allowed"
	}
	return "denied"
}
