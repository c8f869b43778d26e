package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestMultiLoggerFansOut(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	multi := NewMultiLogger(a, b)

	if err := multi.Log(context.Background(), &Event{EventType: EventTypeDecision}); err != nil {
		t.Fatalf("Log returned error: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("event counts = %d, %d; want 1, 1", len(a.events), len(b.events))
	}
}

func TestMultiLoggerContinuesPastFailingSink(t *testing.T) {
	failing := &captureSink{err: errors.New("disk full")}
	healthy := &captureSink{}
	multi := NewMultiLogger(failing, healthy)

	err := multi.Log(context.Background(), &Event{EventType: EventTypeDecision})
	if err == nil {
		t.Fatal("expected the failing sink's error to surface")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error = %v", err)
	}
	if len(healthy.events) != 1 {
		t.Error("healthy sink must still receive the event")
	}
}

func TestLogrusLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogrusLogger(&buf)

	event := &Event{
		EventType:      EventTypeDecision,
		Status:         EventStatusDenied,
		SubjectID:      "user-1",
		OrganizationID: "31",
		Operation:      "org.members.add",
		Reason:         "insufficient_role",
	}
	if err := sink.Log(context.Background(), event); err != nil {
		t.Fatalf("Log returned error: %v", err)
	}

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not a JSON line: %v", err)
	}
	if line["subject_id"] != "user-1" || line["reason"] != "insufficient_role" {
		t.Errorf("line = %v", line)
	}
	if line["level"] != "warning" {
		t.Errorf("denied decisions should log at warning, got %v", line["level"])
	}
}

func TestLogrusLoggerAllowedLogsAtInfo(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogrusLogger(&buf)

	sink.Log(context.Background(), &Event{EventType: EventTypeDecision, Status: EventStatusAllowed})

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not a JSON line: %v", err)
	}
	if line["level"] != "info" {
		t.Errorf("allowed decisions should log at info, got %v", line["level"])
	}
}
