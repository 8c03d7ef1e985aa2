package events

import (
	"errors"
	"testing"
	"time"

	"github.com/mcdev12/circuitcast/go/internal/models"
)

func TestSyncRoundTripKeepsTiming(t *testing.T) {
	sentAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	endsAt := sentAt.Add(42*time.Second + 300*time.Millisecond)
	idx := 2
	paused := false
	remaining := 43

	in := Sync{
		SessionID:    "sess-1",
		SentAt:       sentAt,
		Workout:      &models.Workout{ID: "w1", Name: "Leg Day"},
		Durations:    []int{30, 45, 60},
		CurrentIndex: &idx,
		EndsAt:       &endsAt,
		Paused:       &paused,
		RemainingSec: &remaining,
	}

	b, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out, ok := msg.(Sync)
	if !ok {
		t.Fatalf("decoded %T, want Sync", msg)
	}
	if out.SessionID != "sess-1" {
		t.Errorf("session id = %q, want sess-1", out.SessionID)
	}
	got, ok := out.Remaining()
	if !ok {
		t.Fatal("decoded sync has no timing")
	}
	if got != 42*time.Second+300*time.Millisecond {
		t.Errorf("Remaining() = %v, want 42.3s", got)
	}
}

func TestSyncRemainingPrefersPausedValue(t *testing.T) {
	now := time.Now()
	endsAt := now.Add(time.Hour)
	paused := true
	ms := int64(12_500)

	s := Sync{SentAt: now, EndsAt: &endsAt, Paused: &paused, PausedRemainingMs: &ms}
	got, ok := s.Remaining()
	if !ok || got != 12500*time.Millisecond {
		t.Errorf("Remaining() = %v, %v; want 12.5s, true", got, ok)
	}
}

func TestSyncRemainingMissingFields(t *testing.T) {
	if _, ok := (Sync{}).Remaining(); ok {
		t.Error("empty sync should not report timing")
	}

	past := time.Now().Add(-time.Minute)
	s := Sync{SentAt: time.Now(), EndsAt: &past}
	if got, _ := s.Remaining(); got != 0 {
		t.Errorf("Remaining() for expired module = %v, want 0", got)
	}
}

func TestDecodePartialSyncLeavesFieldsNil(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"SYNC","session_id":"s","sent_at":"2025-03-01T10:00:00Z","data":{"current_index":1}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	s := msg.(Sync)
	if s.Workout != nil || s.EndsAt != nil || s.Paused != nil {
		t.Errorf("absent fields decoded as non-nil: %+v", s)
	}
	if s.CurrentIndex == nil || *s.CurrentIndex != 1 {
		t.Errorf("current_index = %v, want 1", s.CurrentIndex)
	}
}

func TestDecodeEndSession(t *testing.T) {
	b, err := Encode(EndSession{SessionID: "sess-9"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := msg.(EndSession); !ok {
		t.Fatalf("decoded %T, want EndSession", msg)
	}
	if msg.Session() != "sess-9" {
		t.Errorf("session = %q, want sess-9", msg.Session())
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"SYNC_STATE","data":{}}`))
	if !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("err = %v, want ErrUnknownMessage", err)
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed frame")
	}
}
