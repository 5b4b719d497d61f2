package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewTranscriptUpdate(t *testing.T) {
	at := time.Date(2024, 3, 9, 7, 5, 3, 0, time.Local)

	u := NewTranscriptUpdate("call-1", RoleCaller, "There's a fire", at)

	if u.Timestamp != "07:05:03" {
		t.Errorf("expected 07:05:03, got %s", u.Timestamp)
	}
	if u.Role != "caller" || u.Message != "There's a fire" || u.SessionID != "call-1" {
		t.Errorf("unexpected update %+v", u)
	}
}

func TestTranscriptUpdate_JSONShape(t *testing.T) {
	b, err := json.Marshal(TranscriptUpdate{Role: RoleDispatcher, Message: "ok", Timestamp: "12:00:00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"role":"dispatcher","message":"ok","timestamp":"12:00:00"}`
	if string(b) != want {
		t.Errorf("expected %s, got %s", want, b)
	}
}
