// Package event broadcasts cast lifecycle notifications to SSE subscribers,
// letting the desktop client show activity without polling.
package event

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// EventType labels a lifecycle notification.
type EventType string

const (
	EventCastStarted   EventType = "cast_started"
	EventCastFinished  EventType = "cast_finished"
	EventSpellsUpdated EventType = "spells_updated"
	EventError         EventType = "error"
)

// Event describes one notification pushed to subscribers.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SpellID   string    `json:"spell_id,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// NewEvent fills in ID and Timestamp.
func NewEvent(typ EventType, spellID string, data any) Event {
	return normalizeEvent(Event{Type: typ, SpellID: spellID, Data: data})
}

// Validate checks event constraints.
func (e Event) Validate() error {
	if e.Type == "" {
		return errors.New("event: type is empty")
	}
	return nil
}

func normalizeEvent(evt Event) Event {
	if evt.ID == "" {
		evt.ID = newEventID()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return evt
}

func newEventID() string {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf[:])
}

// CastFinishedData summarizes one completed invocation.
type CastFinishedData struct {
	Success   bool   `json:"success"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

// SpellsUpdatedData reports the registry size after a rescan.
type SpellsUpdatedData struct {
	Count int `json:"count"`
}

// ErrorData is the monitor-friendly error payload.
type ErrorData struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}
