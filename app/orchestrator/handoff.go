package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lysyi3m/cal-comb/app/cache"
	"github.com/lysyi3m/cal-comb/app/event"
	"github.com/lysyi3m/cal-comb/app/sources"
)

const (
	handoffList  = "handoff"
	calendarsKey = "calendars"
)

// HandoffRecord is one background fetch waiting for the foreground
type HandoffRecord struct {
	CalendarID string          `json:"calendarId"`
	RawPayload json.RawMessage `json:"rawPayload"`
	SyncTime   time.Time       `json:"syncTime"`
}

func (r HandoffRecord) Payload() (sources.Payload, error) {
	var p sources.Payload
	if err := json.Unmarshal(r.RawPayload, &p); err != nil {
		return sources.Payload{}, fmt.Errorf("failed to decode handoff payload for calendar %s: %w", r.CalendarID, err)
	}
	return p, nil
}

// Handoff is the portable queue between the background and foreground
// contexts, kept in the KV store so both sides can reach it.
type Handoff struct {
	kv cache.KV
}

func NewHandoff(kv cache.KV) *Handoff {
	return &Handoff{kv: kv}
}

func (h *Handoff) Push(ctx context.Context, payload sources.Payload, syncTime time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for calendar %s: %w", payload.CalendarID, err)
	}
	record, err := json.Marshal(HandoffRecord{CalendarID: payload.CalendarID, RawPayload: raw, SyncTime: syncTime})
	if err != nil {
		return fmt.Errorf("failed to encode handoff record: %w", err)
	}
	if err := h.kv.Append(ctx, handoffList, record); err != nil {
		return fmt.Errorf("failed to append handoff record: %w", err)
	}
	return nil
}

// Pending returns queued records oldest first. Records that cannot be
// decoded are returned as zero values so the count still matches the list.
func (h *Handoff) Pending(ctx context.Context) ([]HandoffRecord, error) {
	items, err := h.kv.List(ctx, handoffList)
	if err != nil {
		return nil, fmt.Errorf("failed to read handoff queue: %w", err)
	}

	records := make([]HandoffRecord, len(items))
	for i, item := range items {
		_ = json.Unmarshal(item, &records[i])
	}
	return records, nil
}

// Ack removes the first n records once they have been merged
func (h *Handoff) Ack(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := h.kv.TrimFront(ctx, handoffList, n); err != nil {
		return fmt.Errorf("failed to trim handoff queue: %w", err)
	}
	return nil
}

// publishCalendars stores the calendar list where the background context
// can read it without database access.
func publishCalendars(ctx context.Context, kv cache.KV, calendars []event.Calendar) error {
	data, err := json.Marshal(calendars)
	if err != nil {
		return fmt.Errorf("failed to encode calendars: %w", err)
	}
	return kv.Set(ctx, calendarsKey, data)
}

func readCalendars(ctx context.Context, kv cache.KV) ([]event.Calendar, error) {
	data, ok, err := kv.Get(ctx, calendarsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendars: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var calendars []event.Calendar
	if err := json.Unmarshal(data, &calendars); err != nil {
		return nil, fmt.Errorf("failed to decode calendars: %w", err)
	}
	return calendars, nil
}
