package sources

import (
	"context"
	"time"

	"github.com/lysyi3m/cal-comb/app/event"
)

// Payload is the raw fetched body of one source. It is what the background
// context hands over to the foreground.
type Payload struct {
	CalendarID string     `json:"calendarId"`
	Kind       event.Kind `json:"kind"`
	Body       []byte     `json:"body"`
	Via        string     `json:"via"`
	FetchedAt  time.Time  `json:"fetchedAt"`
}

// Meta describes how a sync produced its events
type Meta struct {
	Via         string    `json:"via"`
	Strategy    string    `json:"strategy,omitempty"`
	Definitions int       `json:"definitions,omitempty"`
	Rejected    int       `json:"rejected,omitempty"`
	Filtered    int       `json:"filtered,omitempty"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

type Result struct {
	Events []event.Event
	Meta   Meta
}

// Adapter turns one kind of source into events. Fetch touches only the
// network; Decode is pure and safe to run later on a stored payload.
type Adapter interface {
	Kind() event.Kind
	Fetch(ctx context.Context, cal event.Calendar) (Payload, error)
	Decode(cal event.Calendar, payload Payload) (Result, error)
}

// Sync fetches and decodes in one step
func Sync(ctx context.Context, a Adapter, cal event.Calendar) (Result, error) {
	payload, err := a.Fetch(ctx, cal)
	if err != nil {
		return Result{}, err
	}
	return a.Decode(cal, payload)
}

// Registry picks the adapter for a calendar's kind
type Registry struct {
	adapters map[event.Kind]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[event.Kind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

func (r *Registry) For(kind event.Kind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}
