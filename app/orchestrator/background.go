package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/cal-comb/app/cache"
	"github.com/lysyi3m/cal-comb/app/event"
	"github.com/lysyi3m/cal-comb/app/sources"
)

const DefaultRegistrationTimeout = 5 * time.Second

var (
	ErrCapabilityUnsupported = errors.New("background capability not supported")
	ErrRegistrationTimeout   = errors.New("background context did not answer in time")
)

// FeatureSupport tells which background capabilities are available
type FeatureSupport struct {
	BackgroundSync bool `json:"backgroundSync"`
	PeriodicSync   bool `json:"periodicSync"`
}

// Messenger delivers a message to the background context and waits for
// its acknowledgement.
type Messenger interface {
	Send(ctx context.Context, msg Message) Ack
}

var _ Messenger = (*Background)(nil)

type request struct {
	msg   Message
	reply chan Ack
}

// Background is the detached sync context. It runs on its own goroutines,
// reaches the foreground only through messages and the KV store, and never
// touches the database. Fetched payloads go to the handoff queue.
type Background struct {
	kv       cache.KV
	registry *sources.Registry
	handoff  *Handoff
	limiter  *RateLimiter
	support  FeatureSupport
	schedule string
	timeout  time.Duration
	now      func() time.Time

	inbox    chan request
	jobs     chan string
	outbox   chan Message
	cron     *cron.Cron
	periodic bool
	wg       sync.WaitGroup

	// minimum spacing of periodic passes, set on registration
	periodicEvery atomic.Int64
}

type BackgroundOptions struct {
	Support  FeatureSupport
	Schedule string // cron expression for the periodic pass
	Timeout  time.Duration
}

func NewBackground(kv cache.KV, registry *sources.Registry, opts BackgroundOptions) *Background {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRegistrationTimeout
	}
	schedule := opts.Schedule
	if schedule == "" {
		schedule = "@every 12h"
	}

	return &Background{
		kv:       kv,
		registry: registry,
		handoff:  NewHandoff(kv),
		limiter:  NewRateLimiter(kv),
		support:  opts.Support,
		schedule: schedule,
		timeout:  timeout,
		now:      time.Now,
		inbox:    make(chan request),
		jobs:     make(chan string, 1),
		outbox:   make(chan Message, 8),
		cron:     cron.New(),
	}
}

func (b *Background) WithClock(now func() time.Time) *Background {
	b.now = now
	b.limiter.WithClock(now)
	return b
}

// Messages carries BACKGROUND_SYNC_COMPLETE notifications to the foreground
func (b *Background) Messages() <-chan Message {
	return b.outbox
}

// Run serves the inbox until ctx is done
func (b *Background) Run(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case reason := <-b.jobs:
				b.pass(ctx, reason)
			}
		}
	}()

	defer func() {
		<-b.cron.Stop().Done()
		b.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-b.inbox:
			req.reply <- b.handle(req.msg)
		}
	}
}

// Send is bounded by the registration timeout and resolves to a failed
// acknowledgement instead of blocking.
func (b *Background) Send(ctx context.Context, msg Message) Ack {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req := request{msg: msg, reply: make(chan Ack, 1)}
	select {
	case b.inbox <- req:
	case <-ctx.Done():
		return ackErr(ErrRegistrationTimeout)
	}

	select {
	case ack := <-req.reply:
		return ack
	case <-ctx.Done():
		return ackErr(ErrRegistrationTimeout)
	}
}

func (b *Background) handle(msg Message) Ack {
	switch m := msg.(type) {
	case SkipWaiting:
		slog.Debug("Background context activated")
		return Ack{Success: true}

	case RegisterBackgroundSync:
		if !b.support.BackgroundSync {
			return ackErr(ErrCapabilityUnsupported)
		}
		b.trigger("sync:" + m.Tag)
		return Ack{Success: true}

	case RegisterPeriodicSync:
		if !b.support.PeriodicSync {
			return ackErr(ErrCapabilityUnsupported)
		}
		every := PeriodicInterval
		if m.MinInterval > 0 {
			every = time.Duration(m.MinInterval) * time.Second
		}
		if b.periodic {
			b.periodicEvery.Store(int64(every))
			return Ack{Success: true}
		}
		if _, err := b.cron.AddFunc(b.schedule, func() { b.trigger("periodic") }); err != nil {
			return ackErr(fmt.Errorf("invalid periodic schedule %q: %w", b.schedule, err))
		}
		b.periodicEvery.Store(int64(every))
		b.cron.Start()
		b.periodic = true
		slog.Info("Periodic background sync registered", "schedule", b.schedule, "min_interval", every)
		return Ack{Success: true}

	case BackgroundSyncComplete:
		return ackErr(fmt.Errorf("%s is sent by the background context", m.Type()))

	default:
		return ackErr(fmt.Errorf("%w: %T", ErrUnknownMessage, msg))
	}
}

func (b *Background) periodicInterval() time.Duration {
	if every := time.Duration(b.periodicEvery.Load()); every > 0 {
		return every
	}
	return PeriodicInterval
}

// trigger queues a pass unless one is already waiting
func (b *Background) trigger(reason string) {
	select {
	case b.jobs <- reason:
	default:
		slog.Debug("Background pass already pending", "reason", reason)
	}
}

func (b *Background) pass(ctx context.Context, reason string) {
	if reason == "periodic" {
		if !b.limiter.AllowAfter(ctx, CategoryPeriodic, b.periodicInterval()) {
			slog.Debug("Periodic background pass suppressed by rate limit")
			return
		}
		b.limiter.Mark(ctx, CategoryPeriodic)
	}

	result, err := b.Sync(ctx)
	if err != nil {
		slog.Error("Background sync failed", "reason", reason, "error", err)
		return
	}

	select {
	case b.outbox <- BackgroundSyncComplete{Result: result}:
	default:
		slog.Warn("Dropping background completion, foreground not listening")
	}
}

// Sync fetches every enabled remote calendar and queues the raw payloads
// for the foreground.
func (b *Background) Sync(ctx context.Context) (event.SyncResult, error) {
	calendars, err := readCalendars(ctx, b.kv)
	if err != nil {
		return event.SyncResult{}, err
	}

	result := event.SyncResult{Timestamp: b.now()}
	for _, cal := range calendars {
		if cal.Kind == event.KindLocal || !cal.Enabled {
			continue
		}
		result.Total++

		adapter, ok := b.registry.For(cal.Kind)
		if !ok {
			result.Errored++
			continue
		}

		payload, err := adapter.Fetch(ctx, cal)
		if err != nil {
			slog.Warn("Background fetch failed", "calendar", cal.ID, "error", err)
			result.Errored++
			continue
		}

		if err := b.handoff.Push(ctx, payload, b.now()); err != nil {
			slog.Warn("Background handoff failed", "calendar", cal.ID, "error", err)
			result.Errored++
			continue
		}
		result.Synced++
	}

	slog.Info("Background sync completed", "synced", result.Synced, "errored", result.Errored, "total", result.Total)
	return result, nil
}
