package ics

import (
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/lysyi3m/cal-comb/app/event"
)

// maxIterations bounds the work spent on any single recurrence rule
const maxIterations = 366

// Window is an inclusive range of calendar days
type Window struct {
	Start time.Time
	End   time.Time
}

func YearWindow(year int, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	return Window{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, loc),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, loc),
	}
}

func (w Window) Contains(day time.Time) bool {
	return !day.Before(w.Start) && !day.After(w.End)
}

type Expander struct {
	Window     Window
	Location   *time.Location
	CalendarID string
	OriginURL  string
	CapturedAt time.Time
}

func NewExpander(window Window, loc *time.Location, calendarID, originURL string) *Expander {
	if loc == nil {
		loc = time.Local
	}
	return &Expander{
		Window:     Window{Start: inLoc(window.Start, loc), End: inLoc(window.End, loc)},
		Location:   loc,
		CalendarID: calendarID,
		OriginURL:  originURL,
		CapturedAt: time.Now(),
	}
}

// Occurrences lazily yields the in-window day instances of def. Ranging over
// the result again repeats the expansion with identical identifiers.
func (x *Expander) Occurrences(def Definition) iter.Seq[event.Event] {
	return func(yield func(event.Event) bool) {
		if def.RRule == "" {
			x.span(def, def.Start, def.End, false, yield)
			return
		}

		rule, err := newRule(def)
		if err != nil {
			slog.Warn("Invalid recurrence rule, using first occurrence", "uid", def.UID, "rrule", def.RRule, "error", err)
			x.span(def, def.Start, def.End, false, yield)
			return
		}

		next := rule.Iterator()

		for range maxIterations {
			start, ok := next()
			if !ok {
				return
			}
			if x.dayOf(def, start).After(x.Window.End) {
				return
			}
			if excluded(def, start) {
				continue
			}
			if !x.span(def, start, instanceEnd(def, start), true, yield) {
				return
			}
		}
	}
}

// instanceEnd keeps an all-day span's length in calendar days, so an
// instance past a daylight saving change still ends at midnight.
func instanceEnd(def Definition, start time.Time) time.Time {
	if def.AllDay {
		return start.AddDate(0, 0, calendarDays(def.Start, def.End))
	}
	return start.Add(def.End.Sub(def.Start))
}

func calendarDays(from, to time.Time) int {
	a := inLoc(from, time.UTC)
	b := inLoc(to, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func newRule(def Definition) (*rrule.RRule, error) {
	opt, err := rrule.StrToROption(def.RRule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = def.Start
	return rrule.NewRRule(*opt)
}

// span emits one occurrence per calendar day of [start, end) in the window.
// It returns false once the consumer stops.
func (x *Expander) span(def Definition, start, end time.Time, recurring bool, yield func(event.Event) bool) bool {
	days := x.days(def, start, end)
	multiDay := len(days) > 1

	for _, day := range days {
		if !x.Window.Contains(day) {
			continue
		}
		e, err := x.occurrence(def, day, start, end, recurring, multiDay)
		if err != nil {
			slog.Warn("Skipping occurrence", "uid", def.UID, "day", day.Format(event.DayLayout), "error", err)
			continue
		}
		if !yield(e) {
			return false
		}
	}
	return true
}

func (x *Expander) days(def Definition, start, end time.Time) []time.Time {
	first := x.dayOf(def, start)
	last := first

	if end.After(start) {
		if def.AllDay {
			// DTEND of an all-day span is exclusive
			last = x.dayOf(def, end).AddDate(0, 0, -1)
		} else {
			last = x.dayOf(def, end.Add(-time.Nanosecond))
		}
	}
	if last.Before(first) {
		last = first
	}

	days := make([]time.Time, 0, 1)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (x *Expander) occurrence(def Definition, day, start, end time.Time, recurring, multiDay bool) (event.Event, error) {
	e, err := event.New(event.Event{
		ID:          event.OccurrenceID(x.CalendarID, event.StableKey(def.UID, def.Summary), day, multiDay),
		Title:       def.Summary,
		Date:        day,
		TimeRange:   x.timeRange(def, start, end, recurring, multiDay),
		Location:    def.Location,
		Description: def.Description,
		Organizer:   def.Organizer,
		Categories:  def.Categories,
		Status:      def.Status,
		SourceKind:  event.KindFeed,
		CalendarID:  x.CalendarID,
		OriginURL:   x.OriginURL,
		CapturedAt:  x.CapturedAt,
		IsMultiDay:  multiDay,
		IsAllDay:    def.AllDay,
		IsRecurring: recurring,
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("failed to build occurrence: %w", err)
	}
	return e, nil
}

func (x *Expander) timeRange(def Definition, start, end time.Time, recurring, multiDay bool) string {
	if def.HasTime && !def.AllDay {
		s := start.In(x.Location).Format("15:04") + " - " + end.In(x.Location).Format("15:04")
		if recurring {
			s += event.RecurringMark
		}
		return s
	}
	if multiDay {
		return event.AllDayMultiDay
	}
	return event.AllDay
}

// dayOf pins t to a viewer-local calendar day. Date-only values keep their
// written date instead of shifting across a timezone boundary.
func (x *Expander) dayOf(def Definition, t time.Time) time.Time {
	if def.AllDay {
		return inLoc(t, x.Location)
	}
	return event.Day(t.In(x.Location))
}

func excluded(def Definition, start time.Time) bool {
	for _, ex := range def.ExDates {
		if ex.Equal(start) {
			return true
		}
		if def.AllDay && inLoc(ex, time.UTC).Equal(inLoc(start, time.UTC)) {
			return true
		}
	}
	return false
}

func inLoc(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ExpandAll flattens every definition's occurrences. A definition that
// fails part-way contributes what it produced before failing.
func (x *Expander) ExpandAll(defs []Definition) []event.Event {
	events := make([]event.Event, 0, len(defs))
	for _, def := range defs {
		events = x.collect(events, def)
	}
	return events
}

func (x *Expander) collect(events []event.Event, def Definition) (out []event.Event) {
	out = events
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Occurrence expansion failed", "uid", def.UID, "summary", def.Summary, "panic", r)
		}
	}()

	for e := range x.Occurrences(def) {
		out = append(out, e)
	}
	return out
}
