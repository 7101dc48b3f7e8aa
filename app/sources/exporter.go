package sources

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/lysyi3m/cal-comb/app/event"
)

// Exporter renders aggregated events back into an iCalendar document
type Exporter struct {
	version string
}

func NewExporter(version string) *Exporter {
	return &Exporter{version: version}
}

func (x *Exporter) Run(name string, events []event.Event) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(fmt.Sprintf("-//Cal Comb//%s//EN", x.version))
	cal.SetName(name)
	cal.SetXWRCalName(name)

	for _, e := range events {
		ve := cal.AddEvent(e.ID + "@cal-comb")
		ve.SetDtStampTime(e.CapturedAt.UTC())
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		if e.Location != "" {
			ve.SetLocation(e.Location)
		}
		if e.Status != "" {
			ve.SetProperty(ical.ComponentPropertyStatus, e.Status)
		}
		for _, c := range e.Categories {
			ve.AddProperty(ical.ComponentPropertyCategories, c)
		}

		if start, end, ok := timedSpan(e); ok {
			ve.SetStartAt(start)
			ve.SetEndAt(end)
		} else {
			ve.SetAllDayStartAt(e.Date)
			ve.SetAllDayEndAt(e.Date.AddDate(0, 0, 1))
		}
	}

	return cal.Serialize(), nil
}

// timedSpan recovers start and end from an "HH:MM - HH:MM" time range
func timedSpan(e event.Event) (time.Time, time.Time, bool) {
	var sh, sm, eh, em int
	n, _ := fmt.Sscanf(e.TimeRange, "%d:%d - %d:%d", &sh, &sm, &eh, &em)
	if n < 2 {
		return time.Time{}, time.Time{}, false
	}

	start := e.Date.Add(time.Duration(sh)*time.Hour + time.Duration(sm)*time.Minute)
	if n < 4 {
		return start, start.Add(time.Hour), true
	}

	end := e.Date.Add(time.Duration(eh)*time.Hour + time.Duration(em)*time.Minute)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, true
}
