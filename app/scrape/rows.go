package scrape

import (
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/cal-comb/app/event"
)

// RowToEvent fills an event from one row using the inferred columns. Rows
// without a title or a parseable date are rejected.
func RowToEvent(cells []string, columns []event.ColumnMapping, sourceURL string, opts Options) (event.Event, error) {
	opts = opts.normalized()

	draft := event.Event{
		SourceKind: event.KindPage,
		CalendarID: opts.CalendarID,
		OriginURL:  sourceURL,
		CapturedAt: opts.Now(),
	}

	var date time.Time
	var dateText string

	for i, text := range cells {
		if i >= len(columns) || text == "" {
			continue
		}
		col := columns[i]

		switch col.Type {
		case event.ColumnDate:
			if date.IsZero() {
				if d, ok := ParseDate(text, opts.Location); ok {
					date = d
				} else if dateText == "" {
					dateText = text
				}
			}
			// Headers such as "Start Time" classify as dates but may hold only a time
			if tm, ok := ExtractTime(text); ok && draft.TimeRange == "" {
				draft.TimeRange = tm.Range
			}
		case event.ColumnTitle:
			if draft.Title == "" {
				draft.Title = text
			}
		case event.ColumnStatus:
			draft.Status = text
		case event.ColumnLocation:
			draft.Location = text
		case event.ColumnCategory:
			draft.Categories = append(draft.Categories, splitList(text)...)
		case event.ColumnDescription:
			draft.Description = text
		case event.ColumnTime:
			if tm, ok := ExtractTime(text); ok {
				draft.TimeRange = tm.Range
			} else {
				draft.TimeRange = text
			}
		case event.ColumnPriority:
			draft.Priority = text
		default:
			if draft.Properties == nil {
				draft.Properties = make(map[string]string)
			}
			draft.Properties[col.Property] = text
		}
	}

	if strings.TrimSpace(draft.Title) == "" {
		return event.Event{}, event.ErrMissingTitle
	}
	if date.IsZero() {
		if dateText == "" {
			return event.Event{}, event.ErrInvalidDate
		}
		return event.Event{}, fmt.Errorf("%w: unparseable %q", event.ErrInvalidDate, dateText)
	}
	draft.Date = date
	draft.ID = event.OccurrenceID(opts.CalendarID, rowKey(draft), date, false)

	return event.New(draft)
}

// rowKey identifies a row by the content that tells same-day rows apart
func rowKey(draft event.Event) string {
	timeRange := strings.TrimSpace(draft.TimeRange)
	if timeRange == "" {
		timeRange = event.AllDay
	}
	return strings.Join([]string{
		strings.TrimSpace(draft.Title),
		timeRange,
		strings.TrimSpace(draft.Location),
	}, "|")
}

func splitList(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
