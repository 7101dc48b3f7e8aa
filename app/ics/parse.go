package ics

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/lysyi3m/cal-comb/app/event"
)

// Definition is one VEVENT before occurrence expansion
type Definition struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Organizer   string
	Start       time.Time
	End         time.Time
	AllDay      bool
	HasTime     bool
	RRule       string
	ExDates     []time.Time
	Categories  []string
	Status      string
}

// Hash changes whenever a field that affects expansion or display changes
func (d Definition) Hash() string {
	parts := []string{
		d.UID, d.Summary, d.Description, d.Location, d.Organizer,
		d.Start.Format(time.RFC3339), d.End.Format(time.RFC3339),
		d.RRule, d.Status, strings.Join(d.Categories, ","),
		strconv.FormatBool(d.AllDay), strconv.FormatBool(d.HasTime),
	}
	for _, ex := range d.ExDates {
		parts = append(parts, ex.Format(time.RFC3339))
	}
	return event.ContentHash(parts...)
}

// Parse decodes a feed body into definitions. Date-only and floating values
// are read in loc. A VEVENT that cannot be read is skipped.
func Parse(body []byte, loc *time.Location) ([]Definition, error) {
	if len(body) == 0 {
		return nil, errors.New("empty calendar body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	defs := make([]Definition, 0)
	for _, ve := range cal.Events() {
		def, err := parseVEvent(ve, loc)
		if err != nil {
			slog.Warn("Skipping calendar event", "uid", def.UID, "error", err)
			continue
		}
		defs = append(defs, def)
	}

	return defs, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (Definition, error) {
	var def Definition

	def.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	def.Summary = propValue(ve, ical.ComponentPropertySummary)
	def.Description = propValue(ve, ical.ComponentPropertyDescription)
	def.Location = propValue(ve, ical.ComponentPropertyLocation)
	def.Status = propValue(ve, ical.ComponentPropertyStatus)
	def.RRule = propValue(ve, ical.ComponentPropertyRrule)

	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		def.Organizer = organizerName(p.Value, p.ICalParameters)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				def.Categories = append(def.Categories, c)
			}
		}
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return def, errors.New("missing DTSTART")
	}
	def.AllDay = isDateValue(dtStart.Value, dtStart.ICalParameters)
	def.HasTime = !def.AllDay

	if def.AllDay {
		start, err := parseDate(dtStart.Value, loc)
		if err != nil {
			return def, fmt.Errorf("invalid DTSTART: %w", err)
		}
		def.Start = start
		def.End = start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseDate(dtEnd.Value, loc); err == nil && end.After(start) {
				def.End = end
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return def, fmt.Errorf("invalid DTSTART: %w", err)
		}
		def.Start = start
		def.End = start
		if end, err := ve.GetEndAt(); err == nil && end.After(start) {
			def.End = end
		}
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		exLoc := paramLocation(p.ICalParameters, loc)
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part), exLoc); err == nil {
				def.ExDates = append(def.ExDates, t)
			}
		}
	}

	return def, nil
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

func isDateValue(value string, params map[string][]string) bool {
	if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(value, "T")
}

// paramLocation resolves a TZID parameter, falling back to loc when it is
// absent or unknown.
func paramLocation(params map[string][]string, loc *time.Location) *time.Location {
	tz, ok := params[string(ical.ParameterTzid)]
	if !ok || len(tz) == 0 || tz[0] == "" {
		return loc
	}
	zone, err := time.LoadLocation(strings.Trim(tz[0], `"`))
	if err != nil {
		slog.Debug("Unknown TZID, using default location", "tzid", tz[0], "error", err)
		return loc
	}
	return zone
}

func organizerName(value string, params map[string][]string) string {
	if cn, ok := params["CN"]; ok && len(cn) > 0 && cn[0] != "" {
		return strings.Trim(cn[0], `"`)
	}
	value = strings.TrimSpace(value)
	if len(value) > len("mailto:") && strings.EqualFold(value[:len("mailto:")], "mailto:") {
		return value[len("mailto:"):]
	}
	return value
}

func parseDate(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) < 8 {
		return time.Time{}, fmt.Errorf("invalid date value %q", v)
	}
	return time.ParseInLocation("20060102", v[:8], loc)
}

func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
