package scrape

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DatePattern recognizes one date notation. Build converts the submatches
// into year, month and day.
type DatePattern struct {
	Name  string
	Re    *regexp.Regexp
	Build func(m []string) (year, month, day int)
}

var months = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "jun": 6, "jul": 7, "aug": 8,
	"sep": 9, "sept": 9, "oct": 10, "nov": 11, "dec": 12,
}

const (
	fullMonths  = `january|february|march|april|may|june|july|august|september|october|november|december`
	shortMonths = `jan|feb|mar|apr|may|jun|jul|aug|sept|sep|oct|nov|dec`
)

// DatePatterns are tried in order. Slash dates without a leading four digit
// year are read month first, which misreads day-first regional dates.
var DatePatterns = []DatePattern{
	{
		Name: "iso",
		Re:   regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})(?:\b|T)`),
		Build: func(m []string) (int, int, int) {
			return atoi(m[1]), atoi(m[2]), atoi(m[3])
		},
	},
	{
		Name: "slash",
		Re:   regexp.MustCompile(`\b(\d{1,4})/(\d{1,2})/(\d{1,4})\b`),
		Build: func(m []string) (int, int, int) {
			if len(m[1]) == 4 {
				return atoi(m[1]), atoi(m[2]), atoi(m[3])
			}
			return year(m[3]), atoi(m[1]), atoi(m[2])
		},
	},
	{
		Name: "dot",
		Re:   regexp.MustCompile(`\b(\d{1,4})\.(\d{1,2})\.(\d{1,4})\b`),
		Build: func(m []string) (int, int, int) {
			if len(m[1]) == 4 {
				return atoi(m[1]), atoi(m[2]), atoi(m[3])
			}
			return year(m[3]), atoi(m[2]), atoi(m[1])
		},
	},
	{
		Name: "month-name",
		Re:   regexp.MustCompile(`(?i)\b(` + fullMonths + `)\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`),
		Build: func(m []string) (int, int, int) {
			return atoi(m[3]), months[strings.ToLower(m[1])], atoi(m[2])
		},
	},
	{
		Name: "day-month-name",
		Re:   regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(` + fullMonths + `),?\s+(\d{4})\b`),
		Build: func(m []string) (int, int, int) {
			return atoi(m[3]), months[strings.ToLower(m[2])], atoi(m[1])
		},
	},
	{
		Name: "short-month",
		Re:   regexp.MustCompile(`(?i)\b(` + shortMonths + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`),
		Build: func(m []string) (int, int, int) {
			return atoi(m[3]), months[strings.ToLower(m[1])], atoi(m[2])
		},
	},
}

// An hour may follow the T of an ISO datetime
var timePattern = regexp.MustCompile(`(?i)(?:\b|(?-i:T))(\d{1,2}):(\d{2})(?:\s*([ap])\.?m\.?)?`)

// DateMatch is a recognized date and the text it was read from
type DateMatch struct {
	Date    time.Time
	Text    string
	Pattern string
}

// MatchDate returns the first pattern match in text that forms a real
// calendar date.
func MatchDate(text string, loc *time.Location) (DateMatch, bool) {
	if loc == nil {
		loc = time.Local
	}
	for _, p := range DatePatterns {
		for _, m := range p.Re.FindAllStringSubmatch(text, -1) {
			y, mo, d := p.Build(m)
			if date, ok := validDate(y, mo, d, loc); ok {
				return DateMatch{Date: date, Text: m[0], Pattern: p.Name}, true
			}
		}
	}
	return DateMatch{}, false
}

func ParseDate(text string, loc *time.Location) (time.Time, bool) {
	m, ok := MatchDate(text, loc)
	return m.Date, ok
}

// TimeMatch is the time-of-day portion found in free text
type TimeMatch struct {
	Range string
	Texts []string
}

// ExtractTime finds up to two HH:MM[ am/pm] values and renders them in
// 24-hour form, as "09:00" or "09:00 - 10:30".
func ExtractTime(text string) (TimeMatch, bool) {
	var parts, texts []string
	for _, m := range timePattern.FindAllStringSubmatch(text, 2) {
		hour, minute := atoi(m[1]), atoi(m[2])
		switch strings.ToLower(m[3]) {
		case "p":
			if hour < 12 {
				hour += 12
			}
		case "a":
			if hour == 12 {
				hour = 0
			}
		}
		if hour > 23 || minute > 59 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%02d:%02d", hour, minute))
		texts = append(texts, strings.TrimPrefix(m[0], "T"))
	}
	if len(parts) == 0 {
		return TimeMatch{}, false
	}
	return TimeMatch{Range: strings.Join(parts, " - "), Texts: texts}, true
}

func validDate(y, m, d int, loc *time.Location) (time.Time, bool) {
	if y < 1 || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	date := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	if date.Year() != y || int(date.Month()) != m || date.Day() != d {
		return time.Time{}, false
	}
	return date, true
}

func year(s string) int {
	y := atoi(s)
	if len(s) <= 2 {
		y += 2000
	}
	return y
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
