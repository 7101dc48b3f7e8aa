package scrape

import (
	"bytes"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/lysyi3m/cal-comb/app/event"
)

const defaultTitle = "Event"

var metadataPrefixes = []string{"created", "updated", "edited", "notion", "workspace", "share", "export"}

var countLine = regexp.MustCompile(`(?i)^\d+\s+(views?|comments?|likes?)\b`)

var titleTrim = " \t-–—:;,.|•·()[]"

// PageText returns the readable text of a page, one block per line.
// Readability narrows the page to its main content first; the whole body
// is used when it finds nothing.
func PageText(html []byte, pageURL string) string {
	var parsed *url.URL
	if u, err := url.Parse(pageURL); err == nil {
		parsed = u
	}

	source := html
	article, err := readability.FromReader(bytes.NewReader(html), parsed)
	if err != nil {
		slog.Debug("Readability extraction failed, using body text", "error", err)
	} else if strings.TrimSpace(article.TextContent) != "" {
		source = []byte(article.Content)
	}

	if text := blockText(source); text != "" {
		return text
	}
	if len(source) != len(html) {
		return blockText(html)
	}
	return ""
}

func blockText(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()

	var lines []string
	doc.Find("p, li, div, span, h1, h2, h3, h4, td").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		if text := cleanText(s.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		return strings.TrimSpace(doc.Find("body").Text())
	}
	return strings.Join(lines, "\n")
}

// TextEvents scans free text line by line and turns each line carrying a
// date into an event. It is a last resort when no table is found.
func TextEvents(text, sourceURL string, opts Options) []event.Event {
	opts = opts.normalized()
	events := make([]event.Event, 0)

	for _, line := range strings.Split(text, "\n") {
		line = cleanText(line)
		if line == "" || isMetadataLine(line) {
			continue
		}

		match, ok := MatchDate(line, opts.Location)
		if !ok {
			continue
		}

		title := strings.Replace(line, match.Text, " ", 1)
		timeRange := ""
		if tm, ok := ExtractTime(title); ok {
			timeRange = tm.Range
			for _, t := range tm.Texts {
				title = strings.Replace(title, t, " ", 1)
			}
		}
		title = cleanTitle(title)
		if title == "" {
			title = defaultTitle
		}

		e, err := event.New(event.Event{
			ID:         event.OccurrenceID(opts.CalendarID, line, match.Date, false),
			Title:      title,
			Date:       match.Date,
			TimeRange:  timeRange,
			SourceKind: event.KindPage,
			CalendarID: opts.CalendarID,
			OriginURL:  sourceURL,
			CapturedAt: opts.Now(),
			Properties: map[string]string{"line": line},
		})
		if err != nil {
			continue
		}
		events = append(events, e)
	}

	return events
}

func isMetadataLine(line string) bool {
	folded := fold(line)
	for _, prefix := range metadataPrefixes {
		if strings.HasPrefix(folded, prefix) {
			return true
		}
	}
	return countLine.MatchString(line)
}

func cleanTitle(s string) string {
	return strings.Trim(cleanText(s), titleTrim)
}
