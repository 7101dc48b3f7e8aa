package scrape

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/cal-comb/app/event"
)

// Strategy locates table rows and cells for one family of markup
type Strategy struct {
	Name      string
	Rows      string
	Cells     string
	IndexAttr string // cell attribute holding the visual column position
}

// Strategies are tried in order until one yields at least one event
var Strategies = []Strategy{
	{
		Name:      "modern",
		Rows:      `[role="row"]`,
		Cells:     `[role="gridcell"], [role="columnheader"], [role="cell"]`,
		IndexAttr: "aria-colindex",
	},
	{
		Name:      "legacy",
		Rows:      ".notion-table-view-row, .notion-collection-item",
		Cells:     ".notion-table-view-cell",
		IndexAttr: "data-col-index",
	},
	{
		Name:  "table",
		Rows:  "table tr",
		Cells: "th, td",
	},
}

type Options struct {
	CalendarID string
	Location   *time.Location
	Debug      bool
	Now        func() time.Time
}

func (o Options) normalized() Options {
	if o.CalendarID == "" {
		o.CalendarID = event.DefaultCalendarID
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Metadata struct {
	SourceURL      string    `json:"sourceUrl"`
	Title          string    `json:"title,omitempty"`
	Strategy       string    `json:"strategy,omitempty"`
	RowsConsidered int       `json:"rowsConsidered"`
	Accepted       int       `json:"accepted"`
	Skipped        int       `json:"skipped"`
	RulesVersion   int       `json:"rulesVersion"`
	ScrapedAt      time.Time `json:"scrapedAt"`
}

type Result struct {
	Events   []event.Event         `json:"events"`
	Columns  []event.ColumnMapping `json:"columns"`
	Metadata Metadata              `json:"metadata"`
	Trace    *Trace                `json:"trace,omitempty"`
}

// Infer finds the event table in doc and converts its rows. An empty
// result is valid when no strategy finds anything.
func Infer(doc *goquery.Document, sourceURL string, opts Options) Result {
	opts = opts.normalized()
	trace := &Trace{}

	result := Result{
		Events:  []event.Event{},
		Columns: []event.ColumnMapping{},
		Metadata: Metadata{
			SourceURL:    sourceURL,
			Title:        strings.TrimSpace(doc.Find("title").First().Text()),
			RulesVersion: ColumnRulesVersion,
			ScrapedAt:    opts.Now(),
		},
	}

	for _, strategy := range Strategies {
		rows := extractRows(doc, strategy)
		if len(rows) == 0 {
			trace.Attempts = append(trace.Attempts, Attempt{Strategy: strategy.Name})
			continue
		}

		attempt := infer(rows, sourceURL, opts)
		attempt.trace.Strategy = strategy.Name
		trace.Attempts = append(trace.Attempts, Attempt{
			Strategy: strategy.Name,
			Rows:     len(rows),
			Events:   len(attempt.events),
		})

		if len(attempt.events) == 0 {
			continue
		}

		result.Events = attempt.events
		result.Columns = attempt.columns
		result.Metadata.Strategy = strategy.Name
		result.Metadata.RowsConsidered = attempt.considered
		result.Metadata.Accepted = len(attempt.events)
		result.Metadata.Skipped = attempt.considered - len(attempt.events)

		trace.Strategy = strategy.Name
		trace.Rows = attempt.trace.Rows
		trace.Columns = attempt.trace.Columns
		trace.SuccessRate = successRate(len(attempt.events), attempt.considered)
		break
	}

	if opts.Debug {
		result.Trace = trace
	}
	return result
}

type attemptResult struct {
	events     []event.Event
	columns    []event.ColumnMapping
	considered int
	trace      Trace
}

func infer(rows [][]string, sourceURL string, opts Options) attemptResult {
	var out attemptResult

	header := -1
	for i, cells := range rows {
		if !blank(cells) {
			header = i
			break
		}
		out.trace.Rows = append(out.trace.Rows, RowTrace{Index: i, Kind: RowEmpty, Reason: "no text before header"})
	}
	if header < 0 {
		return out
	}

	headers := make([]string, len(rows[header]))
	for i, text := range rows[header] {
		if text == "" {
			text = fmt.Sprintf("Column %d", i+1)
		}
		headers[i] = text
	}

	columns, reasons := ClassifyHeaders(headers)
	out.columns = columns
	out.trace.Columns = reasons
	out.trace.Rows = append(out.trace.Rows, RowTrace{Index: header, Kind: RowHeader, Reason: "first non-empty row", Cells: headers})

	for i := header + 1; i < len(rows); i++ {
		cells := rows[i]
		if blank(cells) {
			out.trace.Rows = append(out.trace.Rows, RowTrace{Index: i, Kind: RowEmpty, Reason: "all cells blank"})
			continue
		}

		out.considered++
		e, err := RowToEvent(cells, columns, sourceURL, opts)
		if err != nil {
			out.trace.Rows = append(out.trace.Rows, RowTrace{Index: i, Kind: RowRejected, Reason: err.Error(), Cells: cells})
			continue
		}

		out.events = append(out.events, e)
		out.trace.Rows = append(out.trace.Rows, RowTrace{
			Index:   i,
			Kind:    RowEvent,
			Reason:  fmt.Sprintf("title %q on %s", e.Title, e.DayKey()),
			Cells:   cells,
			EventID: e.ID,
		})
	}

	return out
}

type cell struct {
	index int
	text  string
}

func extractRows(doc *goquery.Document, strategy Strategy) [][]string {
	var rows [][]string

	doc.Find(strategy.Rows).Each(func(_ int, row *goquery.Selection) {
		var cells []cell
		row.Find(strategy.Cells).Each(func(pos int, s *goquery.Selection) {
			index := pos
			if strategy.IndexAttr != "" {
				if v, ok := s.Attr(strategy.IndexAttr); ok {
					if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
						index = n
					}
				}
			}
			cells = append(cells, cell{index: index, text: cleanText(s.Text())})
		})
		if len(cells) == 0 {
			return
		}

		slices.SortStableFunc(cells, func(a, b cell) int { return a.index - b.index })

		texts := make([]string, len(cells))
		for i, c := range cells {
			texts[i] = c.text
		}
		rows = append(rows, texts)
	})

	return rows
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
