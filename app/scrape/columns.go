package scrape

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/lysyi3m/cal-comb/app/event"
)

// ColumnRulesVersion must be bumped whenever ColumnRules changes order or
// content, since either changes how existing pages classify.
const ColumnRulesVersion = 1

type ColumnRule struct {
	Type     event.ColumnType
	Property string
	Keywords []string
}

// ColumnRules are evaluated top to bottom; the first match wins
var ColumnRules = []ColumnRule{
	{event.ColumnDate, "date", []string{"date", "when", "day", "schedule", "due", "start", "end"}},
	{event.ColumnTitle, "title", []string{"title", "name", "event", "task", "subject", "what"}},
	{event.ColumnStatus, "status", []string{"status", "state", "progress"}},
	{event.ColumnLocation, "location", []string{"location", "where", "place", "venue", "room"}},
	{event.ColumnCategory, "category", []string{"category", "categories", "type", "tag", "tags", "label"}},
	{event.ColumnDescription, "description", []string{"description", "notes", "note", "details", "summary", "about"}},
	{event.ColumnTime, "time", []string{"time", "hour", "hours"}},
	{event.ColumnPriority, "priority", []string{"priority", "importance", "urgency"}},
}

var folder = cases.Fold()

func fold(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// ColumnReason explains how one header was classified
type ColumnReason struct {
	Index   int              `json:"index"`
	Header  string           `json:"header"`
	Type    event.ColumnType `json:"type"`
	Keyword string           `json:"keyword,omitempty"`
	Reason  string           `json:"reason"`
}

// ClassifyHeaders maps each header to a column type. The result for a
// header depends only on its own text and position.
func ClassifyHeaders(headers []string) ([]event.ColumnMapping, []ColumnReason) {
	mappings := make([]event.ColumnMapping, len(headers))
	reasons := make([]ColumnReason, len(headers))

	for i, header := range headers {
		rule, keyword, ok := matchRule(header)
		if !ok {
			property := fmt.Sprintf("custom_%d", i)
			mappings[i] = event.ColumnMapping{Index: i, Header: header, Type: event.ColumnCustom, Property: property}
			reasons[i] = ColumnReason{Index: i, Header: header, Type: event.ColumnCustom, Reason: "no rule matched, stored as " + property}
			continue
		}

		mappings[i] = event.ColumnMapping{Index: i, Header: header, Type: rule.Type, Property: rule.Property}
		reasons[i] = ColumnReason{
			Index:   i,
			Header:  header,
			Type:    rule.Type,
			Keyword: keyword,
			Reason:  fmt.Sprintf("matched keyword %q of %s rule", keyword, rule.Type),
		}
	}

	return mappings, reasons
}

func matchRule(header string) (ColumnRule, string, bool) {
	folded := fold(header)
	if folded == "" {
		return ColumnRule{}, "", false
	}
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	for _, rule := range ColumnRules {
		for _, keyword := range rule.Keywords {
			if strings.HasPrefix(folded, keyword) {
				return rule, keyword, true
			}
			for _, w := range words {
				if w == keyword {
					return rule, keyword, true
				}
			}
		}
	}
	return ColumnRule{}, "", false
}
