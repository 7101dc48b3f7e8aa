package scrape

import "math"

type RowKind string

const (
	RowHeader   RowKind = "header"
	RowEmpty    RowKind = "empty"
	RowEvent    RowKind = "event"
	RowRejected RowKind = "rejected"
)

type RowTrace struct {
	Index   int      `json:"index"`
	Kind    RowKind  `json:"kind"`
	Reason  string   `json:"reason"`
	Cells   []string `json:"cells,omitempty"`
	EventID string   `json:"eventId,omitempty"`
}

type Attempt struct {
	Strategy string `json:"strategy"`
	Rows     int    `json:"rows"`
	Events   int    `json:"events"`
}

// Trace records how Infer reached its result. It is only attached to the
// result in debug mode.
type Trace struct {
	Strategy    string         `json:"strategy"`
	Attempts    []Attempt      `json:"attempts"`
	Rows        []RowTrace     `json:"rows"`
	Columns     []ColumnReason `json:"columns"`
	SuccessRate float64        `json:"successRate"`
}

// successRate is accepted events over considered rows, as a percentage
// rounded to one decimal.
func successRate(accepted, considered int) float64 {
	if considered == 0 {
		return 0
	}
	return math.Round(float64(accepted)/float64(considered)*1000) / 10
}
