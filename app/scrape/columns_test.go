package scrape

import (
	"testing"

	"github.com/lysyi3m/cal-comb/app/event"
)

func TestClassifyHeaders(t *testing.T) {
	mappings, _ := ClassifyHeaders([]string{"Event Name", "When", "Where"})

	want := []event.ColumnType{event.ColumnTitle, event.ColumnDate, event.ColumnLocation}
	for i, typ := range want {
		if mappings[i].Type != typ {
			t.Errorf("Expected column %d '%s' to be %s, got %s", i, mappings[i].Header, typ, mappings[i].Type)
		}
	}
}

func TestClassifyHeadersRuleOrder(t *testing.T) {
	tests := []struct {
		header string
		want   event.ColumnType
	}{
		{"Start Time", event.ColumnDate},
		{"Due", event.ColumnDate},
		{"Task", event.ColumnTitle},
		{"STATUS", event.ColumnStatus},
		{"Venue", event.ColumnLocation},
		{"Tags", event.ColumnCategory},
		{"Notes", event.ColumnDescription},
		{"Time", event.ColumnTime},
		{"Priority", event.ColumnPriority},
		{"Attendees", event.ColumnCustom},
		{"", event.ColumnCustom},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			mappings, reasons := ClassifyHeaders([]string{tt.header})
			if mappings[0].Type != tt.want {
				t.Errorf("Expected %s, got %s (%s)", tt.want, mappings[0].Type, reasons[0].Reason)
			}
		})
	}
}

func TestClassifyHeadersCustomProperty(t *testing.T) {
	mappings, _ := ClassifyHeaders([]string{"Title", "Attendees"})
	if mappings[1].Property != "custom_1" {
		t.Errorf("Expected 'custom_1', got '%s'", mappings[1].Property)
	}
}

func TestClassifyHeadersIndependentOfOrder(t *testing.T) {
	headers := []string{"Name", "Date", "Location", "Status", "Owner"}
	reversed := []string{"Owner", "Status", "Location", "Date", "Name"}

	forward, _ := ClassifyHeaders(headers)
	backward, _ := ClassifyHeaders(reversed)

	byHeader := make(map[string]event.ColumnType)
	for _, m := range forward {
		byHeader[m.Header] = m.Type
	}
	for _, m := range backward {
		if byHeader[m.Header] != m.Type {
			t.Errorf("Expected '%s' to classify as %s regardless of order, got %s", m.Header, byHeader[m.Header], m.Type)
		}
	}
}
