package scrape

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"2025-03-14", "2025-03-14", true},
		{"Launch 2025-3-4 party", "2025-03-04", true},
		{"03/14/2025", "2025-03-14", true},
		{"2025/03/14", "2025-03-14", true},
		{"3/4/25", "2025-03-04", true},
		{"14.03.2025", "2025-03-14", true},
		{"2025.03.14", "2025-03-14", true},
		{"March 14, 2025", "2025-03-14", true},
		{"14 March 2025", "2025-03-14", true},
		{"Mar 14, 2025 3:00 PM", "2025-03-14", true},
		{"Sept. 2 2025", "2025-09-02", true},
		{"2025-01-15T10:00", "2025-01-15", true},
		{"2025-02-30", "", false},
		{"13/01/2025", "", false},
		{"sometime soon", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDate(tt.input, time.UTC)
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v (%v)", tt.ok, ok, got)
			}
			if ok && got.Format("2006-01-02") != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got.Format("2006-01-02"))
			}
		})
	}
}

func TestExtractTime(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"March 14, 2025 3:00 PM", "15:00", true},
		{"9:00 am - 10:30 am", "09:00 - 10:30", true},
		{"12:15 am", "00:15", true},
		{"14:45", "14:45", true},
		{"2025-01-15T10:00", "10:00", true},
		{"2025-01-15T09:30:00Z", "09:30", true},
		{"no time here", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ExtractTime(tt.input)
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v", tt.ok, ok)
			}
			if got.Range != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, got.Range)
			}
		})
	}
}
