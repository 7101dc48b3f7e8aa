package event

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// OccurrenceID derives a stable identifier for one calendar-day instance of
// a source item. The same inputs always produce the same identifier.
func OccurrenceID(calendarID, stableKey string, day time.Time, multiDay bool) string {
	span := "single"
	if multiDay {
		span = "multi"
	}

	key := strings.Join([]string{calendarID, stableKey, day.Format(DayLayout), span}, "|")
	hash := sha256.Sum256([]byte(key))
	return "occ-" + hex.EncodeToString(hash[:8])
}

// StableKey prefers the source item's own identifier and falls back to its title
func StableKey(uid, title string) string {
	if uid = strings.TrimSpace(uid); uid != "" {
		return uid
	}
	return strings.TrimSpace(title)
}

// ContentHash fingerprints a source definition. A changed hash means the
// definition must be re-expanded.
func ContentHash(parts ...string) string {
	content := strings.Join(parts, "\x1f")
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
