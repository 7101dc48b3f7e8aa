package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lysyi3m/cal-comb/app/event"
)

type CalendarRepository struct {
	db *DB
}

func NewCalendarRepository(db *DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

const calendarColumns = `id, name, color, kind, url, enabled, last_sync, event_count, sync_frequency, filters`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCalendar(row rowScanner) (event.Calendar, error) {
	var cal event.Calendar
	var kind, filters string
	var lastSync sql.NullString

	err := row.Scan(&cal.ID, &cal.Name, &cal.Color, &kind, &cal.URL, &cal.Enabled,
		&lastSync, &cal.EventCount, &cal.SyncFrequency, &filters)
	if err != nil {
		return cal, err
	}

	cal.Kind = event.Kind(kind)
	if cal.LastSync, err = nullTime(lastSync); err != nil {
		return cal, err
	}
	if filters != "" {
		if err := json.Unmarshal([]byte(filters), &cal.Filters); err != nil {
			return cal, fmt.Errorf("invalid filters for calendar %s: %w", cal.ID, err)
		}
	}
	return cal, nil
}

// List returns calendars in sync order
func (r *CalendarRepository) List() ([]event.Calendar, error) {
	rows, err := r.db.Query(`SELECT ` + calendarColumns + ` FROM calendars ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	defer rows.Close()

	var calendars []event.Calendar
	for rows.Next() {
		cal, err := scanCalendar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calendar: %w", err)
		}
		calendars = append(calendars, cal)
	}

	return calendars, rows.Err()
}

func (r *CalendarRepository) Get(id string) (*event.Calendar, error) {
	row := r.db.QueryRow(`SELECT `+calendarColumns+` FROM calendars WHERE id = ?`, id)

	cal, err := scanCalendar(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get calendar: %w", err)
	}
	return &cal, nil
}

// Upsert inserts a calendar at the end of the sync order or replaces the
// descriptor of an existing one. Sync statistics are left untouched.
func (r *CalendarRepository) Upsert(cal event.Calendar) error {
	filters, err := json.Marshal(cal.Filters)
	if err != nil {
		return fmt.Errorf("failed to encode filters: %w", err)
	}
	if cal.Filters == nil {
		filters = []byte("[]")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	_, err = tx.Exec(`
		INSERT INTO calendars (id, name, color, kind, url, enabled, sync_frequency, filters, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM calendars), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			kind = excluded.kind,
			url = excluded.url,
			enabled = excluded.enabled,
			sync_frequency = excluded.sync_frequency,
			filters = excluded.filters,
			updated_at = excluded.updated_at
	`, cal.ID, cal.Name, cal.Color, string(cal.Kind), cal.URL, cal.Enabled, cal.SyncFrequency, string(filters), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert calendar: %w", err)
	}

	return tx.Commit()
}

func (r *CalendarRepository) UpdateSyncStats(id string, syncedAt time.Time, eventCount int) error {
	_, err := r.db.Exec(`
		UPDATE calendars
		SET last_sync = ?, event_count = ?, updated_at = ?
		WHERE id = ?
	`, formatTime(syncedAt), eventCount, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update sync stats: %w", err)
	}
	return nil
}

// UpdateDetails applies a manual edit and returns the updated calendar, or
// nil when it does not exist.
func (r *CalendarRepository) UpdateDetails(id string, update CalendarUpdate) (*event.Calendar, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cal, err := scanCalendar(tx.QueryRow(`SELECT `+calendarColumns+` FROM calendars WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get calendar: %w", err)
	}

	if update.Name != nil {
		cal.Name = *update.Name
	}
	if update.Color != nil {
		cal.Color = *update.Color
	}
	if update.Enabled != nil {
		cal.Enabled = *update.Enabled
	}
	if update.Filters != nil {
		cal.Filters = *update.Filters
	}

	filters, err := json.Marshal(cal.Filters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE calendars
		SET name = ?, color = ?, enabled = ?, filters = ?, updated_at = ?
		WHERE id = ?
	`, cal.Name, cal.Color, cal.Enabled, string(filters), formatTime(time.Now()), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update calendar: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit calendar update: %w", err)
	}
	return &cal, nil
}

// Delete removes the calendar together with its stored events
func (r *CalendarRepository) Delete(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM events WHERE calendar_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete calendar events: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM calendars WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete calendar: %w", err)
	}

	return tx.Commit()
}
