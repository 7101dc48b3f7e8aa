package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lysyi3m/cal-comb/app/event"
)

// EventRepository stores each event as a JSON document keyed by calendar
type EventRepository struct {
	db *DB
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertEvent(x execer, e event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", e.ID, err)
	}

	_, err = x.Exec(`
		INSERT INTO events (id, calendar_id, day, title, data, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(calendar_id, id) DO UPDATE SET
			day = excluded.day,
			title = excluded.title,
			data = excluded.data,
			captured_at = excluded.captured_at
	`, e.ID, e.CalendarID, e.DayKey(), e.Title, string(data), formatTime(e.CapturedAt))
	if err != nil {
		return fmt.Errorf("failed to store event %s: %w", e.ID, err)
	}
	return nil
}

// ReplaceForCalendar swaps a calendar's events for a new set atomically
func (r *EventRepository) ReplaceForCalendar(calendarID string, events []event.Event) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM events WHERE calendar_id = ?`, calendarID); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}

	for _, e := range events {
		e.CalendarID = calendarID
		if err := insertEvent(tx, e); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *EventRepository) Upsert(e event.Event) error {
	return insertEvent(r.db, e)
}

func (r *EventRepository) Delete(calendarID, id string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM events WHERE calendar_id = ? AND id = ?`, calendarID, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete event: %w", err)
	}
	return n > 0, nil
}

func (r *EventRepository) ListByCalendar(calendarID string) ([]event.Event, error) {
	rows, err := r.db.Query(`
		SELECT data FROM events
		WHERE calendar_id = ?
		ORDER BY day, title, id
	`, calendarID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]event.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListAll groups every stored event by calendar
func (r *EventRepository) ListAll() (map[string][]event.Event, error) {
	rows, err := r.db.Query(`SELECT data FROM events ORDER BY calendar_id, day, title, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	byCalendar := make(map[string][]event.Event)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		byCalendar[e.CalendarID] = append(byCalendar[e.CalendarID], e)
	}
	return byCalendar, rows.Err()
}

func (r *EventRepository) Count(calendarID string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM events WHERE calendar_id = ?`, calendarID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func scanEvent(row rowScanner) (event.Event, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		return event.Event{}, fmt.Errorf("failed to scan event: %w", err)
	}

	var e event.Event
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return event.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return e, nil
}
