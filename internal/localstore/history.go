package localstore

import (
	"time"
)

// History directions
const (
	DirectionPush  = "push"
	DirectionMerge = "merge"
)

// History results
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// HistoryEntry is one row of the sync_history table
type HistoryEntry struct {
	ID        int64
	Direction string
	Entity    string
	EntityID  string
	Result    string
	Detail    string
	DeviceID  string
	Timestamp time.Time
}

const maxHistoryRows = 5000

// RecordHistory appends entries and prunes old rows. Failures are returned
// but callers treat history as best-effort.
func (s *Store) RecordHistory(entries []HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.withWriteLock(func() error {
		tx, err := s.conn.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO sync_history (direction, entity, entity_id, result, detail, device_id, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			ts := e.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			if _, err := stmt.Exec(e.Direction, e.Entity, e.EntityID, e.Result, e.Detail, e.DeviceID,
				ts.UTC().Format(time.RFC3339Nano)); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(`
			DELETE FROM sync_history WHERE id NOT IN (
				SELECT id FROM sync_history ORDER BY id DESC LIMIT ?
			)
		`, maxHistoryRows); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// HistoryTail returns the last limit entries, oldest first.
func (s *Store) HistoryTail(limit int) ([]HistoryEntry, error) {
	rows, err := s.conn.Query(`
		SELECT id, direction, entity, entity_id, result, COALESCE(detail, ''), COALESCE(device_id, ''), timestamp
		FROM sync_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.Direction, &e.Entity, &e.EntityID, &e.Result, &e.Detail, &e.DeviceID, &ts); err != nil {
			return nil, err
		}
		parsed, err := parseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		e.Timestamp = parsed
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// parseTimestamp tries the formats sqlite and this package write.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: time.RFC3339Nano, Value: s}
}
