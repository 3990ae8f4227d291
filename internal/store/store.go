// Package store persists alert events and calibration outcomes to sqlite so
// sessions survive restarts and the API can serve history.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/posture.report/internal/config"
	"github.com/banshee-data/posture.report/internal/posture"
)

// Store wraps the journal database. It implements posture.Journal.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; the pipeline is the only writer but the API
	// reads concurrently, so serialize through a single connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for migrations tooling.
func (s *Store) DB() *sql.DB { return s.db }

// RecordEvent appends one alert event to the journal.
func (s *Store) RecordEvent(ev posture.Event) error {
	_, err := s.db.Exec(
		`INSERT INTO alert_events (metric, kind, severity, occurred_at_unix) VALUES (?, ?, ?, ?)`,
		string(ev.Metric), string(ev.Kind), ev.Severity, unixSeconds(ev.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert event: %w", err)
	}
	return nil
}

// RecordCalibration appends one calibration outcome to the journal.
func (s *Store) RecordCalibration(rec posture.CalibrationRecord) error {
	var refs any
	if rec.References != nil {
		data, err := json.Marshal(rec.References)
		if err != nil {
			return fmt.Errorf("failed to encode references: %w", err)
		}
		refs = string(data)
	}
	_, err := s.db.Exec(
		`INSERT INTO calibrations (accepted, quality, reason, references_json, captured_at_unix)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Accepted, rec.Quality, rec.Reason, refs, unixSeconds(rec.CapturedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert calibration: %w", err)
	}
	return nil
}

// StoredEvent is an alert event read back from the journal.
type StoredEvent struct {
	EventID    int64             `json:"event_id"`
	Metric     config.MetricID   `json:"metric"`
	Kind       posture.EventKind `json:"kind"`
	Severity   float64           `json:"severity"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// RecentEvents returns the newest events, optionally filtered by metric,
// most recent first.
func (s *Store) RecentEvents(metric config.MetricID, limit int) ([]StoredEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT event_id, metric, kind, severity, occurred_at_unix FROM alert_events`
	args := []any{}
	if metric != "" {
		query += ` WHERE metric = ?`
		args = append(args, string(metric))
	}
	query += ` ORDER BY occurred_at_unix DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		var occurredUnix float64
		if err := rows.Scan(&ev.EventID, &ev.Metric, &ev.Kind, &ev.Severity, &occurredUnix); err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}
		ev.OccurredAt = fromUnixSeconds(occurredUnix)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// StoredCalibration is a calibration outcome read back from the journal.
type StoredCalibration struct {
	CalibrationID int64                       `json:"calibration_id"`
	Accepted      bool                        `json:"accepted"`
	Quality       float64                     `json:"quality"`
	Reason        string                      `json:"reason,omitempty"`
	References    map[config.MetricID]float64 `json:"references,omitempty"`
	CapturedAt    time.Time                   `json:"captured_at"`
}

// LatestCalibration returns the most recent accepted calibration, or nil if
// none has ever been committed. Used to restore the baseline on startup.
func (s *Store) LatestCalibration() (*StoredCalibration, error) {
	row := s.db.QueryRow(
		`SELECT calibration_id, accepted, quality, reason, references_json, captured_at_unix
		 FROM calibrations WHERE accepted = 1
		 ORDER BY captured_at_unix DESC LIMIT 1`,
	)

	var c StoredCalibration
	var reason, refs sql.NullString
	var capturedUnix float64
	err := row.Scan(&c.CalibrationID, &c.Accepted, &c.Quality, &reason, &refs, &capturedUnix)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest calibration: %w", err)
	}
	c.Reason = reason.String
	c.CapturedAt = fromUnixSeconds(capturedUnix)
	if refs.Valid && refs.String != "" {
		if err := json.Unmarshal([]byte(refs.String), &c.References); err != nil {
			return nil, fmt.Errorf("failed to decode references: %w", err)
		}
	}
	return &c, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second)))
}
