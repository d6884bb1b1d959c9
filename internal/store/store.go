// Package store persists announcement events and per-run track summaries
// to sqlite so field sessions can be reviewed afterwards. Announcements
// are rare (at most a couple per fusion cycle), so writes stay cheap
// enough to issue inline.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/capable-vision/percept/internal/announce"
	"github.com/capable-vision/percept/internal/monitoring"
)

//go:embed schema.sql
var schemaSQL string

// EventStore wraps the sqlite database holding percept run history.
type EventStore struct {
	*sql.DB
}

// Open opens (creating if needed) the event store at path. Use ":memory:"
// for tests.
func Open(path string) (*EventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize event store schema: %w", err)
	}

	monitoring.Logf("initialized event store at %s", path)
	return &EventStore{db}, nil
}

// AnnounceEvent is one persisted narration request.
type AnnounceEvent struct {
	RunID     string
	At        time.Time
	Direction string
	Label     string
	Text      string
	Level     string
	Priority  int
	Interrupt bool
}

// InsertAnnouncement records one narration request.
func (s *EventStore) InsertAnnouncement(runID string, at time.Time, u announce.Utterance) error {
	const stmt = `INSERT INTO announce_events (run_id, at_unix_ms, direction, label, text, level, priority, interrupted)
	              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	interrupted := 0
	if u.Interrupt {
		interrupted = 1
	}
	_, err := s.Exec(stmt, runID, at.UnixMilli(), string(u.Direction), u.Label, u.Text, u.Level.String(), u.Priority, interrupted)
	if err != nil {
		return fmt.Errorf("failed to insert announcement: %w", err)
	}
	return nil
}

// AnnouncementsForRun returns a run's narration history in time order.
func (s *EventStore) AnnouncementsForRun(runID string) ([]AnnounceEvent, error) {
	const q = `SELECT run_id, at_unix_ms, direction, label, text, level, priority, interrupted
	           FROM announce_events WHERE run_id = ? ORDER BY at_unix_ms`
	rows, err := s.Query(q, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query announcements: %w", err)
	}
	defer rows.Close()

	var out []AnnounceEvent
	for rows.Next() {
		var ev AnnounceEvent
		var atMs int64
		var interrupted int
		if err := rows.Scan(&ev.RunID, &atMs, &ev.Direction, &ev.Label, &ev.Text, &ev.Level, &ev.Priority, &interrupted); err != nil {
			return nil, fmt.Errorf("failed to scan announcement: %w", err)
		}
		ev.At = time.UnixMilli(atMs)
		ev.Interrupt = interrupted == 1
		out = append(out, ev)
	}
	return out, rows.Err()
}

// TrackSummary aggregates one track's lifetime within a run.
type TrackSummary struct {
	RunID     string
	TrackID   int64
	Label     string
	First     time.Time
	Last      time.Time
	Frames    int
	PeakSpeed float64
}

// UpsertTrackSummary inserts or extends a track's summary row.
func (s *EventStore) UpsertTrackSummary(sum TrackSummary) error {
	const stmt = `INSERT INTO track_summaries (run_id, track_id, label, first_unix_ms, last_unix_ms, frames, peak_speed)
	              VALUES (?, ?, ?, ?, ?, ?, ?)
	              ON CONFLICT(run_id, track_id) DO UPDATE SET
	                  label = excluded.label,
	                  last_unix_ms = excluded.last_unix_ms,
	                  frames = excluded.frames,
	                  peak_speed = MAX(peak_speed, excluded.peak_speed)`
	_, err := s.Exec(stmt, sum.RunID, sum.TrackID, sum.Label,
		sum.First.UnixMilli(), sum.Last.UnixMilli(), sum.Frames, sum.PeakSpeed)
	if err != nil {
		return fmt.Errorf("failed to upsert track summary: %w", err)
	}
	return nil
}

// TrackSummariesForRun returns a run's track summaries ordered by track id.
func (s *EventStore) TrackSummariesForRun(runID string) ([]TrackSummary, error) {
	const q = `SELECT run_id, track_id, label, first_unix_ms, last_unix_ms, frames, peak_speed
	           FROM track_summaries WHERE run_id = ? ORDER BY track_id`
	rows, err := s.Query(q, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track summaries: %w", err)
	}
	defer rows.Close()

	var out []TrackSummary
	for rows.Next() {
		var sum TrackSummary
		var firstMs, lastMs int64
		if err := rows.Scan(&sum.RunID, &sum.TrackID, &sum.Label, &firstMs, &lastMs, &sum.Frames, &sum.PeakSpeed); err != nil {
			return nil, fmt.Errorf("failed to scan track summary: %w", err)
		}
		sum.First = time.UnixMilli(firstMs)
		sum.Last = time.UnixMilli(lastMs)
		out = append(out, sum)
	}
	return out, rows.Err()
}
