package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/aoa.report/internal/telemetry"
)

// Write stores p. It implements telemetry.Sink.
func (db *DB) Write(ctx context.Context, p telemetry.Point) error {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	fields, err := json.Marshal(p.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO points (measurement, peer_mac, session_id, tags, fields, ts_unix)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.Measurement, p.Tags[telemetry.TagPeerMAC], p.Tags[telemetry.TagSessionID],
		string(tags), string(fields), unixSeconds(p.Time),
	)
	if err != nil {
		return fmt.Errorf("insert point: %w", err)
	}
	return nil
}

// SessionPoints returns the points recorded under sessionID, oldest first.
func (db *DB) SessionPoints(ctx context.Context, sessionID string, limit int) ([]telemetry.Point, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.QueryContext(ctx,
		`SELECT measurement, tags, fields, ts_unix FROM points
		 WHERE session_id = ? ORDER BY ts_unix ASC, point_id ASC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []telemetry.Point
	for rows.Next() {
		var (
			p            telemetry.Point
			tags, fields string
			ts           float64
		)
		if err := rows.Scan(&p.Measurement, &tags, &fields, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &p.Fields); err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
		p.Time = fromUnixSeconds(ts)
		points = append(points, p)
	}
	return points, rows.Err()
}

// SessionSummary describes one logging session.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Points    int       `json:"points"`
	First     time.Time `json:"first"`
	Last      time.Time `json:"last"`
}

// Sessions lists sessions with at least one point, most recent first.
func (db *DB) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT session_id, COUNT(*), MIN(ts_unix), MAX(ts_unix) FROM points
		 WHERE session_id != '' GROUP BY session_id ORDER BY MAX(ts_unix) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var first, last float64
		if err := rows.Scan(&s.SessionID, &s.Points, &first, &last); err != nil {
			return nil, err
		}
		s.First, s.Last = fromUnixSeconds(first), fromUnixSeconds(last)
		out = append(out, s)
	}
	return out, rows.Err()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9)).UTC()
}
