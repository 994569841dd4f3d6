package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/aoa.report/internal/aoa"
)

// Fix is a stored triangulation result.
type Fix struct {
	ID         int64      `json:"id"`
	SessionID  string     `json:"session_id,omitempty"`
	Separation float64    `json:"separation"`
	Result     aoa.Result `json:"result"`
	Time       time.Time  `json:"time"`
}

// RecordFix stores a computed fix.
func (db *DB) RecordFix(ctx context.Context, sessionID string, separation float64, r aoa.Result, at time.Time) error {
	fallback := 0
	if r.Fallback3D {
		fallback = 1
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO fixes (session_id, separation, x, y, height, x3d, y3d, z3d, fallback3d, ts_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, separation, r.X, r.Y, r.Height,
		r.Point3D.X, r.Point3D.Y, r.Point3D.Z, fallback, unixSeconds(at),
	)
	if err != nil {
		return fmt.Errorf("insert fix: %w", err)
	}
	return nil
}

// RecentFixes returns up to limit fixes, newest first.
func (db *DB) RecentFixes(ctx context.Context, limit int) ([]Fix, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT fix_id, session_id, separation, x, y, height, x3d, y3d, z3d, fallback3d, ts_unix
		 FROM fixes ORDER BY ts_unix DESC, fix_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fixes []Fix
	for rows.Next() {
		var (
			f        Fix
			fallback int
			ts       float64
		)
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Separation,
			&f.Result.X, &f.Result.Y, &f.Result.Height,
			&f.Result.Point3D.X, &f.Result.Point3D.Y, &f.Result.Point3D.Z,
			&fallback, &ts); err != nil {
			return nil, err
		}
		f.Result.Fallback3D = fallback != 0
		f.Time = fromUnixSeconds(ts)
		fixes = append(fixes, f)
	}
	return fixes, rows.Err()
}
