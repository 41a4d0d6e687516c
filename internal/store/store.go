// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

// Package store records alignment runs in a SQLite database.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mkhts/rtkalign"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	*sql.DB
}

// Run is one recorded alignment
type Run struct {
	ID          string
	CreatedAt   time.Time
	RTKSource   string
	PoseSource  string
	NumPoses    int
	NumFixes    int
	Result      rtkalign.GeoResult
	CoarseShift float64
	CoarseErr   float64 // +Inf if no coarse candidate aligned
	FineShift   float64
	FineErr     float64
}

// CurvePoint is one evaluated shift of a stored run
type CurvePoint struct {
	Stage string // "coarse" or "fine"
	rtkalign.ShiftEval
}

// Open opens (or creates) the database at path and applies the schema
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db}, nil
}

// +Inf and NaN are stored as NULL
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.Inf(1)
	}
	return v.Float64
}

// SaveRun stores a run and its error curves. A new ID is assigned when run.ID is empty.
func (s *Store) SaveRun(ctx context.Context, run *Run, diag *rtkalign.Diagnostics) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if diag != nil {
		run.CoarseShift = diag.CoarseShift
		run.CoarseErr = diag.CoarseErr
		run.FineShift = diag.FineShift
		run.FineErr = diag.FineErr
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	q := run.Result.Quaternion
	t := run.Result.Translation
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, rtk_source, pose_source, num_poses, num_fixes, origin_lat, origin_lon,
			coarse_shift, coarse_err, fine_shift, fine_err, qx, qy, qz, qw, tx, ty, tz)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.RTKSource, run.PoseSource, run.NumPoses, run.NumFixes, run.Result.Origin[0], run.Result.Origin[1],
		run.CoarseShift, nullFloat(run.CoarseErr), run.FineShift, nullFloat(run.FineErr),
		q[0], q[1], q[2], q[3], t[0], t[1], t[2])
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %v", err)
	}

	if diag != nil {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO run_curve (run_id, stage, idx, shift, err, num_pairs)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return "", err
		}
		defer stmt.Close()
		for stage, curve := range map[string][]rtkalign.ShiftEval{"coarse": diag.Coarse, "fine": diag.Fine} {
			for i, c := range curve {
				if _, err := stmt.ExecContext(ctx, run.ID, stage, i, c.Shift, nullFloat(c.Err), c.NumPairs); err != nil {
					return "", fmt.Errorf("failed to insert curve point: %v", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return run.ID, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `
		SELECT id, created_at, rtk_source, pose_source, num_poses, num_fixes, origin_lat, origin_lon,
			coarse_shift, coarse_err, fine_shift, fine_err, qx, qy, qz, qw, tx, ty, tz
		FROM runs
		ORDER BY created_at DESC, rowid DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		var r Run
		var created float64
		var coarseErr, fineErr sql.NullFloat64
		q := &r.Result.Quaternion
		t := &r.Result.Translation
		if err := rows.Scan(&r.ID, &created, &r.RTKSource, &r.PoseSource, &r.NumPoses, &r.NumFixes,
			&r.Result.Origin[0], &r.Result.Origin[1], &r.CoarseShift, &coarseErr, &r.FineShift, &fineErr,
			&q[0], &q[1], &q[2], &q[3], &t[0], &t[1], &t[2]); err != nil {
			return nil, err
		}
		r.CreatedAt = rtkalign.StampToTime(created).UTC()
		r.CoarseErr = fromNull(coarseErr)
		r.FineErr = fromNull(fineErr)
		r.Result.Type = rtkalign.GEO_RESULT_TYPE
		r.Result.CoordinateSystem = rtkalign.COORDINATE_SYSTEM
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// Curve returns the evaluated shifts of a run, coarse stage first
func (s *Store) Curve(ctx context.Context, runID string) ([]CurvePoint, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT stage, shift, err, num_pairs
		FROM run_curve
		WHERE run_id = ?
		ORDER BY CASE stage WHEN 'coarse' THEN 0 ELSE 1 END, idx
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pts := []CurvePoint{}
	for rows.Next() {
		var p CurvePoint
		var e sql.NullFloat64
		if err := rows.Scan(&p.Stage, &p.Shift, &e, &p.NumPairs); err != nil {
			return nil, err
		}
		p.Err = fromNull(e)
		pts = append(pts, p)
	}
	return pts, rows.Err()
}
