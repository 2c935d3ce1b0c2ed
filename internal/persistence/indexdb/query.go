package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// Summary is a read-side digest of an index file.
type Summary struct {
	Ticks      int64 `json:"ticks"`
	Placements int64 `json:"placements"`
	Resets     int64 `json:"resets"`
	States     int64 `json:"machine_states"`
	Snapshots  int64 `json:"snapshots"`

	LastSnapshotTick int64  `json:"last_snapshot_tick"`
	LastSnapshotPath string `json:"last_snapshot_path,omitempty"`
}

type PlacementRow struct {
	Tick    int64  `json:"tick"`
	Machine string `json:"machine"`
	Pos     [3]int `json:"pos"`
	Fluid   string `json:"fluid"`
}

// OpenReader opens an existing index for offline inspection.
func OpenReader(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ReadSummary(ctx context.Context, db *sql.DB) (Summary, error) {
	var s Summary
	for _, q := range []struct {
		table string
		dst   *int64
	}{
		{"ticks", &s.Ticks},
		{"placements", &s.Placements},
		{"resets", &s.Resets},
		{"machine_states", &s.States},
		{"snapshots", &s.Snapshots},
	} {
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return Summary{}, fmt.Errorf("count %s: %w", q.table, err)
		}
	}
	err := db.QueryRowContext(ctx, `SELECT tick, path FROM snapshots ORDER BY tick DESC LIMIT 1`).
		Scan(&s.LastSnapshotTick, &s.LastSnapshotPath)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Summary{}, err
	}
	return s, nil
}

// RecentPlacements returns the newest placements first.
func RecentPlacements(ctx context.Context, db *sql.DB, limit int) ([]PlacementRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT tick, machine, x, y, z, fluid FROM placements ORDER BY tick DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlacementRow
	for rows.Next() {
		var r PlacementRow
		if err := rows.Scan(&r.Tick, &r.Machine, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Fluid); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
