package db

import (
	"context"
	"fmt"
)

// ProjectStatusCounts returns the number of projects per lifecycle status.
func (db *DB) ProjectStatusCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := db.Pool.Query(ctx, `SELECT status, COUNT(*) FROM projects GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("project status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan project status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// JobStatusCounts returns the number of jobs per queue status.
func (db *DB) JobStatusCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := db.Pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
