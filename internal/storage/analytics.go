package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/edufund/veriflow/internal/domain"
)

// scoreBucketWidth is the fixed width of score-distribution buckets.
const scoreBucketWidth = 10

// ScoreHistogram aggregates AI scores into fixed-width buckets over the
// filtered logs. All ten buckets are returned, zero-filled, so charts
// keep a stable shape.
func (db *DB) ScoreHistogram(ctx context.Context, filter domain.AnalyticsFilter) ([]domain.ScoreBucket, error) {
	where, args := analyticsWhere(filter)
	rows, err := db.pool.Query(ctx,
		`SELECT LEAST(ai_score / `+strconv.Itoa(scoreBucketWidth)+`, 9) AS bucket, COUNT(*)
		 FROM verification_logs`+where+`
		 GROUP BY bucket ORDER BY bucket`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: score histogram: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var bucket int
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("storage: scan histogram bucket: %w", err)
		}
		counts[bucket] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: score histogram: %w", err)
	}
	return fillScoreBuckets(counts), nil
}

// FlagCounts aggregates flag frequency over the filtered logs. The
// per-log flag arrays are unnested in SQL; near-duplicate grouping
// happens in Go so it matches the in-memory store.
func (db *DB) FlagCounts(ctx context.Context, filter domain.AnalyticsFilter) ([]domain.FlagCount, error) {
	where, args := analyticsWhere(filter)
	rows, err := db.pool.Query(ctx,
		`SELECT jsonb_array_elements_text(analysis -> 'flags')
		 FROM verification_logs`+where+`
		 AND jsonb_typeof(analysis -> 'flags') = 'array'`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: flag counts: %w", err)
	}
	defer rows.Close()

	var flags []string
	for rows.Next() {
		var flag string
		if err := rows.Scan(&flag); err != nil {
			return nil, fmt.Errorf("storage: scan flag: %w", err)
		}
		flags = append(flags, flag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: flag counts: %w", err)
	}
	return groupFlags(flags), nil
}

// Trend aggregates verification volume and average score per time
// bucket, oldest first.
func (db *DB) Trend(ctx context.Context, filter domain.AnalyticsFilter, bucket domain.TimeBucket) ([]domain.TrendPoint, error) {
	if !bucket.Valid() {
		bucket = domain.BucketDay
	}
	where, args := analyticsWhere(filter)
	args = append(args, string(bucket))
	trunc := "$" + strconv.Itoa(len(args))

	rows, err := db.pool.Query(ctx,
		`SELECT date_trunc(`+trunc+`, created_at) AS bucket_start, COUNT(*), AVG(ai_score)
		 FROM verification_logs`+where+`
		 GROUP BY bucket_start ORDER BY bucket_start ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: trend: %w", err)
	}
	defer rows.Close()

	var points []domain.TrendPoint
	for rows.Next() {
		var p domain.TrendPoint
		if err := rows.Scan(&p.Start, &p.Count, &p.AvgScore); err != nil {
			return nil, fmt.Errorf("storage: scan trend point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// analyticsWhere builds the shared WHERE clause for aggregate queries.
// The returned clause always starts with " WHERE" so callers can append
// further conditions with AND.
func analyticsWhere(filter domain.AnalyticsFilter) (string, []any) {
	where := " WHERE TRUE"
	var args []any
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where += " AND entity_kind = $" + strconv.Itoa(len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where += " AND created_at >= $" + strconv.Itoa(len(args))
	}
	return where, args
}

// fillScoreBuckets expands sparse bucket counts into the full ten-bar
// histogram. The top bucket is widened to include 100.
func fillScoreBuckets(counts map[int]int64) []domain.ScoreBucket {
	buckets := make([]domain.ScoreBucket, 10)
	for i := range buckets {
		low := i * scoreBucketWidth
		high := low + scoreBucketWidth - 1
		if i == 9 {
			high = 100
		}
		buckets[i] = domain.ScoreBucket{Low: low, High: high, Count: counts[i]}
	}
	return buckets
}
