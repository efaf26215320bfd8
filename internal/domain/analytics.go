package domain

import "time"

// TimeBucket selects the granularity of trend aggregation.
type TimeBucket string

const (
	BucketDay   TimeBucket = "day"
	BucketWeek  TimeBucket = "week"
	BucketMonth TimeBucket = "month"
)

// Valid reports whether the bucket is a supported granularity.
func (b TimeBucket) Valid() bool {
	switch b {
	case BucketDay, BucketWeek, BucketMonth:
		return true
	}
	return false
}

// AnalyticsFilter narrows aggregate queries over verification logs.
// The zero value means no filtering.
type AnalyticsFilter struct {
	// Kind restricts results to one entity kind when non-empty.
	Kind EntityKind
	// Since excludes logs created before the given instant when set.
	Since time.Time
}

// ScoreBucket is one bar of a score-distribution histogram.
type ScoreBucket struct {
	// Low and High are the inclusive bounds of the bucket.
	Low   int   `json:"low"`
	High  int   `json:"high"`
	Count int64 `json:"count"`
}

// FlagCount is the frequency of one canonical flag across logs.
// Near-duplicate flag strings are grouped under a single canonical form.
type FlagCount struct {
	Flag  string `json:"flag"`
	Count int64  `json:"count"`
}

// TrendPoint is one time-bucketed aggregate of verification activity.
type TrendPoint struct {
	Start    time.Time `json:"start"`
	Count    int64     `json:"count"`
	AvgScore float64   `json:"avg_score"`
}
