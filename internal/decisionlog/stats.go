package decisionlog

import (
	"context"
	"fmt"
	"time"
)

// Stats is the aggregate view over a (possibly windowed) set of events.
type Stats struct {
	Total               int
	ByType               map[string]int
	ByAction             map[string]int
	ByVerdict            map[string]int
	ByClassification     map[string]int
	AvgDurationMs        float64
	MinTimestamp         *time.Time
	MaxTimestamp         *time.Time
}

// Stats computes aggregate counts, average duration over non-null
// durations, and the min/max timestamp, all under the optional time
// window in filter (Start/End); other filter fields are honored too.
func (l *Logger) Stats(ctx context.Context, filter Filter) (Stats, error) {
	if err := l.Flush(ctx); err != nil {
		return Stats{}, err
	}

	where, args := filter.buildWhere()
	out := Stats{ByType: map[string]int{}, ByAction: map[string]int{}, ByVerdict: map[string]int{}, ByClassification: map[string]int{}}

	if err := scanCountGroup(ctx, l, "event_type", where, args, out.ByType); err != nil {
		return Stats{}, err
	}
	if err := scanCountGroup(ctx, l, "action", where, args, out.ByAction); err != nil {
		return Stats{}, err
	}
	if err := scanCountGroup(ctx, l, "verdict", where, args, out.ByVerdict); err != nil {
		return Stats{}, err
	}
	if err := scanCountGroup(ctx, l, "highest_classification", where, args, out.ByClassification); err != nil {
		return Stats{}, err
	}

	for _, n := range out.ByType {
		out.Total += n
	}

	row := l.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms), MIN(timestamp), MAX(timestamp) FROM decision_log"+where, args...)
	var avg any
	var minTs, maxTs any
	if err := row.Scan(&avg, &minTs, &maxTs); err != nil {
		return Stats{}, fmt.Errorf("decisionlog: stats aggregate: %w", err)
	}
	if v, ok := avg.(float64); ok {
		out.AvgDurationMs = v
	}
	if s, ok := minTs.(string); ok && s != "" {
		t, err := time.Parse(timeLayout, s)
		if err == nil {
			out.MinTimestamp = &t
		}
	}
	if s, ok := maxTs.(string); ok && s != "" {
		t, err := time.Parse(timeLayout, s)
		if err == nil {
			out.MaxTimestamp = &t
		}
	}
	return out, nil
}

func scanCountGroup(ctx context.Context, l *Logger, col, where string, args []any, into map[string]int) error {
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM decision_log%s GROUP BY %s", col, where, col), args...)
	if err != nil {
		return fmt.Errorf("decisionlog: stats group by %s: %w", col, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key any
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("decisionlog: scan stats group: %w", err)
		}
		if s, ok := key.(string); ok && s != "" {
			into[s] = count
		}
	}
	return nil
}
