package decisionlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

func insertEvent(ctx context.Context, tx *sql.Tx, ev Event) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO decision_log
		(event_type, timestamp, request_id, session_key, action, verdict, destination, target,
		 content_hash, content_length, flag_count, highest_classification, duration_ms, operator,
		 reason, previous_state, new_state, flag_details, metadata, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventType, ev.Timestamp.UTC().Format(timeLayout), ev.RequestID, ev.SessionKey, ev.Action,
		ev.Verdict, ev.Destination, ev.Target, ev.ContentHash, ev.ContentLength, ev.FlagCount,
		ev.HighestClassification, ev.DurationMs, ev.Operator, ev.Reason, ev.PreviousState,
		ev.NewState, nullIfEmpty(ev.FlagDetails), nullIfEmpty(ev.Metadata), ev.Signature)
	return err
}

func nullIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// Filter selects decision_log rows by any subset of the named fields.
type Filter struct {
	Type           *EventType
	Types          []EventType
	Action         *string
	Verdict        *string
	Destination    *string
	Classification *string
	Operator       *string
	Start          *time.Time
	End            *time.Time
	SessionKey     *string
	RequestID      *string

	Limit  int
	Offset int

	OrderBy   string // "timestamp", "event_type", or "action"; defaults to "timestamp"
	OrderDesc bool
}

func (f Filter) buildWhere() (string, []any) {
	var clauses []string
	var args []any

	if f.Type != nil {
		clauses = append(clauses, "event_type = ?")
		args = append(args, string(*f.Type))
	}
	if len(f.Types) > 0 {
		placeholders := make([]string, len(f.Types))
		for i, t := range f.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		clauses = append(clauses, "event_type IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.Action != nil {
		clauses = append(clauses, "action = ?")
		args = append(args, *f.Action)
	}
	if f.Verdict != nil {
		clauses = append(clauses, "verdict = ?")
		args = append(args, *f.Verdict)
	}
	if f.Destination != nil {
		clauses = append(clauses, "destination = ?")
		args = append(args, *f.Destination)
	}
	if f.Classification != nil {
		clauses = append(clauses, "highest_classification = ?")
		args = append(args, *f.Classification)
	}
	if f.Operator != nil {
		clauses = append(clauses, "operator = ?")
		args = append(args, *f.Operator)
	}
	if f.SessionKey != nil {
		clauses = append(clauses, "session_key = ?")
		args = append(args, *f.SessionKey)
	}
	if f.RequestID != nil {
		clauses = append(clauses, "request_id = ?")
		args = append(args, *f.RequestID)
	}
	if f.Start != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, f.Start.UTC().Format(timeLayout))
	}
	if f.End != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, f.End.UTC().Format(timeLayout))
	}

	// Every predicate is built the same way, a slice of "col = ?" clauses
	// joined with AND, so an empty filter and a single-predicate filter
	// both produce valid SQL without string-prefix special-casing.
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (f Filter) orderClause() string {
	col := "timestamp"
	switch f.OrderBy {
	case "event_type":
		col = "event_type"
	case "action":
		col = "action"
	}
	dir := "ASC"
	if f.OrderDesc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir)
}

const eventSelect = `SELECT id, event_type, timestamp, request_id, session_key, action, verdict, destination,
	target, content_hash, content_length, flag_count, highest_classification, duration_ms, operator,
	reason, previous_state, new_state, flag_details, metadata, signature FROM decision_log`

// Query returns matching rows, flushing the pending buffer first so
// recently-logged-but-not-yet-flushed events are visible.
func (l *Logger) Query(ctx context.Context, filter Filter) ([]Event, error) {
	if err := l.Flush(ctx); err != nil {
		return nil, err
	}

	where, args := filter.buildWhere()
	query := eventSelect + where + filter.orderClause()
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("decisionlog: query: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Count returns the number of rows matching filter, ignoring Limit/Offset.
func (l *Logger) Count(ctx context.Context, filter Filter) (int, error) {
	if err := l.Flush(ctx); err != nil {
		return 0, err
	}
	where, args := filter.buildWhere()
	var n int
	row := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decision_log"+where, args...)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("decisionlog: count: %w", err)
	}
	return n, nil
}

// VerifySignature reports whether ev's signature matches a freshly
// recomputed one, detecting any post-write tampering.
func (l *Logger) VerifySignature(ev Event) bool {
	return l.signer.verify(ev)
}

// ExportKey returns the signer's key as base64, for out-of-process
// signature verification.
func (l *Logger) ExportKey() string {
	return l.signer.exportKey()
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var ev Event
	var eventType, timestamp string
	var flagDetails, metadata sql.NullString
	if err := rows.Scan(&ev.ID, &eventType, &timestamp, &ev.RequestID, &ev.SessionKey, &ev.Action,
		&ev.Verdict, &ev.Destination, &ev.Target, &ev.ContentHash, &ev.ContentLength, &ev.FlagCount,
		&ev.HighestClassification, &ev.DurationMs, &ev.Operator, &ev.Reason, &ev.PreviousState,
		&ev.NewState, &flagDetails, &metadata, &ev.Signature); err != nil {
		return Event{}, fmt.Errorf("decisionlog: scan event: %w", err)
	}
	ev.EventType = EventType(eventType)
	ev.Timestamp, _ = time.Parse(timeLayout, timestamp)
	if flagDetails.Valid {
		ev.FlagDetails = []byte(flagDetails.String)
	}
	if metadata.Valid {
		ev.Metadata = []byte(metadata.String)
	}
	return ev, nil
}

// PurgeOldEntries deletes rows older than retention_days (default 90)
// and returns the count removed.
func (l *Logger) PurgeOldEntries(ctx context.Context) (int64, error) {
	if err := l.Flush(ctx); err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-time.Duration(l.cfg.RetentionDays) * 24 * time.Hour).Format(timeLayout)
	res, err := l.db.ExecContext(ctx, "DELETE FROM decision_log WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("decisionlog: purge: %w", err)
	}
	return res.RowsAffected()
}
