package decisionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// wireEvent is the JSON Lines export shape: camelCase fields, nullable
// fields omitted.
type wireEvent struct {
	ID                     int64           `json:"id"`
	EventType              string          `json:"eventType"`
	Timestamp              string          `json:"timestamp"`
	RequestID              *string         `json:"requestId,omitempty"`
	SessionKey             *string         `json:"sessionKey,omitempty"`
	Action                 *string         `json:"action,omitempty"`
	Verdict                *string         `json:"verdict,omitempty"`
	Destination            *string         `json:"destination,omitempty"`
	Target                 *string         `json:"target,omitempty"`
	ContentHash            *string         `json:"contentHash,omitempty"`
	ContentLength          *int            `json:"contentLength,omitempty"`
	FlagCount              *int            `json:"flagCount,omitempty"`
	HighestClassification  *string         `json:"highestClassification,omitempty"`
	DurationMs             *int64          `json:"durationMs,omitempty"`
	Operator               *string         `json:"operator,omitempty"`
	Reason                 *string         `json:"reason,omitempty"`
	PreviousState          *string         `json:"previousState,omitempty"`
	NewState               *string         `json:"newState,omitempty"`
	FlagDetails            json.RawMessage `json:"flagDetails,omitempty"`
	Metadata               json.RawMessage `json:"metadata,omitempty"`
	Signature              string          `json:"signature"`
}

func toWireEvent(ev Event) wireEvent {
	return wireEvent{
		ID: ev.ID, EventType: string(ev.EventType), Timestamp: ev.Timestamp.UTC().Format(timeLayout),
		RequestID: ev.RequestID, SessionKey: ev.SessionKey, Action: ev.Action, Verdict: ev.Verdict,
		Destination: ev.Destination, Target: ev.Target, ContentHash: ev.ContentHash,
		ContentLength: ev.ContentLength, FlagCount: ev.FlagCount,
		HighestClassification: ev.HighestClassification, DurationMs: ev.DurationMs,
		Operator: ev.Operator, Reason: ev.Reason, PreviousState: ev.PreviousState, NewState: ev.NewState,
		FlagDetails: ev.FlagDetails, Metadata: ev.Metadata, Signature: ev.Signature,
	}
}

// ExportToFile writes matching rows as one JSON object per line,
// creating parent directories as needed.
func (l *Logger) ExportToFile(ctx context.Context, path string, filter Filter) (int, error) {
	events, err := l.Query(ctx, filter)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("decisionlog: create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("decisionlog: create export file: %w", err)
	}
	defer f.Close()

	for _, ev := range events {
		line, err := json.Marshal(toWireEvent(ev))
		if err != nil {
			return 0, fmt.Errorf("decisionlog: marshal export row: %w", err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return 0, fmt.Errorf("decisionlog: write export row: %w", err)
		}
	}
	return len(events), nil
}
