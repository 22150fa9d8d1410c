package hook

import (
	"context"

	"github.com/sentrywatch/watchdog/internal/decisionlog"
)

// GetQuarantine returns a held request by id, or ok=false if unknown.
func (h *Hook) GetQuarantine(id string) (*QuarantineEntry, bool) {
	return h.quarantine.get(id)
}

// ListPendingQuarantines returns all entries still pending.
func (h *Hook) ListPendingQuarantines() []*QuarantineEntry {
	return h.quarantine.listPending()
}

// ApproveQuarantine transitions id from pending to approved and mints a
// fresh approval token. A second attempt on an already-resolved entry
// returns ok=false, per the terminal-state invariant.
func (h *Hook) ApproveQuarantine(ctx context.Context, id, approver string) (token string, ok bool) {
	entry, ok := h.quarantine.approve(id, approver)
	if !ok {
		return "", false
	}
	token = h.mintToken(entry.RequestID, entry.ResolvedAt.UnixMilli(), entry.HighestClassification)

	operator := approver
	target := id
	h.log(ctx, decisionlog.Event{
		EventType: decisionlog.EventQuarantineApproved,
		Operator:  &operator,
		Target:    &target,
	})
	return token, true
}

// RejectQuarantine transitions id from pending to rejected.
func (h *Hook) RejectQuarantine(ctx context.Context, id, rejector string) bool {
	if !h.quarantine.reject(id, rejector) {
		return false
	}
	operator := rejector
	target := id
	h.log(ctx, decisionlog.Event{
		EventType: decisionlog.EventQuarantineRejected,
		Operator:  &operator,
		Target:    &target,
	})
	return true
}
