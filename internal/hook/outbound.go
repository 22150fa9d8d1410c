package hook

import (
	"context"
	"fmt"
	"time"

	"github.com/sentrywatch/watchdog/internal/classify"
	"github.com/sentrywatch/watchdog/internal/decisionlog"
	"github.com/sentrywatch/watchdog/internal/scanner"
)

// OutboundRequest is the caller-supplied payload for ScanOutbound.
type OutboundRequest struct {
	Content     string
	Destination classify.Destination
	Target      string
	RequestID   string
	SessionKey  string
}

// OutboundResult is what a host gateway acts on. Allow implies a
// non-empty ApprovalToken, quarantine implies a non-empty QuarantineID,
// block implies neither.
type OutboundResult struct {
	Action                 classify.Action
	ApprovalToken          string
	QuarantineID           string
	Verdict                string
	Flags                  []scanner.Flag
	HighestClassification  classify.Classification
	AgentUsed              bool
	Error                  string
}

// ScanOutbound runs the full pipeline: scan -> (optional agent) ->
// decision -> log. It never throws: any internal or external failure
// degrades to a fail-closed synthetic quarantine, never allow.
func (h *Hook) ScanOutbound(ctx context.Context, req OutboundRequest) (res OutboundResult) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = newRequestID()
	}

	defer func() {
		if r := recover(); r != nil {
			res = h.failClosed(ctx, req, fmt.Sprintf("panic: %v", r), start)
		}
	}()

	if !h.initialized {
		return h.failClosed(ctx, req, "hook not initialized", start)
	}
	h.scans.Add(1)

	if h.killSwitchOn() {
		h.blocks.Add(1)
		res = OutboundResult{Action: classify.ActionBlock, Verdict: "blocked"}
		h.logOutbound(ctx, req, res, start)
		return res
	}

	if !h.cfg.OutboundEnabled {
		return OutboundResult{Action: classify.ActionAllow, ApprovalToken: h.mintToken(req.RequestID, start.UnixMilli(), classify.Public)}
	}

	scanResult := h.scanner.Scan(req.Content, nil)
	if scanResult.Verdict == "error" {
		return h.failClosed(ctx, req, scanResult.Error, start)
	}

	highest := scanResult.HighestClassification
	agentUsed := false
	if h.agent != nil && scanResult.FlagCount > 0 {
		agentRes := h.agent.Analyze(ctx, scanResult, req.Content)
		highest = agentRes.Overall
		agentUsed = agentRes.AgentUsed
	}

	posture := h.GetPosture()
	action := decide(scanResult.FlagCount > 0, highest, req.Destination, posture)

	res = OutboundResult{
		Verdict:               scanResult.Verdict,
		Flags:                 scanResult.Flags,
		HighestClassification: highest,
		AgentUsed:             agentUsed,
		Action:                action,
	}

	switch action {
	case classify.ActionAllow:
		res.ApprovalToken = h.mintToken(req.RequestID, start.UnixMilli(), highest)
	case classify.ActionQuarantine:
		h.quarantines.Add(1)
		entry := &QuarantineEntry{
			ID:                    newQuarantineID(),
			RequestID:             req.RequestID,
			ContentHash:           h.hashContent(req.Content),
			ContentLength:         len(req.Content),
			Destination:           req.Destination,
			Target:                req.Target,
			Flags:                 scanResult.Flags,
			HighestClassification: highest,
			CreatedAt:             time.Now().UTC(),
			Status:                QuarantinePending,
		}
		h.quarantine.create(entry)
		res.QuarantineID = entry.ID
		h.recordQuarantineTransition(entry.ID, string(decisionlog.EventQuarantineCreated), "")
	case classify.ActionBlock:
		h.blocks.Add(1)
	}

	h.logOutbound(ctx, req, res, start)
	return res
}

func (h *Hook) killSwitchOn() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.killSwitch
}

// failClosed produces a synthetic quarantine result: an err-prefixed id,
// verdict=error, zero flags, never upgraded to allow.
func (h *Hook) failClosed(ctx context.Context, req OutboundRequest, message string, start time.Time) OutboundResult {
	h.errs.Add(1)
	h.quarantines.Add(1)
	id := "err-" + newQuarantineID()[len("quar-"):]
	entry := &QuarantineEntry{
		ID:            id,
		RequestID:     req.RequestID,
		ContentHash:   h.hashContent(req.Content),
		ContentLength: len(req.Content),
		Destination:   req.Destination,
		Target:        req.Target,
		CreatedAt:     time.Now().UTC(),
		Status:        QuarantinePending,
	}
	h.quarantine.create(entry)

	res := OutboundResult{Action: classify.ActionQuarantine, QuarantineID: id, Verdict: "error", Error: message}
	h.logOutbound(ctx, req, res, start)
	return res
}

func (h *Hook) logOutbound(ctx context.Context, req OutboundRequest, res OutboundResult, start time.Time) {
	if h.logger == nil {
		return
	}
	durationMs := time.Since(start).Milliseconds()
	action := res.Action.String()
	verdict := res.Verdict
	dest := req.Destination.String()
	hash := h.hashContent(req.Content)
	length := len(req.Content)
	flagCount := len(res.Flags)
	highest := res.HighestClassification.String()

	ev := decisionlog.Event{
		EventType:             decisionlog.EventOutboundScan,
		RequestID:             &req.RequestID,
		Action:                &action,
		Verdict:               &verdict,
		Destination:           &dest,
		ContentHash:           &hash,
		ContentLength:         &length,
		FlagCount:             &flagCount,
		HighestClassification: &highest,
		DurationMs:            &durationMs,
		FlagDetails:           sanitizedFlagDetails(res.Flags),
	}
	if req.SessionKey != "" {
		ev.SessionKey = &req.SessionKey
	}
	if res.Error != "" {
		ev.Reason = &res.Error
	}
	h.log(ctx, ev)
}
