package hook

import (
	"context"

	"github.com/sentrywatch/watchdog/internal/classify"
	"github.com/sentrywatch/watchdog/internal/decisionlog"
	"github.com/sentrywatch/watchdog/internal/scanner"
)

// InboundRequest is the caller-supplied payload for InspectInbound.
type InboundRequest struct {
	Content    string
	RequestID  string
	SessionKey string
}

// InboundResult carries telemetry only; inbound inspection never blocks.
type InboundResult struct {
	Detected               bool
	Flags                  []scanner.Flag
	HighestClassification  classify.Classification
	RecommendedPosture     classify.Posture
	HasRecommendation      bool
}

// InspectInbound runs the scanner only, with no blocking, and derives a
// posture recommendation purely from the highest tier observed. It
// never throws; on failure it returns a clean result with no
// recommendation.
func (h *Hook) InspectInbound(ctx context.Context, req InboundRequest) (res InboundResult) {
	defer func() {
		if r := recover(); r != nil {
			res = InboundResult{}
		}
	}()

	if !h.initialized || !h.cfg.InboundEnabled {
		return InboundResult{}
	}

	scanResult := h.scanner.Scan(req.Content, nil)
	if scanResult.Verdict == "error" {
		return InboundResult{}
	}

	res.Detected = scanResult.FlagCount > 0
	res.Flags = scanResult.Flags
	res.HighestClassification = scanResult.HighestClassification
	res.RecommendedPosture, res.HasRecommendation = recommendPosture(scanResult.HighestClassification, res.Detected)

	if h.logger != nil {
		flagCount := len(scanResult.Flags)
		highest := scanResult.HighestClassification.String()
		ev := decisionlog.Event{
			EventType:             decisionlog.EventInboundInspect,
			FlagCount:             &flagCount,
			HighestClassification: &highest,
			FlagDetails:           sanitizedFlagDetails(scanResult.Flags),
		}
		if req.RequestID != "" {
			ev.RequestID = &req.RequestID
		}
		if req.SessionKey != "" {
			ev.SessionKey = &req.SessionKey
		}
		h.log(ctx, ev)
	}
	return res
}
