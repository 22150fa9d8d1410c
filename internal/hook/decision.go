package hook

import "github.com/sentrywatch/watchdog/internal/classify"

// decide maps a scan outcome to an action: no flags always allows;
// PUBLIC and INTERNAL_ONLY-to-internal-destination track posture loosely;
// INTERNAL_ONLY-elsewhere and ASK_FIRST escalate under standard/strict;
// NEVER_SHARE is never allowed: it is quarantined under permissive and
// standard and blocked under strict and lockdown.
func decide(hasFlags bool, highest classify.Classification, dest classify.Destination, posture classify.Posture) classify.Action {
	if !hasFlags {
		return classify.ActionAllow
	}

	switch highest {
	case classify.Public:
		if posture == classify.Lockdown {
			return classify.ActionBlock
		}
		return classify.ActionAllow

	case classify.InternalOnly:
		if dest.Internal() {
			if posture == classify.Lockdown {
				return classify.ActionBlock
			}
			return classify.ActionAllow
		}
		switch posture {
		case classify.Permissive:
			return classify.ActionAllow
		case classify.Lockdown:
			return classify.ActionBlock
		default:
			return classify.ActionQuarantine
		}

	case classify.AskFirst:
		switch posture {
		case classify.Permissive:
			return classify.ActionAllow
		case classify.Lockdown:
			return classify.ActionBlock
		default:
			return classify.ActionQuarantine
		}

	case classify.NeverShare:
		switch posture {
		case classify.Permissive:
			return classify.ActionQuarantine
		case classify.Standard, classify.Strict:
			if posture == classify.Strict {
				return classify.ActionBlock
			}
			return classify.ActionQuarantine
		default:
			return classify.ActionBlock
		}
	}
	return classify.ActionQuarantine
}

// recommendPosture derives an inbound posture recommendation purely
// from the highest observed classification tier.
func recommendPosture(highest classify.Classification, hasFlags bool) (classify.Posture, bool) {
	if !hasFlags {
		return 0, false
	}
	switch highest {
	case classify.NeverShare:
		return classify.Strict, true
	case classify.AskFirst:
		return classify.Standard, true
	default:
		return 0, false
	}
}
