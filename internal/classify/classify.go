// Package classify defines the shared classification, posture, and
// destination enumerations used across the scanner, security agent,
// gateway hook, and decision logger.
package classify

import "strings"

// Classification ranks how sensitive a detected value is. Lower Rank
// values are stricter; NeverShare is the strictest tier.
type Classification int

const (
	// NeverShare is the strictest tier: the value must never leave the boundary.
	NeverShare Classification = iota
	AskFirst
	InternalOnly
	Public
)

// String returns the canonical upper-snake-case name used on the wire.
func (c Classification) String() string {
	switch c {
	case NeverShare:
		return "NEVER_SHARE"
	case AskFirst:
		return "ASK_FIRST"
	case InternalOnly:
		return "INTERNAL_ONLY"
	case Public:
		return "PUBLIC"
	default:
		return "UNKNOWN"
	}
}

// Rank returns the strictness rank; lower is stricter. Used for ordering.
func (c Classification) Rank() int {
	return int(c)
}

// Stricter reports whether c is at least as strict as other.
func (c Classification) Stricter(other Classification) bool {
	return c.Rank() <= other.Rank()
}

// ParseClassification normalizes a free-form string into a Classification.
// Non-letters are stripped and the result upper-cased before matching;
// an unrecognized value falls back to AskFirst, the safe middle tier.
func ParseClassification(s string) Classification {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' {
			b.WriteRune(r)
		}
	}
	switch strings.ToUpper(b.String()) {
	case "NEVER_SHARE", "NEVERSHARE":
		return NeverShare
	case "ASK_FIRST", "ASKFIRST":
		return AskFirst
	case "INTERNAL_ONLY", "INTERNALONLY":
		return InternalOnly
	case "PUBLIC":
		return Public
	default:
		return AskFirst
	}
}

// Overall returns the strictest classification across the set. An empty
// set is Public (nothing to restrict).
func Overall(cs []Classification) Classification {
	overall := Public
	for _, c := range cs {
		if c.Stricter(overall) {
			overall = c
		}
	}
	return overall
}

// Posture is a caller-controlled sensitivity dial, ordered least to most
// restrictive.
type Posture int

const (
	Permissive Posture = iota
	Standard
	Strict
	Lockdown
)

func (p Posture) String() string {
	switch p {
	case Permissive:
		return "permissive"
	case Standard:
		return "standard"
	case Strict:
		return "strict"
	case Lockdown:
		return "lockdown"
	default:
		return "unknown"
	}
}

// ParsePosture parses a posture level; unrecognized values return
// Standard and ok=false so callers can decide whether to reject.
func ParsePosture(s string) (Posture, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "permissive":
		return Permissive, true
	case "standard":
		return Standard, true
	case "strict":
		return Strict, true
	case "lockdown":
		return Lockdown, true
	default:
		return Standard, false
	}
}

// Destination is where outbound content is headed.
type Destination int

const (
	DestUnknown Destination = iota
	DestEmail
	DestChat
	DestAPI
	DestFile
	DestClipboard
	DestBrowser
)

func (d Destination) String() string {
	switch d {
	case DestEmail:
		return "email"
	case DestChat:
		return "chat"
	case DestAPI:
		return "api"
	case DestFile:
		return "file"
	case DestClipboard:
		return "clipboard"
	case DestBrowser:
		return "browser"
	default:
		return "unknown"
	}
}

// ParseDestination parses a destination string; unrecognized values map
// to DestUnknown.
func ParseDestination(s string) Destination {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return DestEmail
	case "chat":
		return DestChat
	case "api":
		return DestAPI
	case "file":
		return DestFile
	case "clipboard":
		return DestClipboard
	case "browser":
		return DestBrowser
	default:
		return DestUnknown
	}
}

// Internal reports whether the destination is treated as "internal" for
// the purposes of the INTERNAL_ONLY tier (file and clipboard only).
func (d Destination) Internal() bool {
	return d == DestFile || d == DestClipboard
}

// SystemMode is the orchestrator-facing mode an external caller may set;
// it maps onto a Posture via ModeToPosture.
type SystemMode int

const (
	ModeNormal SystemMode = iota
	ModeElevated
	ModeLockdown
	ModeMaintenance
)

func (m SystemMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeElevated:
		return "elevated"
	case ModeLockdown:
		return "lockdown"
	case ModeMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// ModeToPosture maps a system operating mode to a gateway posture.
func ModeToPosture(m SystemMode) Posture {
	switch m {
	case ModeElevated:
		return Strict
	case ModeLockdown:
		return Lockdown
	case ModeMaintenance:
		return Permissive
	default:
		return Standard
	}
}

// Action is the verdict a Gateway Hook decision resolves to. Outbound
// decisions never throw: they always resolve to one of these three.
type Action int

const (
	ActionAllow Action = iota
	ActionQuarantine
	ActionBlock
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionQuarantine:
		return "quarantine"
	case ActionBlock:
		return "block"
	default:
		return "unknown"
	}
}
