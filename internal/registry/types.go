package registry

import (
	"time"

	"github.com/sentrywatch/watchdog/internal/classify"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

func nowISO() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseISO(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// Locale scopes a set of patterns.
type Locale struct {
	ID          int64
	Slug        string
	Name        string
	Description *string
	Active      bool
	Priority    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Pattern is a named detector within a locale.
type Pattern struct {
	ID              int64
	LocaleID        int64
	Category        string
	PatternType     string
	DisplayName     string
	RegexSource     *string
	RegexFlags      *string
	Recognizer      *string
	Validator       *string
	DefaultClass    classify.Classification
	FalsePositiveHints *string
	Examples        *string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PatternInput is the payload for CreatePattern.
type PatternInput struct {
	LocaleID           int64
	Category           string
	PatternType        string
	DisplayName        string
	RegexSource        *string
	RegexFlags         *string
	Recognizer         *string
	Validator          *string
	DefaultClass       classify.Classification
	FalsePositiveHints *string
	Examples           *string
}

// PatternPatch is a partial update for UpdatePattern; nil fields are left
// unchanged.
type PatternPatch struct {
	Category           *string
	PatternType        *string
	DisplayName        *string
	RegexSource         **string
	RegexFlags          **string
	Recognizer          **string
	Validator           **string
	DefaultClass       *classify.Classification
	FalsePositiveHints  **string
	Examples            **string
	Active             *bool
}

// PatternFilter selects patterns by locale, category, and active state.
type PatternFilter struct {
	LocaleID *int64
	Category *string
	Active   *bool
}

// UserEntry is a user-declared sensitive value.
type UserEntry struct {
	ID            int64
	Label         string
	DisplayName   string
	PrimaryValue  string
	Classification classify.Classification
	Category      *string
	Notes         *string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EntryVariant is an alternate surface form of a UserEntry.
type EntryVariant struct {
	ID          int64
	EntryID     int64
	VariantText string
	VariantType string
	CreatedAt   time.Time
}

// EntryInput is the payload for CreateEntry.
type EntryInput struct {
	Label          string
	DisplayName    string
	PrimaryValue   string
	Classification classify.Classification
	Category       *string
	Notes          *string
}

// VariantInput is a variant to create alongside an entry.
type VariantInput struct {
	Text string
	Type string
}

// RefType is the polymorphic arm of an inventory reference.
type RefType string

const (
	RefPattern    RefType = "pattern"
	RefUserEntry  RefType = "user_entry"
)

// StorageType is where a detected value physically lives.
type StorageType string

const (
	StorageFile    StorageType = "file"
	StorageSession StorageType = "session"
	StorageMemory  StorageType = "memory"
	StorageContext StorageType = "context"
)

// DataForm is how faithfully the stored copy reflects the original value.
type DataForm string

const (
	FormVerbatim    DataForm = "verbatim"
	FormParaphrased DataForm = "paraphrased"
	FormDerived     DataForm = "derived"
	FormReference   DataForm = "reference"
)

// InventoryRecord is a ledger entry of where a registry item has been seen.
type InventoryRecord struct {
	ID               int64
	RefType          RefType
	RefID            int64
	RefLabel         string
	StorageLocation  string
	StorageType      StorageType
	DataForm         DataForm
	DetectorName     *string
	CurrentClass     classify.Classification
	FirstDetectedAt  time.Time
	LastVerifiedAt   time.Time
	Active           bool
	DeactivatedAt    *time.Time
	DeactivatedBy    *string
}

// DetectionInput is the payload for RecordDetection.
type DetectionInput struct {
	RefType         RefType
	RefID           int64
	RefLabel        string
	StorageLocation string
	StorageType     StorageType
	DataForm        DataForm
	DetectorName    *string
	CurrentClass    classify.Classification
}

// PostureInput is the aggregate count of active inventory per
// classification tier, consumed by callers deciding posture.
type PostureInput struct {
	CountsByClass map[classify.Classification]int
	TotalActive   int
}

// Health summarizes the registry's operational state.
type Health struct {
	PatternCount        int
	EntryCount          int
	ActiveInventoryCount int
	OK                  bool
}
