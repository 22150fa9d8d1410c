package registry

import "errors"

// Kind is the registry's error taxonomy. Errors returned by this
// package carry a Kind and can be classified with errors.Is against the
// Err* sentinels below via (*Error).Is.
type Kind string

const (
	KindInvalidInput          Kind = "invalid_input"
	KindNotFound              Kind = "not_found"
	KindUniquenessViolation   Kind = "uniqueness_violation"
	KindForeignKeyViolation   Kind = "foreign_key_violation"
	KindStorageUnavailable    Kind = "storage_unavailable"
)

// Error wraps a registry failure with its taxonomy Kind, following the
// pack's plain fmt.Errorf(%w) idiom rather than a grab-bag of ad-hoc
// sentinel values.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, registry.ErrNotFound) style checks by
// comparing the Kind carried in another *Error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Sentinel instances usable directly with errors.Is, e.g.
// errors.Is(err, registry.ErrNotFound).
var (
	ErrNotFound            = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrUniquenessViolation = &Error{Kind: KindUniquenessViolation, Msg: "uniqueness violation"}
	ErrForeignKeyViolation = &Error{Kind: KindForeignKeyViolation, Msg: "foreign key violation"}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput, Msg: "invalid input"}
	ErrStorageUnavailable  = &Error{Kind: KindStorageUnavailable, Msg: "storage unavailable"}
)
