// Package apperr defines the failure taxonomy shared by the accessibility
// pipeline and its collaborators.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller is expected to react.
type Kind int

const (
	// KindInvalidInput is malformed geometry or arguments. Fatal, not retried.
	KindInvalidInput Kind = iota + 1
	// KindEmptyResult is a retrieval that returned zero features or roads.
	KindEmptyResult
	// KindExternalRetrieval is a network, timeout or service failure.
	KindExternalRetrieval
	// KindJoinFallback marks a spatial join that succeeded only on the fallback CRS.
	KindJoinFallback
	// KindDataIntegrity is a post-join invariant violation.
	KindDataIntegrity
	// KindMissingProjection is geometry supplied without a coordinate reference system.
	KindMissingProjection
)

// String returns the human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindEmptyResult:
		return "empty_result"
	case KindExternalRetrieval:
		return "external_retrieval"
	case KindJoinFallback:
		return "join_fallback"
	case KindDataIntegrity:
		return "data_integrity"
	case KindMissingProjection:
		return "missing_projection"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmptyResult       = errors.New("empty result")
	ErrExternalRetrieval = errors.New("external retrieval failed")
	ErrJoinFallback      = errors.New("spatial join fell back")
	ErrDataIntegrity     = errors.New("data integrity violation")
	ErrMissingProjection = errors.New("missing coordinate reference system")
)

var sentinels = map[Kind]error{
	KindInvalidInput:      ErrInvalidInput,
	KindEmptyResult:       ErrEmptyResult,
	KindExternalRetrieval: ErrExternalRetrieval,
	KindJoinFallback:      ErrJoinFallback,
	KindDataIntegrity:     ErrDataIntegrity,
	KindMissingProjection: ErrMissingProjection,
}

// Error is a classified failure. Op names the operation that failed
// (e.g. "overpass.features"); Err is the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = sentinels[e.Kind].Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match against the kind sentinel so callers can write
// errors.Is(err, apperr.ErrEmptyResult). A missing projection is also
// invalid input.
func (e *Error) Is(target error) bool {
	if e.Kind == KindMissingProjection && target == ErrInvalidInput {
		return true
	}
	return sentinels[e.Kind] == target
}

// New builds a classified error without a cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err under kind. Returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// InvalidInput reports malformed arguments.
func InvalidInput(op, msg string) *Error { return New(KindInvalidInput, op, msg) }

// EmptyResult reports a retrieval with zero rows.
func EmptyResult(op, msg string) *Error { return New(KindEmptyResult, op, msg) }

// DataIntegrity reports an invariant violation.
func DataIntegrity(op, msg string) *Error { return New(KindDataIntegrity, op, msg) }

// KindOf returns the kind of the first classified error in err's chain,
// or 0 when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return 0
}

// IsFatal reports whether err should stop the run for a place.
// Empty results and join fallbacks degrade output instead.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindEmptyResult, KindJoinFallback:
		return false
	default:
		return err != nil
	}
}
