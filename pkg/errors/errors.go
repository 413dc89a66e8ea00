// Package errors defines the failure kinds of a prediction run. Every kind is
// fatal for the run that produced it; nothing in nucleofind retries.
//
// Usage:
//
//	return errors.New(errors.KindGeometryDegenerate, "resample", "box has zero extent")
//	return errors.Wrap(err, errors.KindInference, "inference", "tile (0,16,32) failed")
//
// Callers test for a kind with the standard library:
//
//	if stderrors.Is(err, errors.ErrCoverageInvariant) { ... }
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInputFormat: the input is neither a reflection file nor a map file.
	KindInputFormat
	// KindModelUnusable: the oracle could not be loaded or produced output of
	// the wrong shape.
	KindModelUnusable
	// KindGeometryDegenerate: a box or grid has zero or negative extent.
	KindGeometryDegenerate
	// KindCoverageInvariant: a voxel of the valid region was never covered by a tile.
	KindCoverageInvariant
	// KindInvalidConfig: caller supplied parameters that cannot produce a valid run.
	KindInvalidConfig
	// KindInference: the oracle returned an error for one tile.
	KindInference
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInputFormat:
		return "InputFormat"
	case KindModelUnusable:
		return "ModelUnusable"
	case KindGeometryDegenerate:
		return "GeometryDegenerate"
	case KindCoverageInvariant:
		return "CoverageInvariant"
	case KindInvalidConfig:
		return "InvalidConfig"
	case KindInference:
		return "Inference"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Sentinels for errors.Is. They carry only a kind; matching compares kinds.
var (
	ErrInputFormat        = &Error{Kind: KindInputFormat}
	ErrModelUnusable      = &Error{Kind: KindModelUnusable}
	ErrGeometryDegenerate = &Error{Kind: KindGeometryDegenerate}
	ErrCoverageInvariant  = &Error{Kind: KindCoverageInvariant}
	ErrInvalidConfig      = &Error{Kind: KindInvalidConfig}
	ErrInference          = &Error{Kind: KindInference}
)

// ModelHint is attached to ModelUnusable errors raised while loading a model.
const ModelHint = "the model may be corrupted, perhaps due to an incomplete download; reinstall it and try again"

// Error is the structured error returned by every pipeline stage.
type Error struct {
	// Kind is the failure category.
	Kind Kind

	// Stage names the pipeline stage that failed (e.g. "resample", "inference").
	Stage string

	// Message describes the failure.
	Message string

	// Hint is an optional remediation shown to the operator.
	Hint string

	// Cause is the underlying error, if any.
	Cause error
}

// Error formats as "<stage>: [<kind>] <message>: <cause> (<hint>)", omitting
// empty segments.
func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Stage != "" {
		s = e.Stage + ": " + s
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	if e.Hint != "" {
		s += " (" + e.Hint + ")"
	}
	return s
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithHint returns a copy of e carrying hint.
func (e *Error) WithHint(hint string) *Error {
	if e == nil {
		return nil
	}
	c := *e
	c.Hint = hint
	return &c
}

// New creates an Error of the given kind.
func New(kind Kind, stage, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around cause. A nil cause yields nil.
func Wrap(cause error, kind Kind, stage, format string, args ...interface{}) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
