package model

import (
	"errors"
	"fmt"
)

// Structural failures: schema or coverage mismatches. Fatal for the unit of
// work that hits them.
var (
	ErrUnreachableLeaf = errors.New("leaf not covered by any candidate element")
	ErrEmptySchema     = errors.New("schema has no leaf field")
	ErrInvalidCost     = errors.New("element cost must be positive")
	ErrUnknownType     = errors.New("unknown message type")
)

// Validation failures: a malformed constraint, rejected at ingestion.
var (
	ErrInvalidFieldPath = errors.New("invalid field path")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrUnsupportedRule  = errors.New("unsupported rule")
)

// Codec failures.
var (
	ErrTruncatedBuffer = errors.New("truncated buffer")
	ErrInvalidTag      = errors.New("invalid choice tag")
	ErrDomainViolation = errors.New("value outside declared domain")
	ErrMissingValue    = errors.New("missing value")
)

// ErrLengthMismatchUnsupported is the differ policy violation raised when a
// mutation changes the encoded length and the replay target cannot take it.
var ErrLengthMismatchUnsupported = errors.New("encoded length changed")

// ErrInvalidPatch is returned when a patch set does not fit the buffer it is
// applied to.
var ErrInvalidPatch = errors.New("invalid patch")

// StructuralError wraps a structural failure with the offending element or
// field.
type StructuralError struct {
	Element string
	Field   string
	Err     error
}

func (e *StructuralError) Error() string {
	switch {
	case e.Element != "" && e.Field != "":
		return fmt.Sprintf("structural error in %s at %s: %v", e.Element, e.Field, e.Err)
	case e.Element != "":
		return fmt.Sprintf("structural error in %s: %v", e.Element, e.Err)
	case e.Field != "":
		return fmt.Sprintf("structural error at %s: %v", e.Field, e.Err)
	}

	return fmt.Sprintf("structural error: %v", e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// ValidationError describes why a constraint was rejected.
type ValidationError struct {
	ConstraintID string
	Field        string
	Reason       string
	Err          error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("constraint %s: %s", e.ConstraintID, e.Reason)
	}

	return fmt.Sprintf("constraint %s: %s: %s", e.ConstraintID, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// CodecError locates an encode or decode failure.
type CodecError struct {
	Path string
	Bit  int
	Err  error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec: %s at bit %d: %v", e.Path, e.Bit, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}
