// Package validation collects scheduling violations into reports.
//
// Checks never stop at the first problem. Composers and resolvers append
// every violation they find to a Report and hand the whole report back so
// an operator can fix a block in one pass. The only exception is a fatal
// *Error, used when the input is so malformed that further checking would
// produce noise.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a violation.
type Kind string

const (
	KindInvalidRange        Kind = "invalid_range"
	KindDurationOutOfBounds Kind = "duration_out_of_bounds"
	KindSequenceOverlap     Kind = "sequence_overlap"
	KindBreakConflict       Kind = "break_conflict"
	KindDoubleBooking       Kind = "double_booking"
	KindNotFound            Kind = "not_found"
	KindSequenceGap         Kind = "sequence_gap"
	KindOutOfBounds         Kind = "out_of_bounds"
	KindAggregateMismatch   Kind = "aggregate_mismatch"
	KindStopTimeOrder       Kind = "stop_time_order"
	KindDuplicate           Kind = "duplicate"
	KindInvalidField        Kind = "invalid_field"
	KindIneligibleResource  Kind = "ineligible_resource"
)

// Sentinel errors, one per kind. Reports and fatal errors match them with errors.Is.
var (
	ErrInvalidRange        = errors.New("invalid range")
	ErrDurationOutOfBounds = errors.New("duration out of bounds")
	ErrSequenceOverlap     = errors.New("sequence overlap")
	ErrBreakConflict       = errors.New("break conflict")
	ErrDoubleBooking       = errors.New("double booking")
	ErrNotFound            = errors.New("not found")
	ErrSequenceGap         = errors.New("sequence gap")
	ErrOutOfBounds         = errors.New("out of bounds")
	ErrAggregateMismatch   = errors.New("aggregate mismatch")
	ErrStopTimeOrder       = errors.New("stop time order")
	ErrDuplicate           = errors.New("duplicate")
	ErrInvalidField        = errors.New("invalid field")
	ErrIneligibleResource  = errors.New("ineligible resource")
)

var sentinels = map[Kind]error{
	KindInvalidRange:        ErrInvalidRange,
	KindDurationOutOfBounds: ErrDurationOutOfBounds,
	KindSequenceOverlap:     ErrSequenceOverlap,
	KindBreakConflict:       ErrBreakConflict,
	KindDoubleBooking:       ErrDoubleBooking,
	KindNotFound:            ErrNotFound,
	KindSequenceGap:         ErrSequenceGap,
	KindOutOfBounds:         ErrOutOfBounds,
	KindAggregateMismatch:   ErrAggregateMismatch,
	KindStopTimeOrder:       ErrStopTimeOrder,
	KindDuplicate:           ErrDuplicate,
	KindInvalidField:        ErrInvalidField,
	KindIneligibleResource:  ErrIneligibleResource,
}

// Err returns the sentinel error for the kind, or nil for an unknown kind.
func (k Kind) Err() error {
	return sentinels[k]
}

// EntityRef identifies the entity a violation is about.
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Ref is shorthand for EntityRef{Type: typ, ID: id}.
func Ref(typ, id string) EntityRef {
	return EntityRef{Type: typ, ID: id}
}

func (r EntityRef) String() string {
	if r.ID == "" {
		return r.Type
	}
	return r.Type + " " + r.ID
}

// Violation is a single failed check.
type Violation struct {
	Kind   Kind      `json:"kind"`
	Entity EntityRef `json:"entity"`
	Detail string    `json:"detail"`

	// Related points at a second entity involved in the violation,
	// such as the existing assignment in a double booking.
	Related *EntityRef `json:"related,omitempty"`
}

func (v Violation) String() string {
	s := fmt.Sprintf("%s: %s: %s", v.Kind, v.Entity, v.Detail)
	if v.Related != nil {
		s += " (conflicts with " + v.Related.String() + ")"
	}
	return s
}

// Report is an ordered list of violations. The zero value is an empty report.
// A non-empty *Report satisfies error.
type Report struct {
	Violations []Violation `json:"violations"`
}

// Add appends a violation with a formatted detail.
func (r *Report) Add(kind Kind, entity EntityRef, format string, args ...any) {
	r.Violations = append(r.Violations, Violation{
		Kind:   kind,
		Entity: entity,
		Detail: fmt.Sprintf(format, args...),
	})
}

// AddViolation appends v as-is.
func (r *Report) AddViolation(v Violation) {
	r.Violations = append(r.Violations, v)
}

// Merge appends every violation from other, keeping order.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// OK reports whether no violations were recorded.
func (r *Report) OK() bool {
	return r == nil || len(r.Violations) == 0
}

// Len returns the number of violations.
func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Violations)
}

// Has reports whether any violation has the given kind.
func (r *Report) Has(kind Kind) bool {
	return r.Count(kind) > 0
}

// Count returns the number of violations of the given kind.
func (r *Report) Count(kind Kind) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, v := range r.Violations {
		if v.Kind == kind {
			n++
		}
	}
	return n
}

// Kinds returns the distinct kinds in first-seen order.
func (r *Report) Kinds() []Kind {
	if r == nil {
		return nil
	}
	seen := make(map[Kind]bool)
	var kinds []Kind
	for _, v := range r.Violations {
		if !seen[v.Kind] {
			seen[v.Kind] = true
			kinds = append(kinds, v.Kind)
		}
	}
	return kinds
}

// Err returns r when it holds violations and nil otherwise, so callers can
// write `return report.Err()` without returning a typed nil.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return r
}

func (r *Report) Error() string {
	switch r.Len() {
	case 0:
		return "no violations"
	case 1:
		return r.Violations[0].String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d violations: ", len(r.Violations))
	for i, v := range r.Violations {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(v.String())
	}
	return b.String()
}

// Is matches the sentinel of any contained violation kind.
func (r *Report) Is(target error) bool {
	if r == nil {
		return false
	}
	for _, v := range r.Violations {
		if v.Kind.Err() == target {
			return true
		}
	}
	return false
}

// Error is a fatal structural problem that aborts a validation pass.
type Error struct {
	Kind   Kind
	Entity EntityRef
	Detail string
}

// Fatal builds a fatal error.
func Fatal(kind Kind, entity EntityRef, format string, args ...any) *Error {
	return &Error{Kind: kind, Entity: entity, Detail: fmt.Sprintf(format, args...)}
}

// InvalidRange builds a fatal KindInvalidRange error.
func InvalidRange(entity EntityRef, format string, args ...any) *Error {
	return Fatal(KindInvalidRange, entity, format, args...)
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Entity, e.Detail)
}

// Violation converts the error into a report entry.
func (e *Error) Violation() Violation {
	return Violation{Kind: e.Kind, Entity: e.Entity, Detail: e.Detail}
}

// Unwrap exposes the kind's sentinel.
func (e *Error) Unwrap() error {
	return e.Kind.Err()
}

// IsFatal reports whether err carries a fatal *Error.
func IsFatal(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}

// AsReport extracts a *Report from err.
func AsReport(err error) (*Report, bool) {
	var r *Report
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
