// Package assignment binds vehicles and drivers to blocks on a duty date
// without double-booking.
package assignment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arknettransit/dutyplan/internal/timespan"
	"github.com/arknettransit/dutyplan/internal/validation"
)

// Errors returned by the assignment package.
var (
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrInvalidResource    = errors.New("invalid resource")
)

// ResourceKind is the type of resource being assigned.
type ResourceKind string

const (
	KindVehicle ResourceKind = "vehicle"
	KindDriver  ResourceKind = "driver"
)

// Valid reports whether k is a known kind.
func (k ResourceKind) Valid() bool {
	return k == KindVehicle || k == KindDriver
}

// Resource identifies a vehicle or driver.
type Resource struct {
	Kind ResourceKind `json:"kind"`
	ID   string       `json:"id"`
}

// Vehicle is shorthand for a vehicle resource.
func Vehicle(id string) Resource {
	return Resource{Kind: KindVehicle, ID: id}
}

// Driver is shorthand for a driver resource.
func Driver(id string) Resource {
	return Resource{Kind: KindDriver, ID: id}
}

// Validate checks the kind and id.
func (r Resource) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidResource, r.Kind)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidResource)
	}
	return nil
}

func (r Resource) String() string {
	return string(r.Kind) + " " + r.ID
}

func (r Resource) ref() validation.EntityRef {
	return validation.Ref(string(r.Kind), r.ID)
}

// Assignment binds a resource to a block on a duty date. StartTime and
// EndTime record the block span at the time of assignment; conflict checks
// use the block's current span.
type Assignment struct {
	ID           string           `json:"id"`
	ResourceKind ResourceKind     `json:"resource_kind"`
	ResourceID   string           `json:"resource_id"`
	DutyDate     time.Time        `json:"duty_date"`
	BlockID      string           `json:"block_id"`
	StartTime    timespan.Seconds `json:"start_time"`
	EndTime      timespan.Seconds `json:"end_time"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Resource returns the assigned resource.
func (a Assignment) Resource() Resource {
	return Resource{Kind: a.ResourceKind, ID: a.ResourceID}
}

// Span returns [StartTime, EndTime).
func (a Assignment) Span() timespan.Interval {
	return timespan.Interval{Start: a.StartTime, End: a.EndTime}
}

// Request asks for a resource to be assigned to a block on a duty date.
type Request struct {
	Resource Resource  `json:"resource"`
	DutyDate time.Time `json:"duty_date"`
	BlockID  string    `json:"block_id"`
}

// NewID generates an assignment ID.
func NewID() string {
	return "asg_" + uuid.New().String()[:22]
}

// ConflictError is returned when a request overlaps an existing assignment
// of the same resource on the same duty date.
type ConflictError struct {
	Request  Request
	Span     timespan.Interval
	Existing Assignment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("double booking: %s on %s: block %s %s overlaps assignment %s (block %s %s)",
		e.Request.Resource, e.Request.DutyDate.Format(time.DateOnly),
		e.Request.BlockID, e.Span,
		e.Existing.ID, e.Existing.BlockID, e.Existing.Span())
}

// Unwrap exposes validation.ErrDoubleBooking.
func (e *ConflictError) Unwrap() error {
	return validation.ErrDoubleBooking
}

// Violation renders the conflict for a validation report.
func (e *ConflictError) Violation() validation.Violation {
	related := validation.Ref("assignment", e.Existing.ID)
	return validation.Violation{
		Kind:   validation.KindDoubleBooking,
		Entity: e.Request.Resource.ref(),
		Detail: fmt.Sprintf("block %s %s on %s overlaps block %s %s",
			e.Request.BlockID, e.Span, e.Request.DutyDate.Format(time.DateOnly),
			e.Existing.BlockID, e.Existing.Span()),
		Related: &related,
	}
}
