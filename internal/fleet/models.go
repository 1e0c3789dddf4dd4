// Package fleet manages vehicles, drivers and the vehicle status audit log.
package fleet

import (
	"errors"
	"regexp"
	"time"

	"github.com/arknettransit/dutyplan/internal/validation"
)

// Fleet errors.
var (
	ErrVehicleNotFound     = errors.New("vehicle not found")
	ErrDriverNotFound      = errors.New("driver not found")
	ErrDuplicateRegCode    = errors.New("reg_code already used in country")
	ErrDuplicateStaffCode  = errors.New("staff_code already used")
	ErrInvalidTransition   = errors.New("invalid vehicle status transition")
	ErrStatusChangedMidway = errors.New("vehicle status changed concurrently")
)

var regCodePattern = regexp.MustCompile(`^ZR[0-9]{2,3}$`)

// VehicleStatus is the operational state of a vehicle.
type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "available"
	VehicleInService   VehicleStatus = "in_service"
	VehicleMaintenance VehicleStatus = "maintenance"
	VehicleRetired     VehicleStatus = "retired"
)

// Valid reports whether s is a known status.
func (s VehicleStatus) Valid() bool {
	switch s {
	case VehicleAvailable, VehicleInService, VehicleMaintenance, VehicleRetired:
		return true
	}
	return false
}

// Assignable reports whether a vehicle in this status may take a duty.
func (s VehicleStatus) Assignable() bool {
	return s == VehicleAvailable || s == VehicleInService
}

// CanTransition reports whether a vehicle may move from one status to another.
// Retired is terminal and a transition must change the status.
func CanTransition(from, to VehicleStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return from != to && from != VehicleRetired
}

// DriverStatus is the employment state of a driver.
type DriverStatus string

const (
	DriverActive  DriverStatus = "active"
	DriverLeave   DriverStatus = "leave"
	DriverRetired DriverStatus = "retired"
)

// Valid reports whether s is a known status.
func (s DriverStatus) Valid() bool {
	switch s {
	case DriverActive, DriverLeave, DriverRetired:
		return true
	}
	return false
}

// Vehicle is a bus owned by a country's fleet.
type Vehicle struct {
	ID               string        `json:"id"`
	CountryID        string        `json:"country_id"`
	RegCode          string        `json:"reg_code"`
	HomeDepotID      string        `json:"home_depot_id,omitempty"`
	PreferredRouteID string        `json:"preferred_route_id,omitempty"`
	Status           VehicleStatus `json:"status"`
}

// Validate checks field formats.
func (v *Vehicle) Validate() *validation.Report {
	var r validation.Report
	ref := validation.Ref("vehicle", v.ID)
	if v.CountryID == "" {
		r.Add(validation.KindInvalidField, ref, "country_id is required")
	}
	if !regCodePattern.MatchString(v.RegCode) {
		r.Add(validation.KindInvalidField, ref, "reg_code %q does not match %s", v.RegCode, regCodePattern)
	}
	if !v.Status.Valid() {
		r.Add(validation.KindInvalidField, ref, "unknown status %q", v.Status)
	}
	return &r
}

// Driver is a member of staff who can hold duties.
type Driver struct {
	ID          string       `json:"id"`
	StaffCode   string       `json:"staff_code"`
	Name        string       `json:"name"`
	HomeDepotID string       `json:"home_depot_id,omitempty"`
	Status      DriverStatus `json:"status"`
}

// Validate checks field formats.
func (d *Driver) Validate() *validation.Report {
	var r validation.Report
	ref := validation.Ref("driver", d.ID)
	if d.StaffCode == "" {
		r.Add(validation.KindInvalidField, ref, "staff_code is required")
	}
	if d.Name == "" {
		r.Add(validation.KindInvalidField, ref, "name is required")
	}
	if !d.Status.Valid() {
		r.Add(validation.KindInvalidField, ref, "unknown status %q", d.Status)
	}
	return &r
}

// VehicleStatusEvent is an entry of the append-only vehicle status log.
type VehicleStatusEvent struct {
	ID         string        `json:"id"`
	VehicleID  string        `json:"vehicle_id"`
	From       VehicleStatus `json:"from"`
	To         VehicleStatus `json:"to"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
