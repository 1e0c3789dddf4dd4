package fleet_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arknettransit/dutyplan/internal/fleet"
	"github.com/arknettransit/dutyplan/internal/publisher"
	"github.com/arknettransit/dutyplan/internal/validation"
)

func newService(t *testing.T) (*fleet.Service, *fleet.InMemoryRepository, *publisher.MemoryPublisher) {
	t.Helper()
	repo := fleet.NewInMemoryRepository()
	pub := publisher.NewMemoryPublisher()
	now := time.Date(2025, time.September, 2, 6, 0, 0, 0, time.UTC)
	svc := fleet.NewService(fleet.ServiceConfig{
		Repo:      repo,
		Publisher: pub,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return now },
	})
	return svc, repo, pub
}

func TestVehicle_Validate(t *testing.T) {
	tests := []struct {
		name    string
		regCode string
		status  fleet.VehicleStatus
		valid   bool
	}{
		{name: "two digits", regCode: "ZR12", status: fleet.VehicleAvailable, valid: true},
		{name: "three digits", regCode: "ZR123", status: fleet.VehicleInService, valid: true},
		{name: "one digit", regCode: "ZR1", status: fleet.VehicleAvailable},
		{name: "four digits", regCode: "ZR1234", status: fleet.VehicleAvailable},
		{name: "lowercase", regCode: "zr12", status: fleet.VehicleAvailable},
		{name: "unknown status", regCode: "ZR12", status: "parked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fleet.Vehicle{ID: "v", CountryID: "zm", RegCode: tt.regCode, Status: tt.status}
			assert.Equal(t, tt.valid, v.Validate().OK())
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, fleet.CanTransition(fleet.VehicleAvailable, fleet.VehicleInService))
	assert.True(t, fleet.CanTransition(fleet.VehicleMaintenance, fleet.VehicleRetired))
	assert.False(t, fleet.CanTransition(fleet.VehicleRetired, fleet.VehicleAvailable))
	assert.False(t, fleet.CanTransition(fleet.VehicleAvailable, fleet.VehicleAvailable))
	assert.False(t, fleet.CanTransition(fleet.VehicleAvailable, "scrapped"))
}

func TestService_RegisterVehicle(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t)

	v := &fleet.Vehicle{CountryID: "zm", RegCode: "ZR101"}
	require.NoError(t, svc.RegisterVehicle(ctx, v))
	assert.NotEmpty(t, v.ID)

	stored, err := repo.GetVehicle(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.VehicleAvailable, stored.Status)

	dup := &fleet.Vehicle{CountryID: "zm", RegCode: "ZR101"}
	err = svc.RegisterVehicle(ctx, dup)
	assert.ErrorIs(t, err, fleet.ErrDuplicateRegCode)
	assert.ErrorIs(t, err, validation.ErrDuplicate)

	other := &fleet.Vehicle{CountryID: "mw", RegCode: "ZR101"}
	assert.NoError(t, svc.RegisterVehicle(ctx, other), "reg_code is unique per country only")

	bad := &fleet.Vehicle{CountryID: "zm", RegCode: "AB12"}
	assert.ErrorIs(t, svc.RegisterVehicle(ctx, bad), validation.ErrInvalidField)
}

func TestService_RegisterDriver(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	require.NoError(t, svc.RegisterDriver(ctx, &fleet.Driver{StaffCode: "S-001", Name: "Chanda Mwale"}))

	err := svc.RegisterDriver(ctx, &fleet.Driver{StaffCode: "S-001", Name: "Other"})
	assert.ErrorIs(t, err, fleet.ErrDuplicateStaffCode)

	assert.ErrorIs(t, svc.RegisterDriver(ctx, &fleet.Driver{Name: "No Code"}), validation.ErrInvalidField)
}

func TestService_ChangeVehicleStatus(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newService(t)

	v := &fleet.Vehicle{ID: "veh_1", CountryID: "zm", RegCode: "ZR10"}
	require.NoError(t, svc.RegisterVehicle(ctx, v))

	ev, err := svc.ChangeVehicleStatus(ctx, "veh_1", fleet.VehicleMaintenance, "brake inspection")
	require.NoError(t, err)
	assert.Equal(t, fleet.VehicleAvailable, ev.From)
	assert.Equal(t, fleet.VehicleMaintenance, ev.To)

	_, err = svc.ChangeVehicleStatus(ctx, "veh_1", fleet.VehicleRetired, "end of life")
	require.NoError(t, err)

	_, err = svc.ChangeVehicleStatus(ctx, "veh_1", fleet.VehicleAvailable, "")
	assert.ErrorIs(t, err, fleet.ErrInvalidTransition, "retired is terminal")

	history, err := svc.StatusHistory(ctx, "veh_1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "brake inspection", history[0].Reason)
	assert.Equal(t, fleet.VehicleRetired, history[1].To)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "fleet.vehicles.veh_1.status", msgs[0].Subject)
	var published fleet.VehicleStatusEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &published))
	assert.Equal(t, ev.ID, published.ID)

	_, err = svc.ChangeVehicleStatus(ctx, "missing", fleet.VehicleAvailable, "")
	assert.ErrorIs(t, err, fleet.ErrVehicleNotFound)
}

func TestInMemoryRepository_StatusChangedMidway(t *testing.T) {
	ctx := context.Background()
	repo := fleet.NewInMemoryRepository()
	require.NoError(t, repo.SaveVehicle(ctx, &fleet.Vehicle{ID: "v", CountryID: "zm", RegCode: "ZR10", Status: fleet.VehicleInService}))

	err := repo.RecordStatusChange(ctx, fleet.VehicleStatusEvent{VehicleID: "v", From: fleet.VehicleAvailable, To: fleet.VehicleMaintenance})
	assert.ErrorIs(t, err, fleet.ErrStatusChangedMidway)

	events, err := repo.ListStatusEvents(ctx, "v")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestService_Eligibility(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	require.NoError(t, svc.RegisterVehicle(ctx, &fleet.Vehicle{ID: "ok", CountryID: "zm", RegCode: "ZR10"}))
	require.NoError(t, svc.RegisterVehicle(ctx, &fleet.Vehicle{ID: "shop", CountryID: "zm", RegCode: "ZR11", Status: fleet.VehicleMaintenance}))
	require.NoError(t, svc.RegisterDriver(ctx, &fleet.Driver{ID: "d1", StaffCode: "S1", Name: "A"}))
	require.NoError(t, svc.RegisterDriver(ctx, &fleet.Driver{ID: "d2", StaffCode: "S2", Name: "B", Status: fleet.DriverLeave}))

	assert.NoError(t, svc.VehicleEligible(ctx, "ok", "zm"))
	assert.ErrorIs(t, svc.VehicleEligible(ctx, "ok", "mw"), validation.ErrIneligibleResource)
	assert.ErrorIs(t, svc.VehicleEligible(ctx, "shop", "zm"), validation.ErrIneligibleResource)
	assert.ErrorIs(t, svc.VehicleEligible(ctx, "nope", "zm"), validation.ErrNotFound)

	assert.NoError(t, svc.DriverEligible(ctx, "d1"))
	assert.ErrorIs(t, svc.DriverEligible(ctx, "d2"), validation.ErrIneligibleResource)
	assert.ErrorIs(t, svc.DriverEligible(ctx, "nope"), fleet.ErrDriverNotFound)
}
