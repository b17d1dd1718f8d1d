package lifecycle

import (
	"context"
	"testing"

	"github.com/platinummonkey/fuelops/pkg/audit"
	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/platinummonkey/fuelops/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stationNames(stations []*directory.Station) []string {
	names := []string{}
	for _, s := range stations {
		names = append(names, s.Name)
	}
	return names
}

func TestListStations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stations, err := f.svc.ListStations(ctx, serviceProvider)
	require.NoError(t, err)
	assert.Equal(t, []string{"North", "South"}, stationNames(stations))

	stations, err = f.svc.ListStations(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, stations, 2)

	bound := &rbac.Caller{ID: "sp-2", Role: directory.RoleServiceProvider, StationID: ptr("st-2")}
	stations, err = f.svc.ListStations(ctx, bound)
	require.NoError(t, err)
	assert.Equal(t, []string{"South"}, stationNames(stations))

	_, err = f.svc.ListStations(ctx, ownerNorth)
	assertKind(t, err, KindForbidden, "Unauthorized")
}

func TestCreateStation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	station, err := f.svc.CreateStation(ctx, admin, StationInput{Name: " East ", Location: "Rubavu"})
	require.NoError(t, err)
	assert.Equal(t, "East", station.Name)
	assert.NotEmpty(t, station.ID)
	assert.Len(t, f.audit.ofType(audit.EventTypeStationCreate), 1)

	_, err = f.svc.CreateStation(ctx, serviceProvider, StationInput{Name: "West"})
	assertKind(t, err, KindValidation, "All fields are required")

	_, err = f.svc.CreateStation(ctx, managerNorth, StationInput{Name: "West", Location: "Karongi"})
	assertKind(t, err, KindForbidden, "")

	bound := &rbac.Caller{ID: "sp-2", Role: directory.RoleServiceProvider, StationID: ptr("st-2")}
	_, err = f.svc.CreateStation(ctx, bound, StationInput{Name: "West", Location: "Karongi"})
	assertKind(t, err, KindForbidden, "")
}

func TestUpdateStation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updated, err := f.svc.UpdateStation(ctx, serviceProvider, "st-1", StationUpdateInput{Location: ptr("Musanze")})
	require.NoError(t, err)
	assert.Equal(t, "North", updated.Name)
	assert.Equal(t, "Musanze", updated.Location)

	_, err = f.svc.UpdateStation(ctx, serviceProvider, "st-1", StationUpdateInput{})
	assertKind(t, err, KindValidation, "All fields are required")

	_, err = f.svc.UpdateStation(ctx, serviceProvider, "st-1", StationUpdateInput{Name: ptr("  ")})
	assertKind(t, err, KindValidation, "All fields are required")

	_, err = f.svc.UpdateStation(ctx, admin, "st-1", StationUpdateInput{Name: ptr("Renamed")})
	assertKind(t, err, KindForbidden, "")

	_, err = f.svc.UpdateStation(ctx, admin, "st-9", StationUpdateInput{Name: ptr("Renamed")})
	assertKind(t, err, KindForbidden, "Unauthorized")

	_, err = f.svc.UpdateStation(ctx, serviceProvider, "st-9", StationUpdateInput{Name: ptr("Renamed")})
	assertKind(t, err, KindNotFound, "Station not found")

	bound := &rbac.Caller{ID: "sp-2", Role: directory.RoleServiceProvider, StationID: ptr("st-2")}
	_, err = f.svc.UpdateStation(ctx, bound, "st-1", StationUpdateInput{Name: ptr("Renamed")})
	assertKind(t, err, KindNotFound, "Station not found")
}

func TestDeleteStation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.DeleteStation(ctx, serviceProvider, "st-1")
	assertKind(t, err, KindValidation, "Station still has users assigned")

	ownerSouth := &rbac.Caller{ID: "owner-2", Role: directory.RoleOwner, StationID: ptr("st-2")}
	require.NoError(t, f.svc.DeleteUser(ctx, ownerSouth, Managers, "mgr-2"))
	require.NoError(t, f.svc.DeleteStation(ctx, serviceProvider, "st-2"))
	assert.Len(t, f.audit.ofType(audit.EventTypeStationDelete), 1)

	err = f.svc.DeleteStation(ctx, serviceProvider, "st-2")
	assertKind(t, err, KindNotFound, "Station not found")

	err = f.svc.DeleteStation(ctx, managerNorth, "st-2")
	assertKind(t, err, KindForbidden, "Unauthorized")
}
