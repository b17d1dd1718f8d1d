package lifecycle

import (
	"context"
	"errors"
	"strings"

	"github.com/platinummonkey/fuelops/pkg/audit"
	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/platinummonkey/fuelops/pkg/rbac"
	"github.com/platinummonkey/fuelops/pkg/validation"
)

// StationInput is the body of a station create request
type StationInput struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// StationUpdateInput is the body of a station update. Absent fields are
// left unchanged but at least one must be given.
type StationUpdateInput struct {
	Name     *string `json:"name,omitempty"`
	Location *string `json:"location,omitempty"`
}

// ListStations returns the stations visible to the caller
func (s *Service) ListStations(ctx context.Context, caller *rbac.Caller) ([]*directory.Station, error) {
	decision := s.engine.Authorize(caller, rbac.EntityStation, rbac.ActionList, nil)
	if !decision.Allowed {
		return nil, s.deny(ctx, caller, rbac.ActionList, decision, audit.ResourceTypeStation, "", MsgStationNotFound)
	}
	if decision.MatchNone {
		return []*directory.Station{}, nil
	}

	stations, err := s.store.ListStations(ctx, directory.StationFilter{ID: decision.Scope})
	if err != nil {
		return nil, Upstream("Failed to list stations", err)
	}
	if stations == nil {
		stations = []*directory.Station{}
	}
	return stations, nil
}

// CreateStation adds a station
func (s *Service) CreateStation(ctx context.Context, caller *rbac.Caller, in StationInput) (*directory.Station, error) {
	decision := s.engine.Authorize(caller, rbac.EntityStation, rbac.ActionCreate, nil)
	if !decision.Allowed {
		return nil, s.deny(ctx, caller, rbac.ActionCreate, decision, audit.ResourceTypeStation, "", MsgStationNotFound)
	}

	name := strings.TrimSpace(in.Name)
	location := strings.TrimSpace(in.Location)
	if err := validation.NewValidator().Required("name", name).Required("location", location).Err(); err != nil {
		return nil, Validation(validation.MsgRequired)
	}

	station := &directory.Station{
		ID:       s.newID(),
		Name:     name,
		Location: location,
	}
	if err := s.store.CreateStation(ctx, station); err != nil {
		return nil, Upstream("Failed to create station", err)
	}

	s.record(ctx, caller, audit.EventTypeStationCreate, audit.ResourceTypeStation, station.ID,
		&audit.ChangeDetails{After: stationFields(station)}, "station created")
	return station, nil
}

// UpdateStation renames or relocates a station
func (s *Service) UpdateStation(ctx context.Context, caller *rbac.Caller, id string, in StationUpdateInput) (*directory.Station, error) {
	before, err := s.loadStation(ctx, caller, id, rbac.ActionUpdate)
	if err != nil {
		return nil, err
	}

	update := directory.StationUpdate{}
	v := validation.NewValidator()
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		v.Required("name", name)
		update.Name = &name
	}
	if in.Location != nil {
		location := strings.TrimSpace(*in.Location)
		v.Required("location", location)
		update.Location = &location
	}
	if update.IsEmpty() || !v.Valid() {
		return nil, Validation(validation.MsgRequired)
	}

	after, err := s.store.UpdateStation(ctx, id, update)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return nil, NotFound(MsgStationNotFound)
	case err != nil:
		return nil, Upstream("Failed to update station", err)
	}

	s.record(ctx, caller, audit.EventTypeStationUpdate, audit.ResourceTypeStation, id,
		&audit.ChangeDetails{Before: stationFields(before), After: stationFields(after)}, "station updated")
	return after, nil
}

// DeleteStation removes a station that no user references
func (s *Service) DeleteStation(ctx context.Context, caller *rbac.Caller, id string) error {
	before, err := s.loadStation(ctx, caller, id, rbac.ActionDelete)
	if err != nil {
		return err
	}

	err = s.store.DeleteStation(ctx, id)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return NotFound(MsgStationNotFound)
	case errors.Is(err, directory.ErrStationInUse):
		return Validation(MsgStationInUse)
	case err != nil:
		return Upstream("Failed to delete station", err)
	}

	s.record(ctx, caller, audit.EventTypeStationDelete, audit.ResourceTypeStation, id,
		&audit.ChangeDetails{Before: stationFields(before)}, "station deleted")
	return nil
}

func (s *Service) loadStation(ctx context.Context, caller *rbac.Caller, id string, action rbac.Action) (*directory.Station, error) {
	if caller == nil {
		return nil, s.deny(ctx, caller, action, rbac.Decision{Reason: rbac.ReasonUnauthenticated}, audit.ResourceTypeStation, id, "")
	}
	if !s.engine.Can(caller.Role, rbac.EntityStation, action) {
		return nil, s.deny(ctx, caller, action, rbac.Decision{Reason: rbac.ReasonRoleForbidden}, audit.ResourceTypeStation, id, "")
	}

	station, err := s.store.GetStation(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, NotFound(MsgStationNotFound)
	}
	if err != nil {
		return nil, Upstream("Failed to load station", err)
	}

	decision := s.engine.Authorize(caller, rbac.EntityStation, action, &rbac.Target{StationID: &station.ID})
	if !decision.Allowed {
		return nil, s.deny(ctx, caller, action, decision, audit.ResourceTypeStation, id, MsgStationNotFound)
	}
	return station, nil
}

func stationFields(station *directory.Station) map[string]interface{} {
	if station == nil {
		return nil
	}
	return map[string]interface{}{
		"name":     station.Name,
		"location": station.Location,
	}
}
