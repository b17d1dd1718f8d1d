// Package seed loads stations and users from a YAML file into the
// directory and the identity provider.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/platinummonkey/fuelops/pkg/identity"
	"github.com/platinummonkey/fuelops/pkg/observability"
	"github.com/platinummonkey/fuelops/pkg/validation"
	"gopkg.in/yaml.v3"
)

// File is the seed document
type File struct {
	Stations []Station `yaml:"stations"`
	Users    []User    `yaml:"users"`
}

// Station is a seeded station. ID is kept stable so reseeding updates it.
type Station struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
}

// User is a seeded account and directory row
type User struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	Name     string `yaml:"name"`
	Phone    string `yaml:"phone"`
	// Station references a Station ID, from this file or already stored
	Station string `yaml:"station,omitempty"`
}

// Load decodes a seed file and validates it. Unknown keys are rejected.
func Load(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks required fields, emails and roles of every entry
func (f *File) Validate() error {
	var errs []error

	stationIDs := make(map[string]bool, len(f.Stations))
	for i, s := range f.Stations {
		v := validation.NewValidator().
			Required("id", s.ID).
			Required("name", s.Name).
			Required("location", s.Location)
		if err := v.Err(); err != nil {
			errs = append(errs, fmt.Errorf("stations[%d]: %w", i, err))
		}
		if stationIDs[s.ID] {
			errs = append(errs, fmt.Errorf("stations[%d]: duplicate id %q", i, s.ID))
		}
		stationIDs[s.ID] = true
	}

	emails := make(map[string]bool, len(f.Users))
	for i, u := range f.Users {
		email := validation.NormalizeEmail(u.Email)
		v := validation.NewValidator().
			Required("email", email).
			Required("password", u.Password).
			Required("name", u.Name).
			Required("phone", u.Phone).
			Email("email", email)
		if !directory.Role(u.Role).Valid() {
			errs = append(errs, fmt.Errorf("users[%d]: %s %q", i, validation.MsgInvalidRole, u.Role))
		}
		if err := v.Err(); err != nil {
			errs = append(errs, fmt.Errorf("users[%d]: %w", i, err))
		}
		if emails[email] {
			errs = append(errs, fmt.Errorf("users[%d]: duplicate email %q", i, email))
		}
		emails[email] = true
	}

	return errors.Join(errs...)
}

// Report summarizes an Apply run
type Report struct {
	StationsCreated int
	StationsUpdated int
	UsersCreated    int
	UsersUpdated    int
	Failures        []error
}

// Err joins the failures, or returns nil when every entry was applied
func (r *Report) Err() error {
	return errors.Join(r.Failures...)
}

func (r *Report) fail(err error) {
	r.Failures = append(r.Failures, err)
}

// Seeder applies seed files
type Seeder struct {
	store    directory.Store
	provider identity.Provider
	logger   *observability.Logger
}

// NewSeeder creates a seeder
func NewSeeder(store directory.Store, provider identity.Provider, logger *observability.Logger) *Seeder {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Seeder{store: store, provider: provider, logger: logger}
}

// Apply upserts every station, then every user. A failing entry is
// recorded and the run continues with the next one.
func (s *Seeder) Apply(ctx context.Context, f *File) *Report {
	report := &Report{}

	for _, station := range f.Stations {
		if err := ctx.Err(); err != nil {
			report.fail(err)
			return report
		}
		created, err := s.upsertStation(ctx, station)
		switch {
		case err != nil:
			report.fail(fmt.Errorf("station %s: %w", station.ID, err))
			s.logger.WithError(err).WithField("station", station.ID).Error("failed to seed station")
		case created:
			report.StationsCreated++
			s.logger.WithField("station", station.ID).Info("created station")
		default:
			report.StationsUpdated++
			s.logger.WithField("station", station.ID).Info("updated station")
		}
	}

	for _, user := range f.Users {
		if err := ctx.Err(); err != nil {
			report.fail(err)
			return report
		}
		email := validation.NormalizeEmail(user.Email)
		created, err := s.upsertUser(ctx, user)
		switch {
		case err != nil:
			report.fail(fmt.Errorf("user %s: %w", email, err))
			s.logger.WithError(err).WithField("email", email).Error("failed to seed user")
		case created:
			report.UsersCreated++
			s.logger.WithField("email", email).WithField("role", user.Role).Info("created user")
		default:
			report.UsersUpdated++
			s.logger.WithField("email", email).WithField("role", user.Role).Info("updated user")
		}
	}

	return report
}

func (s *Seeder) upsertStation(ctx context.Context, st Station) (bool, error) {
	_, err := s.store.GetStation(ctx, st.ID)
	if errors.Is(err, directory.ErrNotFound) {
		station := &directory.Station{ID: st.ID, Name: st.Name, Location: st.Location}
		if err := s.store.CreateStation(ctx, station); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	_, err = s.store.UpdateStation(ctx, st.ID, directory.StationUpdate{Name: &st.Name, Location: &st.Location})
	return false, err
}

func stationRef(u User) *string {
	if id := strings.TrimSpace(u.Station); id != "" {
		return &id
	}
	return nil
}

// upsertUser updates the row of an existing email, or provisions a
// confirmed account and inserts its row
func (s *Seeder) upsertUser(ctx context.Context, u User) (bool, error) {
	email := validation.NormalizeEmail(u.Email)
	role := directory.Role(u.Role)
	name := strings.TrimSpace(u.Name)
	phone := strings.TrimSpace(u.Phone)
	stationID := stationRef(u)

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		_, err = s.store.UpdateUser(ctx, existing.ID, directory.UserUpdate{
			Role:       &role,
			Name:       &name,
			Phone:      &phone,
			SetStation: true,
			StationID:  stationID,
		})
		return false, err
	}
	if !errors.Is(err, directory.ErrNotFound) {
		return false, err
	}

	account, err := s.provider.CreateAccount(ctx, identity.AccountRequest{
		Email:    email,
		Password: u.Password,
		Metadata: map[string]interface{}{"name": name, "role": string(role), "phone": phone},
	})
	if err != nil {
		return false, fmt.Errorf("failed to create account: %w", err)
	}

	row := &directory.User{ID: account.ID, Email: email, Name: name, Phone: phone, Role: role, StationID: stationID}
	if err := s.store.CreateUser(ctx, row); err != nil {
		if derr := s.provider.DeleteAccount(context.WithoutCancel(ctx), account.ID); derr != nil {
			s.logger.WithError(derr).WithField("account_id", account.ID).
				Error("failed to remove account after directory insert failed; account is orphaned")
			return false, fmt.Errorf("failed to insert user: %w (cleanup failed: %v)", err, derr)
		}
		return false, fmt.Errorf("failed to insert user: %w", err)
	}
	return true, nil
}
