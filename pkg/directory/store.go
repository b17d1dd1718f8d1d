package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Store is the directory persistence interface
type Store interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error)
	DeleteUser(ctx context.Context, id string) error

	GetStation(ctx context.Context, id string) (*Station, error)
	ListStations(ctx context.Context, filter StationFilter) ([]*Station, error)
	CreateStation(ctx context.Context, station *Station) error
	UpdateStation(ctx context.Context, id string, update StationUpdate) (*Station, error)
	DeleteStation(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}

const userColumns = `id, email, name, phone, role, "stationId", "createdAt", "updatedAt"`

const stationColumns = `id, name, location, "createdAt", "updatedAt"`

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed directory store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping verifies the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by ID
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM "User" WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM "User" WHERE email = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// EmailTaken reports whether any row other than excludeID uses email.
// Pass an empty excludeID to check the whole directory.
func (s *PostgresStore) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM "User" WHERE email = $1 AND id <> $2)`

	var taken bool
	if err := s.db.QueryRowContext(ctx, query, email, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return taken, nil
}

// ListUsers returns users matching the filter ordered by name
func (s *PostgresStore) ListUsers(ctx context.Context, filter UserFilter) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM "User"`
	conditions := []string{}
	args := []interface{}{}
	argPos := 1

	if len(filter.Roles) > 0 {
		roles := make([]string, len(filter.Roles))
		for i, role := range filter.Roles {
			roles[i] = string(role)
		}
		conditions = append(conditions, fmt.Sprintf("role = ANY($%d)", argPos))
		args = append(args, pq.Array(roles))
		argPos++
	}
	if filter.StationID != nil {
		conditions = append(conditions, fmt.Sprintf(`"stationId" = $%d`, argPos))
		args = append(args, *filter.StationID)
		argPos++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

// CreateUser inserts a directory row. The ID must already be assigned.
func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO "User" (id, email, name, phone, role, "stationId")
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING "createdAt", "updatedAt"
	`

	err := s.db.QueryRowContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.Phone,
		string(user.Role),
		user.StationID,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return ErrDuplicateEmail
		case isForeignKeyViolation(err):
			return ErrStationNotFound
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// UpdateUser applies a partial update and returns the stored row
func (s *PostgresStore) UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error) {
	if update.IsEmpty() {
		return s.GetUser(ctx, id)
	}

	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if update.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *update.Name)
		argPos++
	}
	if update.Phone != nil {
		setClauses = append(setClauses, fmt.Sprintf("phone = $%d", argPos))
		args = append(args, *update.Phone)
		argPos++
	}
	if update.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", argPos))
		args = append(args, *update.Email)
		argPos++
	}
	if update.Role != nil {
		setClauses = append(setClauses, fmt.Sprintf("role = $%d", argPos))
		args = append(args, string(*update.Role))
		argPos++
	}
	if update.SetStation {
		setClauses = append(setClauses, fmt.Sprintf(`"stationId" = $%d`, argPos))
		args = append(args, update.StationID)
		argPos++
	}
	setClauses = append(setClauses, `"updatedAt" = NOW()`)

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE "User" SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argPos, userColumns)

	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		if isForeignKeyViolation(err) {
			return nil, ErrStationNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return user, nil
}

// DeleteUser removes a directory row
func (s *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM "User" WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetStation retrieves a station by ID
func (s *PostgresStore) GetStation(ctx context.Context, id string) (*Station, error) {
	query := `SELECT ` + stationColumns + ` FROM "Station" WHERE id = $1`

	station, err := scanStation(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get station: %w", err)
	}
	return station, nil
}

// ListStations returns stations ordered by name
func (s *PostgresStore) ListStations(ctx context.Context, filter StationFilter) ([]*Station, error) {
	query := `SELECT ` + stationColumns + ` FROM "Station"`
	args := []interface{}{}

	if filter.ID != nil {
		query += " WHERE id = $1"
		args = append(args, *filter.ID)
	}
	query += " ORDER BY name, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	defer rows.Close()

	stations := []*Station{}
	for rows.Next() {
		station, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		stations = append(stations, station)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}

	return stations, nil
}

// CreateStation inserts a station. The ID must already be assigned.
func (s *PostgresStore) CreateStation(ctx context.Context, station *Station) error {
	query := `
		INSERT INTO "Station" (id, name, location)
		VALUES ($1, $2, $3)
		RETURNING "createdAt", "updatedAt"
	`

	err := s.db.QueryRowContext(ctx, query, station.ID, station.Name, station.Location).
		Scan(&station.CreatedAt, &station.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create station: %w", err)
	}

	return nil
}

// UpdateStation applies a partial update and returns the stored row
func (s *PostgresStore) UpdateStation(ctx context.Context, id string, update StationUpdate) (*Station, error) {
	if update.IsEmpty() {
		return s.GetStation(ctx, id)
	}

	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if update.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *update.Name)
		argPos++
	}
	if update.Location != nil {
		setClauses = append(setClauses, fmt.Sprintf("location = $%d", argPos))
		args = append(args, *update.Location)
		argPos++
	}
	setClauses = append(setClauses, `"updatedAt" = NOW()`)

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE "Station" SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argPos, stationColumns)

	station, err := scanStation(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update station: %w", err)
	}

	return station, nil
}

// DeleteStation removes a station with no users assigned
func (s *PostgresStore) DeleteStation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM "Station" WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrStationInUse
		}
		return fmt.Errorf("failed to delete station: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var role string
	var stationID sql.NullString

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Phone,
		&role,
		&stationID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Role = Role(role)
	if stationID.Valid {
		user.StationID = &stationID.String
	}
	return &user, nil
}

func scanStation(row rowScanner) (*Station, error) {
	var station Station
	err := row.Scan(
		&station.ID,
		&station.Name,
		&station.Location,
		&station.CreatedAt,
		&station.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &station, nil
}

// IsNotFound reports whether err is a directory not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
