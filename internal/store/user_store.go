package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nhle/taskzen/internal/model"
)

const userColumns = `id, email, first_name, last_name, name, role, email_verified, created_at`

// CreateUser inserts a new user. Generates a UUID if ID is empty.
func (s *SQLiteStore) CreateUser(ctx context.Context, u UserRecord) (*model.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email == "" {
		return nil, fmt.Errorf("user email must not be empty")
	}
	if u.PasswordHash == "" {
		return nil, fmt.Errorf("user password hash must not be empty")
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	u.CreatedAt = s.timestamp()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, first_name, last_name, name, role,
			password_hash, email_verified, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.Name, u.Role,
		u.PasswordHash, boolToInt(u.EmailVerified), u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	user := u.User
	return &user, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user and its password hash by e-mail,
// ignoring case.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*UserRecord, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+userColumns+", password_hash FROM users WHERE email = ?",
		strings.ToLower(strings.TrimSpace(email)),
	)

	var (
		rec      UserRecord
		verified int
	)
	err := row.Scan(
		&rec.ID, &rec.Email, &rec.FirstName, &rec.LastName, &rec.Name, &rec.Role,
		&verified, &rec.CreatedAt, &rec.PasswordHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("getting user %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("getting user %s: %w", email, err)
	}
	rec.EmailVerified = verified != 0
	return &rec, nil
}

// ListUsers returns every user ordered by name.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY first_name, last_name, email")
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUser updates the profile fields and role of an existing user.
func (s *SQLiteStore) UpdateUser(ctx context.Context, u model.User) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET first_name = ?, last_name = ?, name = ?, role = ?
		WHERE id = ?`,
		u.FirstName, u.LastName, u.Name, u.Role, u.ID,
	)
	if err != nil {
		return fmt.Errorf("updating user %s: %w", u.ID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("updating user %s: %w", u.ID, ErrNotFound)
	}
	return nil
}

// MarkEmailVerified flags the user's address as confirmed.
func (s *SQLiteStore) MarkEmailVerified(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET email_verified = 1 WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("verifying user %s: %w", userID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("verifying user %s: %w", userID, ErrNotFound)
	}
	return nil
}

func scanUser(row scanner) (model.User, error) {
	var (
		u        model.User
		verified int
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Name, &u.Role,
		&verified, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("scanning user row: %w", err)
	}
	u.EmailVerified = verified != 0
	return u, nil
}
