package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/taskzen/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when creating a user whose e-mail is
	// already registered.
	ErrEmailTaken = errors.New("email already registered")

	// ErrTokenExpired is returned when consuming an expired verification
	// token.
	ErrTokenExpired = errors.New("token expired")
)

// UserRecord is a user together with its stored password hash.
type UserRecord struct {
	model.User
	PasswordHash string
}

// TaskQuery controls filtering, sorting, and pagination for task queries.
type TaskQuery struct {
	Statuses   []model.TaskStatus // any of these, or all when empty
	Priorities []model.Priority   // any of these, or all when empty
	AssigneeID string
	AssignerID string

	// VisibleTo restricts results to tasks the user assigned or is
	// assigned to. Empty means no restriction.
	VisibleTo string

	Search   string // title + description
	DateFrom *time.Time
	DateTo   *time.Time

	// Overdue selects overdue (true) or not-overdue (false) tasks as of Now.
	Overdue *bool
	Now     time.Time

	SortBy   model.SortField
	SortDesc bool
	Limit    int
	Offset   int
}

// Store defines the persistence interface for users, tasks, and the
// tokens backing e-mail verification and logout.
type Store interface {
	// === Users ===

	CreateUser(ctx context.Context, u UserRecord) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*UserRecord, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, u model.User) error
	MarkEmailVerified(ctx context.Context, userID string) error

	// === Tasks ===

	CreateTask(ctx context.Context, t model.Task) (*model.Task, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, q TaskQuery) ([]model.Task, error)
	CountTasks(ctx context.Context, q TaskQuery) (int, error)
	UpdateTask(ctx context.Context, t model.Task) (*model.Task, error)
	SoftDeleteTask(ctx context.Context, id string) error

	// === Tokens ===

	CreateVerificationToken(ctx context.Context, userID string, ttl time.Duration) (string, error)
	ConsumeVerificationToken(ctx context.Context, token string) (string, error)
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)

	Close() error
}
