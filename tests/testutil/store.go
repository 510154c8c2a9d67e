package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nhle/taskzen/internal/model"
	"github.com/nhle/taskzen/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedUser inserts a user with a placeholder password hash.
func SeedUser(t *testing.T, s store.Store, email string, role model.Role) model.User {
	t.Helper()

	first, _, _ := strings.Cut(email, "@")
	u, err := s.CreateUser(context.Background(), store.UserRecord{
		User: model.User{
			Email:     email,
			FirstName: first,
			LastName:  "Tester",
			Role:      role,
		},
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("seeding user %s: %v", email, err)
	}
	return *u
}

// SeedTask inserts a task assigned by assigner to assignee.
func SeedTask(t *testing.T, s store.Store, title string, assigner, assignee model.User, opts ...func(*model.Task)) model.Task {
	t.Helper()

	task := model.Task{
		Title:          title,
		Priority:       model.PriorityMedium,
		Status:         model.StatusToDo,
		AssignerID:     assigner.ID,
		AssignedUserID: &assignee.ID,
	}
	for _, opt := range opts {
		opt(&task)
	}

	created, err := s.CreateTask(context.Background(), task)
	if err != nil {
		t.Fatalf("seeding task %q: %v", title, err)
	}
	return *created
}

// Clock is a settable time source for stores and session managers.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the clock's current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
