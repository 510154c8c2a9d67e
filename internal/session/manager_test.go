package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskzen/internal/api"
	"github.com/nhle/taskzen/internal/credential"
	"github.com/nhle/taskzen/internal/model"
)

type fakeAuth struct {
	mu             sync.Mutex
	token          string
	onUnauthorized func()

	loginErr    error
	registerErr error
	logoutErr   error
	meUser      *model.User
	meErr       error
	logoutCalls int
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (*api.AuthResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &api.AuthResponse{Token: "tok-" + email, User: model.User{ID: "u-1", Email: email, Role: model.RoleUser}}, nil
}

func (f *fakeAuth) Register(_ context.Context, req api.RegisterRequest) (*api.AuthResponse, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	first, last := model.SplitName(req.Name)
	return &api.AuthResponse{
		Token: "tok-new",
		User:  model.User{ID: "u-2", Email: req.Email, FirstName: first, LastName: last, Role: req.Role},
	}, nil
}

func (f *fakeAuth) Logout(context.Context) error {
	f.mu.Lock()
	f.logoutCalls++
	f.mu.Unlock()
	return f.logoutErr
}

func (f *fakeAuth) Me(context.Context) (*model.User, error) {
	return f.meUser, f.meErr
}

func (f *fakeAuth) Users(context.Context) ([]model.User, error) {
	return []model.User{{ID: "u-1"}, {ID: "u-2"}}, nil
}

func (f *fakeAuth) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *fakeAuth) OnUnauthorized(fn func()) { f.onUnauthorized = fn }

func (f *fakeAuth) currentToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newManager(t *testing.T, auth *fakeAuth) (*Manager, *credential.MemoryStore, *clock, *[]string) {
	t.Helper()
	store := credential.NewMemoryStore()
	clk := &clock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
	m := New(auth, store, WithClock(clk.Now), WithLogger(nil))
	var reasons []string
	m.OnRedirect(func(reason string) { reasons = append(reasons, reason) })
	return m, store, clk, &reasons
}

func TestLoginSuccess(t *testing.T) {
	auth := &fakeAuth{}
	m, store, _, _ := newManager(t, auth)

	res := m.Login(context.Background(), "ada@example.com", "secret")
	require.True(t, res.Success)
	assert.Equal(t, "ada@example.com", res.User.Email)

	assert.Equal(t, StateAuthenticated, m.State())
	assert.Equal(t, "tok-ada@example.com", auth.currentToken())
	stored, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "tok-ada@example.com", stored)
	assert.Len(t, m.Users(), 2)
}

func TestLoginFailureDoesNotAuthenticate(t *testing.T) {
	auth := &fakeAuth{loginErr: &api.APIError{StatusCode: http.StatusUnauthorized, Message: "Invalid email or password"}}
	m, store, _, _ := newManager(t, auth)

	res := m.Login(context.Background(), "ada@example.com", "wrong")
	assert.False(t, res.Success)
	assert.Equal(t, "Invalid email or password", res.Message)
	assert.Equal(t, StateUnauthenticated, m.State())

	_, err := store.Get()
	assert.ErrorIs(t, err, credential.ErrNotFound)
}

func TestLoginRequiresCredentials(t *testing.T) {
	m, _, _, _ := newManager(t, &fakeAuth{})
	res := m.Login(context.Background(), "  ", "")
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
}

func TestSignupEmailAlreadyRegistered(t *testing.T) {
	auth := &fakeAuth{registerErr: &api.APIError{StatusCode: http.StatusConflict, Message: "email already registered"}}
	m, _, _, _ := newManager(t, auth)

	res := m.Signup(context.Background(), SignupRequest{Name: "Ada Lovelace", Email: "ada@example.com", Password: "pw"})
	assert.False(t, res.Success)
	assert.True(t, res.EmailExists)
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestSignupOtherFailure(t *testing.T) {
	auth := &fakeAuth{registerErr: &api.APIError{StatusCode: http.StatusBadRequest, Message: "password too short"}}
	m, _, _, _ := newManager(t, auth)

	res := m.Signup(context.Background(), SignupRequest{Name: "Ada", Email: "ada@example.com", Password: "pw"})
	assert.False(t, res.Success)
	assert.False(t, res.EmailExists)
	assert.Equal(t, "password too short", res.Message)
}

func TestSignupSuccess(t *testing.T) {
	m, _, _, _ := newManager(t, &fakeAuth{})

	res := m.Signup(context.Background(), SignupRequest{
		Name: "Ada Lovelace", Email: "ada@example.com", Role: model.RoleAdmin, Password: "pw",
	})
	require.True(t, res.Success)
	assert.Equal(t, "Lovelace", res.User.LastName)
	assert.True(t, m.CanAccess(model.RoleAdmin))
}

func TestLogoutIsBestEffort(t *testing.T) {
	auth := &fakeAuth{logoutErr: errors.New("network down")}
	m, store, _, reasons := newManager(t, auth)
	require.True(t, m.Login(context.Background(), "ada@example.com", "pw").Success)

	m.Logout(context.Background())

	assert.Equal(t, 1, auth.logoutCalls)
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Nil(t, m.CurrentUser())
	assert.Empty(t, auth.currentToken())
	_, err := store.Get()
	assert.ErrorIs(t, err, credential.ErrNotFound)
	assert.Equal(t, []string{ReasonLogout}, *reasons)
}

func TestSessionExpiresAfterInactivity(t *testing.T) {
	m, _, clk, reasons := newManager(t, &fakeAuth{})
	require.True(t, m.Login(context.Background(), "ada@example.com", "pw").Success)

	clk.Advance(24 * time.Minute)
	assert.False(t, m.InWarningWindow())
	assert.False(t, m.CheckExpiry())

	clk.Advance(2 * time.Minute)
	assert.True(t, m.InWarningWindow())
	assert.Equal(t, 4*time.Minute, m.Remaining())

	clk.Advance(4 * time.Minute)
	assert.True(t, m.CheckExpiry())
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Equal(t, []string{ReasonSessionExpired}, *reasons)
}

func TestActivityExtendsSessionWithThrottle(t *testing.T) {
	m, _, clk, _ := newManager(t, &fakeAuth{})
	require.True(t, m.Login(context.Background(), "ada@example.com", "pw").Success)
	start := m.ExpiresAt()

	clk.Advance(5 * time.Second)
	assert.False(t, m.RecordActivity(), "within throttle window")
	assert.Equal(t, start, m.ExpiresAt())

	clk.Advance(6 * time.Second)
	assert.True(t, m.RecordActivity())
	assert.Equal(t, start.Add(11*time.Second), m.ExpiresAt())

	clk.Advance(29 * time.Minute)
	assert.False(t, m.CheckExpiry())
}

func TestRecordActivityIgnoredWithoutSession(t *testing.T) {
	m, _, _, _ := newManager(t, &fakeAuth{})
	assert.False(t, m.RecordActivity())
	assert.Zero(t, m.Remaining())
}

func TestUnauthorizedResponseEndsSession(t *testing.T) {
	auth := &fakeAuth{}
	m, _, _, reasons := newManager(t, auth)
	require.True(t, m.Login(context.Background(), "ada@example.com", "pw").Success)

	auth.onUnauthorized()

	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Equal(t, []string{ReasonUnauthorized}, *reasons)

	// A second rejection after the session is gone is a no-op.
	auth.onUnauthorized()
	assert.Len(t, *reasons, 1)
}

func TestInitRestoresStoredSession(t *testing.T) {
	auth := &fakeAuth{meUser: &model.User{ID: "u-1", Email: "ada@example.com", Role: model.RoleAdmin}}
	m, store, _, _ := newManager(t, auth)
	require.NoError(t, store.Set("stored-token"))

	assert.Equal(t, StateAuthenticated, m.Init(context.Background()))
	assert.Equal(t, "stored-token", auth.currentToken())
	assert.Equal(t, "u-1", m.CurrentUser().ID)
}

func TestInitWithRejectedTokenHasNoSession(t *testing.T) {
	auth := &fakeAuth{}
	m, store, _, reasons := newManager(t, auth)
	require.NoError(t, store.Set("stale"))

	assert.Equal(t, StateUnauthenticated, m.Init(context.Background()))
	_, err := store.Get()
	assert.ErrorIs(t, err, credential.ErrNotFound)
	assert.Empty(t, *reasons)
}

func TestInitWithoutTokenHasNoSession(t *testing.T) {
	m, _, _, _ := newManager(t, &fakeAuth{})
	assert.Equal(t, StateUnauthenticated, m.Init(context.Background()))
}

func TestCanAccessRoleHierarchy(t *testing.T) {
	tests := []struct {
		role     model.Role
		required model.Role
		want     bool
	}{
		{model.RoleAdmin, model.RoleUser, true},
		{model.RoleUser, model.RoleUser, true},
		{model.RoleAdmin, model.RoleAdmin, true},
		{model.RoleUser, model.RoleAdmin, false},
	}
	for _, tt := range tests {
		auth := &fakeAuth{meUser: &model.User{ID: "u", Role: tt.role}}
		m, store, _, _ := newManager(t, auth)
		require.NoError(t, store.Set("tok"))
		m.Init(context.Background())

		assert.Equal(t, tt.want, m.CanAccess(tt.required), "%s requires %s", tt.role, tt.required)
	}

	m, _, _, _ := newManager(t, &fakeAuth{})
	assert.False(t, m.CanAccess(model.RoleUser), "unauthenticated")
}

func TestRunStopsWithContext(t *testing.T) {
	m, _, _, _ := newManager(t, &fakeAuth{})
	m.cfg.CheckInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
