// Package session tracks the authenticated identity, its inactivity
// timeout, and role-based access checks.
package session

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nhle/taskzen/internal/api"
	"github.com/nhle/taskzen/internal/credential"
	"github.com/nhle/taskzen/internal/model"
)

// State is the authentication state of the session.
type State int

const (
	StateUnauthenticated State = iota
	StateLoading
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Reasons passed to the redirect hook when a session ends.
const (
	ReasonLogout         = "logout"
	ReasonSessionExpired = "session_expired"
	ReasonUnauthorized   = "unauthorized"
)

// AuthClient is the subset of the REST client the manager depends on.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (*api.AuthResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*model.User, error)
	Users(ctx context.Context) ([]model.User, error)
	SetToken(token string)
	OnUnauthorized(fn func())
}

// Result is the outcome of Login and Signup. Failures are reported here
// rather than as errors.
type Result struct {
	Success bool
	User    *model.User
	Message string

	// EmailExists is set when signup failed because the address is
	// already registered; the caller should offer to log in instead.
	EmailExists bool
}

// SignupRequest holds the fields needed to create an account.
type SignupRequest struct {
	Name     string
	Email    string
	Role     model.Role
	Password string
}

// Manager owns the current session. It is safe for concurrent use.
type Manager struct {
	client AuthClient
	tokens credential.TokenStore
	cfg    model.SessionConfig
	now    func() time.Time
	logger *log.Logger

	mu           sync.Mutex
	state        State
	user         *model.User
	users        []model.User
	lastActivity time.Time
	expiresAt    time.Time
	loggingOut   bool
	redirect     func(reason string)
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig sets the timeout, warning, throttle, and check intervals.
// Zero values keep the defaults.
func WithConfig(cfg model.SessionConfig) Option {
	return func(m *Manager) {
		if cfg.Timeout > 0 {
			m.cfg.Timeout = cfg.Timeout
		}
		if cfg.WarningThreshold > 0 {
			m.cfg.WarningThreshold = cfg.WarningThreshold
		}
		if cfg.ActivityThrottle > 0 {
			m.cfg.ActivityThrottle = cfg.ActivityThrottle
		}
		if cfg.CheckInterval > 0 {
			m.cfg.CheckInterval = cfg.CheckInterval
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger replaces the logger. A nil logger discards output.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l == nil {
			l = log.New(io.Discard, "", 0)
		}
		m.logger = l
	}
}

// New creates a manager in the Unauthenticated state and registers it to
// end the session when the client sees a 401.
func New(client AuthClient, tokens credential.TokenStore, opts ...Option) *Manager {
	m := &Manager{
		client: client,
		tokens: tokens,
		cfg:    model.DefaultClientConfig().Session,
		now:    time.Now,
		logger: log.New(os.Stderr, "[session] ", log.LstdFlags),
		state:  StateUnauthenticated,
	}
	for _, opt := range opts {
		opt(m)
	}
	client.OnUnauthorized(m.handleUnauthorized)
	return m
}

// OnRedirect registers fn to be called with a reason whenever the session
// ends and the user should be sent to the login entry point.
func (m *Manager) OnRedirect(fn func(reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirect = fn
}

// State returns the current authentication state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentUser returns the authenticated user, or nil.
func (m *Manager) CurrentUser() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Users returns the user list fetched at login.
func (m *Manager) Users() []model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.User(nil), m.users...)
}

// Init restores a persisted session. It is Loading while the server is
// asked who owns the stored token; without a valid token the session
// resolves to Unauthenticated.
func (m *Manager) Init(ctx context.Context) State {
	m.mu.Lock()
	m.state = StateLoading
	m.mu.Unlock()

	token, err := m.tokens.Get()
	if err != nil {
		if !errors.Is(err, credential.ErrNotFound) {
			m.logger.Printf("reading stored token: %v", err)
		}
		return m.setUnauthenticated()
	}

	m.client.SetToken(token)
	user, err := m.client.Me(ctx)
	if err != nil {
		// The server could not be asked; keep the token for next time.
		m.logger.Printf("verifying session: %v", err)
		m.client.SetToken("")
		return m.setUnauthenticated()
	}
	if user == nil {
		m.discardToken()
		return m.setUnauthenticated()
	}

	m.authenticate(ctx, *user)
	return StateAuthenticated
}

// Login authenticates with e-mail and password.
func (m *Manager) Login(ctx context.Context, email, password string) Result {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Result{Message: "Email and password are required."}
	}

	resp, err := m.client.Login(ctx, email, password)
	if err != nil {
		m.logger.Printf("login failed for %s: %v", email, err)
		return Result{Message: api.UserMessage(err)}
	}

	m.establish(ctx, resp)
	user := resp.User
	return Result{Success: true, User: &user}
}

// Signup creates an account and starts a session for it.
func (m *Manager) Signup(ctx context.Context, req SignupRequest) Result {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		return Result{Message: "Name, email and password are required."}
	}

	resp, err := m.client.Register(ctx, api.RegisterRequest{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Role:     req.Role,
		Password: req.Password,
	})
	if err != nil {
		if isEmailTaken(err) {
			return Result{
				Message:     "An account with this email already exists. Please log in instead.",
				EmailExists: true,
			}
		}
		m.logger.Printf("signup failed for %s: %v", req.Email, err)
		return Result{Message: api.UserMessage(err)}
	}

	m.establish(ctx, resp)
	user := resp.User
	return Result{Success: true, User: &user}
}

func isEmailTaken(err error) bool {
	if api.IsStatus(err, http.StatusConflict) {
		return true
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
		msg := strings.ToLower(apiErr.Message)
		return strings.Contains(msg, "already registered") || strings.Contains(msg, "already exists")
	}
	return false
}

// Logout ends the session. The server is told first, but a failure there
// is only logged; the local session is always cleared.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.loggingOut = true
	m.mu.Unlock()

	if err := m.client.Logout(ctx); err != nil {
		m.logger.Printf("server logout failed: %v", err)
	}

	m.end(ReasonLogout)
}

// RecordActivity marks user interaction, extending the session. Calls
// closer together than the throttle interval are ignored. It reports
// whether the activity was recorded.
func (m *Manager) RecordActivity() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAuthenticated {
		return false
	}
	now := m.now()
	if now.Sub(m.lastActivity) < m.cfg.ActivityThrottle {
		return false
	}
	m.lastActivity = now
	m.expiresAt = now.Add(m.cfg.Timeout)
	return true
}

// ExpiresAt returns when the session ends without further activity.
func (m *Manager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

// Remaining returns the time left before the session expires.
func (m *Manager) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated {
		return 0
	}
	if left := m.expiresAt.Sub(m.now()); left > 0 {
		return left
	}
	return 0
}

// InWarningWindow reports whether the session is close enough to expiry
// that the user should be warned.
func (m *Manager) InWarningWindow() bool {
	left := m.Remaining()
	return left > 0 && left <= m.cfg.WarningThreshold
}

// CheckExpiry ends the session if it has expired and reports whether it
// did.
func (m *Manager) CheckExpiry() bool {
	m.mu.Lock()
	expired := m.state == StateAuthenticated && !m.now().Before(m.expiresAt)
	m.mu.Unlock()

	if expired {
		m.logger.Printf("session expired after %s of inactivity", m.cfg.Timeout)
		m.end(ReasonSessionExpired)
	}
	return expired
}

// Run checks for expiry every check interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckExpiry()
		}
	}
}

// CanAccess reports whether the current user's role grants at least the
// required role. It is false without a session.
func (m *Manager) CanAccess(required model.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated || m.user == nil {
		return false
	}
	return m.user.Role.Satisfies(required)
}

// handleUnauthorized ends an active session rejected by the server.
func (m *Manager) handleUnauthorized() {
	m.mu.Lock()
	active := m.state == StateAuthenticated && !m.loggingOut
	m.mu.Unlock()

	if active {
		m.logger.Printf("session rejected by server")
		m.end(ReasonUnauthorized)
	}
}

// establish stores the token from a login or signup and authenticates.
func (m *Manager) establish(ctx context.Context, resp *api.AuthResponse) {
	if err := m.tokens.Set(resp.Token); err != nil {
		m.logger.Printf("persisting session token: %v", err)
	}
	m.client.SetToken(resp.Token)
	m.authenticate(ctx, resp.User)
}

func (m *Manager) authenticate(ctx context.Context, user model.User) {
	users, err := m.client.Users(ctx)
	if err != nil {
		m.logger.Printf("refreshing user list: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.state = StateAuthenticated
	m.user = &user
	if err == nil {
		m.users = users
	}
	m.lastActivity = now
	m.expiresAt = now.Add(m.cfg.Timeout)
	m.loggingOut = false
}

// end resets all local session state and fires the redirect hook.
func (m *Manager) end(reason string) {
	m.discardToken()

	m.mu.Lock()
	m.state = StateUnauthenticated
	m.user = nil
	m.users = nil
	m.expiresAt = time.Time{}
	m.lastActivity = time.Time{}
	m.loggingOut = false
	redirect := m.redirect
	m.mu.Unlock()

	if redirect != nil {
		redirect(reason)
	}
}

func (m *Manager) discardToken() {
	m.client.SetToken("")
	if err := m.tokens.Delete(); err != nil {
		m.logger.Printf("deleting stored token: %v", err)
	}
}

func (m *Manager) setUnauthenticated() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateUnauthenticated
	m.user = nil
	return m.state
}
