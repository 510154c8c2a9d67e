// Package server implements the TaskZen REST API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/bcrypt"

	"github.com/nhle/taskzen/internal/mailer"
	"github.com/nhle/taskzen/internal/model"
	"github.com/nhle/taskzen/internal/store"
)

// maxBodyBytes caps the size of request bodies.
const maxBodyBytes = 1 << 20

// Server serves the TaskZen REST API.
type Server struct {
	store      store.Store
	mailer     mailer.Mailer
	cfg        model.ServerConfig
	tokens     *tokenIssuer
	logger     *log.Logger
	now        func() time.Time
	bcryptCost int
	started    time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger replaces the logger. A nil logger discards output.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l == nil {
			l = log.New(io.Discard, "", 0)
		}
		s.logger = l
	}
}

// WithClock replaces the time source used for tokens and overdue checks.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.bcryptCost = cost }
}

// New creates a server backed by st that sends account mail through m.
func New(st store.Store, m mailer.Mailer, cfg *model.ServerConfig, opts ...Option) *Server {
	s := &Server{
		store:      st,
		mailer:     m,
		cfg:        *cfg,
		logger:     log.New(os.Stderr, "[server] ", log.LstdFlags),
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tokens = &tokenIssuer{
		secret: []byte(cfg.Auth.JWTSecret),
		ttl:    cfg.Auth.TokenTTL,
		now:    s.now,
	}
	s.started = s.now()
	return s
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.cfg.WriteTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.WriteTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
		r.Post("/verify-email", s.handleVerifyEmail)
		r.Post("/send-verification-email", s.handleSendVerification)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/logout", s.handleLogout)
			r.Get("/me", s.handleMe)
			r.Get("/users", s.handleListUsers)
			r.Put("/users/{id}", s.handleUpdateUser)
		})
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleCreateTask)
		r.Put("/{id}", s.handleUpdateTask)
		r.Delete("/{id}", s.handleDeleteTask)
	})

	return r
}

type healthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	sendJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Uptime:    now.Sub(s.started).Round(time.Second).String(),
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, msg string) {
	sendJSON(w, status, errorResponse{Error: msg})
}

// internalError logs err and answers 500 without leaking details.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Printf("%s %s: %s: %v", r.Method, r.URL.Path, op, err)
	sendError(w, http.StatusInternalServerError, "internal server error")
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	return nil
}
