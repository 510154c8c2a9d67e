package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/nhle/taskzen/internal/model"
	"github.com/nhle/taskzen/internal/store"
)

// minPasswordLength is the shortest password accepted at registration.
const minPasswordLength = 8

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
	Password string     `json:"password"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

type usersResponse struct {
	Users []model.User `json:"users"`
}

type userUpdate struct {
	FirstName *string     `json:"firstName"`
	LastName  *string     `json:"lastName"`
	Name      *string     `json:"name"`
	Role      *model.Role `json:"role"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		sendError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	rec, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		s.internalError(w, r, "loading user", err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(req.Password)); err != nil {
		sendError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := s.tokens.issue(rec.User)
	if err != nil {
		s.internalError(w, r, "issuing token", err)
		return
	}
	s.logger.Printf("user %s logged in", rec.ID)
	sendJSON(w, http.StatusOK, authResponse{Token: token, User: rec.User})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case req.Name == "":
		sendError(w, http.StatusBadRequest, "Name is required")
		return
	case !strings.Contains(req.Email, "@"):
		sendError(w, http.StatusBadRequest, "A valid email address is required")
		return
	case len(req.Password) < minPasswordLength:
		sendError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleUser
	}
	if !req.Role.Valid() {
		sendError(w, http.StatusBadRequest, "Invalid role")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		s.internalError(w, r, "hashing password", err)
		return
	}

	first, last := model.SplitName(req.Name)
	user, err := s.store.CreateUser(r.Context(), store.UserRecord{
		User: model.User{
			Email:     req.Email,
			FirstName: first,
			LastName:  last,
			Name:      req.Name,
			Role:      req.Role,
		},
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			sendError(w, http.StatusConflict, "Email already registered")
			return
		}
		s.internalError(w, r, "creating user", err)
		return
	}

	s.sendVerification(r, *user)

	token, err := s.tokens.issue(*user)
	if err != nil {
		s.internalError(w, r, "issuing token", err)
		return
	}
	s.logger.Printf("user %s registered", user.ID)
	sendJSON(w, http.StatusCreated, authResponse{Token: token, User: *user})
}

// sendVerification issues a verification token and mails the link.
// Failures are logged; the user can ask for another mail.
func (s *Server) sendVerification(r *http.Request, user model.User) {
	token, err := s.store.CreateVerificationToken(r.Context(), user.ID, s.cfg.Auth.VerificationTTL)
	if err != nil {
		s.logger.Printf("creating verification token for %s: %v", user.ID, err)
		return
	}
	link := strings.TrimRight(s.cfg.PublicURL, "/") + "/verify-email?token=" + url.QueryEscape(token)
	if err := s.mailer.SendVerification(r.Context(), user.Email, link); err != nil {
		s.logger.Printf("sending verification email to %s: %v", user.Email, err)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	c := currentClaims(r.Context())
	if err := s.store.RevokeToken(r.Context(), c.ID, c.ExpiresAt.Time); err != nil {
		s.internalError(w, r, "revoking token", err)
		return
	}
	sendJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, currentUser(r.Context()))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.internalError(w, r, "listing users", err)
		return
	}
	sendJSON(w, http.StatusOK, usersResponse{Users: users})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	caller := currentUser(r.Context())
	id := chi.URLParam(r, "id")

	var req userUpdate
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	isAdmin := caller.Role.Satisfies(model.RoleAdmin)
	if caller.ID != id && !isAdmin {
		sendError(w, http.StatusForbidden, "You can only update your own profile")
		return
	}
	if req.Role != nil && !isAdmin {
		sendError(w, http.StatusForbidden, "Only admins can change roles")
		return
	}
	if req.Role != nil && !req.Role.Valid() {
		sendError(w, http.StatusBadRequest, "Invalid role")
		return
	}

	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendError(w, http.StatusNotFound, "User not found")
			return
		}
		s.internalError(w, r, "loading user", err)
		return
	}

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}

	if err := s.store.UpdateUser(r.Context(), *user); err != nil {
		s.internalError(w, r, "updating user", err)
		return
	}
	sendJSON(w, http.StatusOK, user)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Token) == "" {
		sendError(w, http.StatusBadRequest, "Verification token is required")
		return
	}

	userID, err := s.store.ConsumeVerificationToken(r.Context(), req.Token)
	switch {
	case errors.Is(err, store.ErrNotFound):
		sendError(w, http.StatusBadRequest, "Invalid verification token")
		return
	case errors.Is(err, store.ErrTokenExpired):
		sendError(w, http.StatusBadRequest, "Verification token has expired")
		return
	case err != nil:
		s.internalError(w, r, "consuming verification token", err)
		return
	}

	if err := s.store.MarkEmailVerified(r.Context(), userID); err != nil {
		s.internalError(w, r, "verifying email", err)
		return
	}
	sendJSON(w, http.StatusOK, messageResponse{Message: "Email verified"})
}

func (s *Server) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Email) == "" {
		sendError(w, http.StatusBadRequest, "Email is required")
		return
	}

	// The answer is the same whether or not the address is registered.
	const sent = "If the address is registered, a verification email has been sent"

	rec, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendJSON(w, http.StatusOK, messageResponse{Message: sent})
			return
		}
		s.internalError(w, r, "loading user", err)
		return
	}
	if rec.EmailVerified {
		sendJSON(w, http.StatusOK, messageResponse{Message: "Email is already verified"})
		return
	}

	s.sendVerification(r, rec.User)
	sendJSON(w, http.StatusOK, messageResponse{Message: sent})
}
