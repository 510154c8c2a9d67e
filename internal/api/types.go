package api

import "github.com/nhle/taskzen/internal/model"

// TaskPage is the response from GET /tasks.
type TaskPage struct {
	Tasks      []model.Task     `json:"tasks"`
	Pagination model.Pagination `json:"pagination"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role,omitempty"`
	Password string     `json:"password"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// UsersResponse is the response from GET /auth/users.
type UsersResponse struct {
	Users []model.User `json:"users"`
}

// UserUpdate is the body of PUT /auth/users/:id. Nil fields are left
// unchanged.
type UserUpdate struct {
	FirstName *string     `json:"firstName,omitempty"`
	LastName  *string     `json:"lastName,omitempty"`
	Name      *string     `json:"name,omitempty"`
	Role      *model.Role `json:"role,omitempty"`
}

// VerifyEmailRequest is the body of POST /auth/verify-email.
type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// SendVerificationRequest is the body of POST /auth/send-verification-email.
type SendVerificationRequest struct {
	Email string `json:"email"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}
