package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nhle/taskzen/internal/model"
)

// Login exchanges credentials for a session token. The token is not
// installed on the client; callers decide whether to keep it.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.post(ctx, "/auth/login", LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and returns a session for it. A 409 means
// the e-mail address is already registered.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.post(ctx, "/auth/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout invalidates the current token on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/auth/logout", nil, nil)
}

// Me returns the user owning the current token. When there is no token,
// or the server rejects it, Me returns (nil, nil): there is no session.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	if c.Token() == "" {
		return nil, nil
	}
	var user model.User
	if err := c.get(ctx, "/auth/me", nil, &user); err != nil {
		if IsUnauthorized(err) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// Users lists every account visible to the caller.
func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var resp UsersResponse
	if err := c.get(ctx, "/auth/users", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// UpdateUser changes profile fields (or, for admins, the role) of a user.
func (c *Client) UpdateUser(ctx context.Context, id string, update UserUpdate) (*model.User, error) {
	var user model.User
	path := fmt.Sprintf("/auth/users/%s", url.PathEscape(id))
	if err := c.put(ctx, path, update, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyEmail confirms an address using the token from a verification mail.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.post(ctx, "/auth/verify-email", VerifyEmailRequest{Token: token}, nil)
}

// SendVerificationEmail asks the server to (re)send a verification mail.
func (c *Client) SendVerificationEmail(ctx context.Context, email string) error {
	return c.post(ctx, "/auth/send-verification-email", SendVerificationRequest{Email: email}, nil)
}
