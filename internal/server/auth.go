package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nhle/taskzen/internal/model"
	"github.com/nhle/taskzen/internal/store"
)

// claims are the contents of a session token. Subject is the user id and
// ID the token id used for revocation.
type claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (ti *tokenIssuer) issue(u model.User) (string, error) {
	now := ti.now()
	c := claims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

func (ti *tokenIssuer) parse(raw string) (*claims, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(raw, c, func(token *jwt.Token) (interface{}, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ti.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || c.Subject == "" || c.ID == "" {
		return nil, errors.New("invalid token")
	}
	return c, nil
}

type ctxKey int

const (
	userKey ctxKey = iota
	claimsKey
)

func currentUser(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey).(*model.User)
	return u
}

func currentClaims(ctx context.Context) *claims {
	c, _ := ctx.Value(claimsKey).(*claims)
	return c
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// requireAuth rejects requests without a valid, unrevoked session token
// and loads the token's user into the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			sendError(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}

		c, err := s.tokens.parse(raw)
		if err != nil {
			sendError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		revoked, err := s.store.IsTokenRevoked(r.Context(), c.ID)
		if err != nil {
			s.internalError(w, r, "checking token", err)
			return
		}
		if revoked {
			sendError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		user, err := s.store.GetUser(r.Context(), c.Subject)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				sendError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			s.internalError(w, r, "loading user", err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, claimsKey, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
