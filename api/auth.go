package api

import (
	"context"
	"net/http"

	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/users"
)

// LoginResponse is the authentication endpoint's answer: the bearer token plus a minimal profile.
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type,omitempty"`
	ID          int          `json:"id,omitempty"`
	Name        string       `json:"nombre,omitempty"`
	Email       string       `json:"email,omitempty"`
	RoleID      users.RoleID `json:"rol_id,omitempty"`
	Role        string       `json:"rol,omitempty"`
}

// Profile returns the identity carried by the response, or nil when it carries none.
func (r *LoginResponse) Profile() *users.Identity {
	if r == nil || (r.ID == 0 && r.RoleID == users.RoleNone && r.Name == "") {
		return nil
	}
	return &users.Identity{ID: r.ID, Name: r.Name, Email: r.Email, RoleID: r.RoleID, Role: r.Role}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token. Rejected credentials yield ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/login",
		body:      credentials{Email: email, Password: password},
		anonymous: true,
	}, &out)
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized) || IsStatus(err, http.StatusBadRequest) {
			return nil, ierrors.Wrapf(ierrors.ErrInvalidCredentials, "%v", err)
		}
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, ierrors.Wrapf(ierrors.ErrInvalidToken, "login response without access_token")
	}
	return &out, nil
}

// Revoke asks the backend to invalidate token.
func (c *Client) Revoke(ctx context.Context, token string) error {
	return c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/logout",
		headers:   map[string]string{"Authorization": "Bearer " + token},
		anonymous: true,
	}, nil)
}
