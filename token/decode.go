package token

import (
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims is what the client can learn from a bearer token without the signing key.
// The backend remains the verifier; these values only drive what the UI shows.
type Claims struct {
	Subject   string           // sub
	Identity  users.Identity   // id/sub, nombre, email, rol_id, rol
	ExpiresAt time.Time        // zero when the token carries no exp
	IssuedAt  time.Time        // zero when the token carries no iat
	Raw       jwtlib.MapClaims // all claims, for callers needing extra fields
}

// Expired reports whether the token's exp is in the past.
func (c *Claims) Expired() bool {
	return c != nil && !c.ExpiresAt.IsZero() && !NowTimeFunc().Before(c.ExpiresAt)
}

// Decode parses a JWT without verifying its signature and extracts identity and expiry.
func Decode(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ierrors.ErrInvalidToken
	}

	unverified, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, ierrors.Wrapf(ierrors.ErrInvalidToken, "parse token: %s", err)
	}

	claims, ok := unverified.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, ierrors.Wrapf(ierrors.ErrInvalidToken, "[Decode] extracting claims")
	}

	sub, _ := claims["sub"].(string)
	name := firstString(claims, "nombre", "name")
	email, _ := claims["email"].(string)
	role, _ := claims["rol"].(string)

	id, ok := intClaim(claims, "id")
	if !ok {
		id, _ = strconv.Atoi(sub)
	}
	roleID, _ := intClaim(claims, "rol_id")

	c := &Claims{
		Subject: sub,
		Identity: users.Identity{
			ID:     id,
			Name:   name,
			Email:  email,
			RoleID: users.RoleID(roleID),
			Role:   role,
		},
		Raw: claims,
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	return c, nil
}

// HasIdentity reports whether the token carried enough to identify the user and their role.
func (c *Claims) HasIdentity() bool {
	return c != nil && c.Identity.ID != 0 && c.Identity.RoleID != users.RoleNone
}

func firstString(claims jwtlib.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func intClaim(claims jwtlib.MapClaims, key string) (int, bool) {
	switch v := claims[key].(type) {
	case float64:
		return int(v), true
	case string:
		i, err := strconv.Atoi(v)
		return i, err == nil
	}
	return 0, false
}
