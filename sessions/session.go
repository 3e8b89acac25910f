package sessions

import (
	"github.com/jrsteele09/granjas-console/users"
)

// Storage keys owned by the session store. No other component writes them.
const (
	TokenKey = "token"
	UserKey  = "user"
)

// Session is the authentication state of one client.
// User is non-nil if and only if Token is non-empty.
type Session struct {
	Token string          // Bearer token sent as "Authorization: Bearer <token>"
	User  *users.Identity // Decoded or login-supplied identity
}

// Active reports whether the session holds a usable token.
func (s Session) Active() bool {
	return s.Token != "" && s.User != nil
}

func (s Session) clone() Session {
	if s.User == nil {
		return Session{}
	}
	u := *s.User
	return Session{Token: s.Token, User: &u}
}
