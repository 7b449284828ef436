package auth

import (
	"net/http"
	"time"

	app "github.com/automationpanda/bulldoggy"
)

// CookieName is the session cookie set on successful login.
const CookieName = "reminders_session"

// SessionStore issues session cookies on login and maps incoming cookies
// back to a verified identity.
type SessionStore struct {
	users app.UserStore
	codec *TokenCodec
	ttl   time.Duration
}

// NewSessionStore creates a SessionStore backed by the given user directory
// and token codec.
func NewSessionStore(users app.UserStore, codec *TokenCodec, ttl time.Duration) *SessionStore {
	return &SessionStore{users: users, codec: codec, ttl: ttl}
}

// TTL returns how long issued sessions stay valid.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Login checks the credentials and, on success, sets the session cookie on
// w and returns the new session identity.
//
// A missing username or password short-circuits with ErrIncompleteForm
// before the user directory is consulted; a wrong username or password
// yields ErrInvalidCredentials. No cookie is set on failure.
func (s *SessionStore) Login(w http.ResponseWriter, username, password string) (Identity, error) {
	if username == "" || password == "" {
		return Identity{}, app.ErrIncompleteForm
	}

	if _, err := s.users.Authenticate(username, password); err != nil {
		return Identity{}, app.ErrInvalidCredentials
	}

	token, err := s.codec.Sign(username)
	if err != nil {
		return Identity{}, err
	}
	identity, err := s.codec.Verify(token)
	if err != nil {
		return Identity{}, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(s.ttl.Seconds()),
		Expires:  time.Now().Add(s.ttl),
	})
	return identity, nil
}

// Authenticate reads the session cookie from r and verifies it. Any
// failure, including a missing cookie, yields ErrInvalidToken.
func (s *SessionStore) Authenticate(r *http.Request) (Identity, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return Identity{}, app.ErrInvalidToken
	}
	return s.codec.Verify(c.Value)
}

// Logout clears the session cookie. Subsequent requests carrying the old
// browser state fail Authenticate because the cookie is gone.
func (s *SessionStore) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
