// Package session keeps the client's current access token and answers who
// the local data is being written for.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/xdeleon/offsync/internal/auth"
)

var ErrSignedOut = errors.New("signed out")

// TokenSession holds the bearer token issued by the server. It is safe for
// concurrent use.
type TokenSession struct {
	mu       sync.RWMutex
	token    string
	userID   string
	onChange func()
}

// New starts a session from a stored token; an empty or unreadable token
// means signed out.
func New(token string) *TokenSession {
	s := &TokenSession{}
	s.token, s.userID = token, peek(token)
	return s
}

func peek(token string) string {
	if token == "" {
		return ""
	}
	uid, err := auth.PeekUserID(token)
	if err != nil {
		return ""
	}
	return uid
}

// Token returns the raw token for transport, or "".
func (s *TokenSession) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// UserID reads the user id from the token claims. The signature is not
// checked here; the server verifies it on every call.
func (s *TokenSession) UserID(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == "" {
		return "", ErrSignedOut
	}
	return s.userID, nil
}

// OnChange registers fn to run after SetToken switches identity. Only one
// callback is kept.
func (s *TokenSession) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// SetToken replaces the token. A token for the same user (a refresh) does
// not fire the change callback; a different user, or signing out with "",
// does.
func (s *TokenSession) SetToken(token string) {
	uid := peek(token)

	s.mu.Lock()
	changed := uid != s.userID
	s.token, s.userID = token, uid
	fn := s.onChange
	s.mu.Unlock()

	if changed && fn != nil {
		fn()
	}
}
