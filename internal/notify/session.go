package notify

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/nhle/liman-notify/internal/logging"
	"github.com/nhle/liman-notify/internal/model"
)

// Reasons a session ends.
var (
	ErrLoggedOut    = errors.New("logged out")
	ErrExpired      = errors.New("session expired")
	ErrUnauthorized = errors.New("access token rejected")
	ErrReplaced     = errors.New("access token replaced")
)

// Session is an authenticated user context. Closing it runs the registered
// teardown hooks exactly once, most recent first.
type Session struct {
	token model.AccessToken

	mu     sync.Mutex
	hooks  []func()
	closed bool
	reason error
	done   chan struct{}
	expiry *time.Timer
}

// NewSession starts a session for token. The session closes itself with
// ErrExpired once the token's expiry passes.
func NewSession(token model.AccessToken) *Session {
	s := &Session{token: token, done: make(chan struct{})}

	if at, ok := TokenExpiry(token); ok {
		wait := time.Until(at)
		if wait < 0 {
			wait = 0
		}
		s.expiry = time.AfterFunc(wait, func() { s.Close(ErrExpired) })
	}
	return s
}

// UserID returns the id of the authenticated user, falling back to the
// token's sub claim when the login response carried no user.
func (s *Session) UserID() string {
	if s.token.User.ID != "" {
		return s.token.User.ID
	}
	return TokenSubject(s.token.AccessToken)
}

// User returns the authenticated user.
func (s *Session) User() model.User {
	return s.token.User
}

// AccessToken returns the bearer token.
func (s *Session) AccessToken() string {
	return s.token.AccessToken
}

// OnTeardown registers fn to run when the session closes. If the session is
// already closed, fn runs immediately.
func (s *Session) OnTeardown(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Close ends the session. Only the first call has an effect.
func (s *Session) Close(reason error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if reason == nil {
		reason = ErrLoggedOut
	}
	s.closed = true
	s.reason = reason
	hooks := s.hooks
	s.hooks = nil
	if s.expiry != nil {
		s.expiry.Stop()
	}
	close(s.done)
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended, or nil while it is active.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// StoredToken loads the access token currently persisted for this user. An
// empty token means none is stored.
type StoredToken func() (string, error)

// WatchStored polls load every interval and closes the session with
// ErrReplaced once the stored token differs from the session's, including
// when it was removed. Load errors are logged and the poll continues.
// WatchStored returns when ctx is done or the session ends.
func (s *Session) WatchStored(ctx context.Context, interval time.Duration, load StoredToken, logger logrus.FieldLogger) {
	log := logging.Component(logger, "session")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
		}

		stored, err := load()
		if err != nil {
			log.WithError(err).Warn("reading stored session")
			continue
		}
		if stored != s.token.AccessToken {
			log.Info("stored session changed, closing")
			s.Close(ErrReplaced)
			return
		}
	}
}

// TokenExpiry returns when token stops being valid. The JWT exp claim is
// preferred; otherwise issued_at plus expires_in is used.
func TokenExpiry(token model.AccessToken) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time, true
	}
	if token.ExpiresIn > 0 && !token.IssuedAt.IsZero() {
		return token.IssuedAt.Add(time.Duration(token.ExpiresIn) * time.Second), true
	}
	return time.Time{}, false
}

// TokenSubject returns the sub claim of a JWT access token, if any.
func TokenSubject(accessToken string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return ""
	}
	switch sub := claims["sub"].(type) {
	case string:
		return sub
	case float64:
		return strconv.FormatFloat(sub, 'f', -1, 64)
	}
	return ""
}
