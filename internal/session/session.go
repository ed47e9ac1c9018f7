// Package session holds the signed-in user's tokens.
//
// A Session is constructed once and passed to whatever needs it. It persists
// tokens between runs and keeps exactly one scheduled refresh per access
// token, set to fire shortly before the token's own expiry.
package session

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"companion/internal/config"
	appLog "companion/internal/log"
	"companion/internal/model"
)

var (
	ErrNoRefreshToken = errors.New("session: no refresh token")
	ErrNoRefresher    = errors.New("session: no refresher configured")
)

const refreshTimeout = 30 * time.Second

// Refresher exchanges a refresh token for new tokens.
type Refresher func(ctx context.Context, refreshToken string) (model.AuthTokens, error)

// Timer is the part of *time.Timer the session uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config wires a Session.
type Config struct {
	// Path is where tokens are persisted. Empty disables persistence.
	Path string
	// PublicKeyPEM verifies access-token signatures. Empty means tokens are
	// decoded without verification.
	PublicKeyPEM string
	// Skew is how long before expiry the refresh fires.
	Skew time.Duration

	Now       func() time.Time
	AfterFunc AfterFunc
}

type state struct {
	AccessToken  string      `yaml:"access_token"`
	RefreshToken string      `yaml:"refresh_token"`
	ExpiresAt    time.Time   `yaml:"expires_at"`
	User         *model.User `yaml:"user,omitempty"`
}

type Session struct {
	path      string
	key       crypto.PublicKey
	skew      time.Duration
	now       func() time.Time
	afterFunc AfterFunc

	refreshes singleflight.Group

	mu        sync.Mutex
	st        state
	refresher Refresher
	timer     Timer
	gen       uint64
	closed    bool
	onExpired []func()
}

// New builds a session and loads persisted tokens from cfg.Path if present.
func New(cfg Config) (*Session, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = realAfterFunc
	}
	s := &Session{
		path:      cfg.Path,
		skew:      cfg.Skew,
		now:       cfg.Now,
		afterFunc: cfg.AfterFunc,
	}

	if strings.TrimSpace(cfg.PublicKeyPEM) == "" {
		appLog.WarnOnce("identity-key", "identity public key not configured; access tokens are not verified")
	} else {
		key, err := parsePublicKey([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, err
		}
		s.key = key
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func parsePublicKey(pem []byte) (crypto.PublicKey, error) {
	if k, err := jwt.ParseRSAPublicKeyFromPEM(pem); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseECPublicKeyFromPEM(pem); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseEdPublicKeyFromPEM(pem); err == nil {
		return k, nil
	}
	return nil, errors.New("session: identity public key is not an RSA, EC or Ed25519 PEM key")
}

func (s *Session) load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("session: read %s: %w", s.path, err)
	}
	var st state
	if err := yaml.Unmarshal(data, &st); err != nil {
		// A corrupt file is treated as signed out.
		appLog.Error("session file unreadable, ignoring", err, "path", s.path)
		return nil
	}
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
	return nil
}

// SetRefresher installs the function used to renew tokens and schedules the
// first refresh if tokens are already present.
func (s *Session) SetRefresher(r Refresher) {
	s.mu.Lock()
	s.refresher = r
	s.scheduleLocked()
	s.mu.Unlock()
}

// OnExpired registers f to run when the session is cleared because a
// refresh failed.
func (s *Session) OnExpired(f func()) {
	s.mu.Lock()
	s.onExpired = append(s.onExpired, f)
	s.mu.Unlock()
}

// Set stores tokens from a login, register or refresh response.
func (s *Session) Set(t model.AuthTokens) error {
	if t.AccessToken == "" {
		return errors.New("session: empty access token")
	}
	exp, err := s.expiryOf(t.AccessToken)
	if err != nil {
		return err
	}
	if exp.IsZero() && t.ExpiresIn > 0 {
		exp = s.now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}

	s.mu.Lock()
	user := s.st.User
	if t.User != nil {
		user = t.User
	}
	refresh := t.RefreshToken
	if refresh == "" {
		refresh = s.st.RefreshToken
	}
	s.st = state{AccessToken: t.AccessToken, RefreshToken: refresh, ExpiresAt: exp, User: user}
	st := s.st
	s.scheduleLocked()
	s.mu.Unlock()

	return s.persist(st)
}

// SetUser updates the cached profile.
func (s *Session) SetUser(u model.User) error {
	s.mu.Lock()
	s.st.User = &u
	st := s.st
	s.mu.Unlock()
	if st.AccessToken == "" {
		return nil
	}
	return s.persist(st)
}

func (s *Session) expiryOf(access string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if s.key != nil {
		_, err := jwt.ParseWithClaims(access, &claims, func(*jwt.Token) (any, error) {
			return s.key, nil
		}, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "PS256", "EdDSA"}), jwt.WithoutClaimsValidation())
		if err != nil {
			return time.Time{}, fmt.Errorf("session: access token rejected: %w", err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(access, &claims); err != nil {
			// Opaque tokens are allowed; expiry then comes from expiresIn.
			appLog.Debug("access token is not a JWT", "err", err)
			return time.Time{}, nil
		}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AccessToken
}

func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.RefreshToken
}

func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ExpiresAt
}

func (s *Session) User() (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.User == nil {
		return model.User{}, false
	}
	return *s.st.User, true
}

func (s *Session) Authenticated() bool {
	return s.AccessToken() != ""
}

// Refresh renews the tokens once. Concurrent callers share a single
// request, which runs to completion even if ctx is cancelled. On failure
// the session is cleared and expiry listeners run.
func (s *Session) Refresh(ctx context.Context) error {
	return s.refresh(ctx, "")
}

// RefreshAfter is Refresh for a caller whose request was rejected while
// using the access token stale. Nothing is sent if the token has changed
// since.
func (s *Session) RefreshAfter(ctx context.Context, stale string) error {
	return s.refresh(ctx, stale)
}

func (s *Session) refresh(ctx context.Context, stale string) error {
	_, err, _ := s.refreshes.Do("refresh", func() (any, error) {
		s.mu.Lock()
		r := s.refresher
		rt := s.st.RefreshToken
		current := s.st.AccessToken
		s.mu.Unlock()

		if stale != "" && current != stale {
			if current == "" {
				return nil, ErrNoRefreshToken
			}
			return nil, nil
		}
		if r == nil {
			return nil, ErrNoRefresher
		}
		if rt == "" {
			s.Expire()
			return nil, ErrNoRefreshToken
		}

		// The flight is shared, so it must outlive whichever caller started it.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		tokens, err := r(rctx, rt)
		if err == nil {
			err = s.Set(tokens)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			// No verdict from the server; keep the refresh token for the next try.
			appLog.Warn("session refresh timed out", "timeout", refreshTimeout.String())
			return nil, err
		}
		if err != nil {
			appLog.Error("session refresh failed, signing out", err)
			s.Expire()
			return nil, err
		}
		appLog.Info("session refreshed", "expires_at", s.ExpiresAt().Format(time.RFC3339))
		return nil, nil
	})
	return err
}

// Clear signs out locally: the timer is cancelled and persisted tokens
// removed.
func (s *Session) Clear() {
	s.mu.Lock()
	s.st = state{}
	s.stopLocked()
	s.mu.Unlock()

	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			appLog.Error("session file remove failed", err, "path", s.path)
		}
	}
}

// Expire clears the session and notifies expiry listeners.
func (s *Session) Expire() {
	s.Clear()
	s.mu.Lock()
	listeners := append([]func(){}, s.onExpired...)
	s.mu.Unlock()
	for _, f := range listeners {
		f()
	}
}

// Close cancels the scheduled refresh. Tokens stay on disk.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()
}

func (s *Session) stopLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) scheduleLocked() {
	s.stopLocked()
	if s.closed || s.refresher == nil || s.st.RefreshToken == "" || s.st.ExpiresAt.IsZero() {
		return
	}
	d := s.st.ExpiresAt.Sub(s.now()) - s.skew
	if d < 0 {
		d = 0
	}
	gen := s.gen
	s.timer = s.afterFunc(d, func() {
		s.mu.Lock()
		stale := gen != s.gen
		s.mu.Unlock()
		if stale {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		_ = s.Refresh(ctx)
	})
	appLog.Debug("session refresh scheduled", "in", d.String())
}

func (s *Session) persist(st state) error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	if err := config.WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("session: persist: %w", err)
	}
	return nil
}
