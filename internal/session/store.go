// Package session owns the authenticated identity and its bearer credential.
// It is the only writer of the credential slot and of the HTTP client's token.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/bus"
	"github.com/matheus3301/meeple/internal/status"
	passwordvalidator "github.com/wagslane/go-password-validator"
	"go.uber.org/zap"
)

// CredentialKey is the fixed durable key holding the bearer token.
const CredentialKey = "@meeple:token"

// MinPasswordEntropy is the minimum entropy (bits) accepted on sign-up.
const MinPasswordEntropy = 40

// API is the subset of the backend client the session needs.
type API interface {
	Login(ctx context.Context, identifier, password string) (string, error)
	Register(ctx context.Context, name, identifier, password string, age int) (string, error)
	Me(ctx context.Context) (*backend.Identity, error)
	UpdateProfile(ctx context.Context, upd backend.ProfileUpdate) (*backend.Identity, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, code, password string) error
	SetToken(token string)
	ClearToken()
}

// CredentialStore is durable key/value storage for the credential.
type CredentialStore interface {
	GetValue(key string) (string, bool, error)
	SetValue(key, value string) error
	DeleteValue(key string) error
}

// IdentityChange is published on bus.SessionIdentityChanged. A nil Identity means
// the session ended.
type IdentityChange struct {
	Identity *backend.Identity
	Token    string
}

// Store tracks the identity and credential for the daemon's lifetime.
type Store struct {
	api     API
	kv      CredentialStore
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	identity *backend.Identity
	token    string
}

// NewStore creates a session store in the Loading state.
func NewStore(api API, kv CredentialStore, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		api:     api,
		kv:      kv,
		bus:     b,
		machine: status.NewMachine(status.SessionTable, b),
		logger:  logger,
		now:     time.Now,
	}
}

// State returns the current lifecycle state.
func (s *Store) State() status.State {
	return s.machine.Current()
}

// Identity returns a copy of the current identity, or nil when signed out.
func (s *Store) Identity() *backend.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Credential returns the active bearer token, or "" when signed out.
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Load restores a stored credential. A credential the backend rejects is
// cleared. Any other failure leaves it stored for the next Load and returns the error.
func (s *Store) Load(ctx context.Context) error {
	if s.machine.Is(status.Authenticated) {
		return nil
	}
	token, ok, err := s.kv.GetValue(CredentialKey)
	if err != nil {
		_ = s.machine.Transition(status.Unauthenticated)
		return fmt.Errorf("read credential: %w", err)
	}
	if !ok || token == "" {
		s.logger.Info("no stored credential")
		return s.machine.Transition(status.Unauthenticated)
	}

	s.api.SetToken(token)
	id, err := s.api.Me(ctx)
	if err != nil {
		s.api.ClearToken()
		_ = s.machine.Transition(status.Unauthenticated)
		if errors.Is(err, backend.ErrUnauthorized) {
			s.logger.Info("stored credential rejected, clearing")
			if derr := s.kv.DeleteValue(CredentialKey); derr != nil {
				return fmt.Errorf("clear rejected credential: %w", derr)
			}
			return nil
		}
		s.logger.Warn("identity fetch failed, credential kept", zap.Error(err))
		return fmt.Errorf("load identity: %w", err)
	}
	s.become(id, token)
	return nil
}

// SignIn exchanges credentials for a token, persists it and fetches the identity.
func (s *Store) SignIn(ctx context.Context, identifier, password string) error {
	token, err := s.api.Login(ctx, strings.TrimSpace(identifier), password)
	if err != nil {
		return authFailure("sign in", err)
	}
	return s.establish(ctx, "sign in", token)
}

// SignUp validates the password, coerces age to an integer and registers.
func (s *Store) SignUp(ctx context.Context, name, identifier, password, age string) error {
	if err := passwordvalidator.Validate(password, MinPasswordEntropy); err != nil {
		return fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}
	years, err := strconv.Atoi(strings.TrimSpace(age))
	if err != nil {
		return fmt.Errorf("%w %q", ErrInvalidAge, age)
	}
	token, err := s.api.Register(ctx, strings.TrimSpace(name), strings.TrimSpace(identifier), password, years)
	if err != nil {
		return authFailure("sign up", err)
	}
	return s.establish(ctx, "sign up", token)
}

// RefreshIdentity re-fetches the identity. A failure is logged and returned but the
// session is kept as is.
func (s *Store) RefreshIdentity(ctx context.Context) error {
	token := s.Credential()
	if token == "" {
		return ErrNoCredential
	}
	id, err := s.api.Me(ctx)
	if err != nil {
		s.logger.Warn("identity refresh failed, keeping session",
			zap.Error(err),
			zap.Bool("credential_expired", s.CredentialExpired()),
		)
		return fmt.Errorf("refresh identity: %w", err)
	}
	s.mu.Lock()
	changed := s.identity == nil || *s.identity != *id
	s.identity = id
	s.mu.Unlock()
	if changed {
		s.bus.Emit(bus.SessionIdentityChanged, IdentityChange{Identity: s.Identity(), Token: token})
	}
	return nil
}

// UpdateProfile patches the signed-in identity and publishes the result.
func (s *Store) UpdateProfile(ctx context.Context, upd backend.ProfileUpdate) error {
	token := s.Credential()
	if token == "" {
		return ErrNoCredential
	}
	if upd.Age != nil && *upd.Age <= 0 {
		return fmt.Errorf("%w %d", ErrInvalidAge, *upd.Age)
	}
	id, err := s.api.UpdateProfile(ctx, upd)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	s.mu.Lock()
	if s.token != token {
		// Signed out or switched user while the request was in flight.
		s.mu.Unlock()
		return ErrNoCredential
	}
	s.identity = id
	s.mu.Unlock()
	s.logger.Info("profile updated", zap.String("user_id", id.ID))
	s.bus.Emit(bus.SessionIdentityChanged, IdentityChange{Identity: s.Identity(), Token: token})
	return nil
}

// ForgotPassword asks the backend to send a reset code to email.
func (s *Store) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrMissingEmail
	}
	if err := s.api.ForgotPassword(ctx, email); err != nil {
		return fmt.Errorf("forgot password: %w", err)
	}
	return nil
}

// ResetPassword sets a new password with a reset code. The password is held to
// the sign-up strength rule. The session itself is not touched.
func (s *Store) ResetPassword(ctx context.Context, code, password string) error {
	if err := passwordvalidator.Validate(password, MinPasswordEntropy); err != nil {
		return fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}
	if err := s.api.ResetPassword(ctx, strings.TrimSpace(code), password); err != nil {
		return authFailure("reset password", err)
	}
	return nil
}

// SignOut deletes the stored credential and clears the in-memory session and the
// client's token. The in-memory state is cleared even if the delete fails.
func (s *Store) SignOut(ctx context.Context) error {
	err := s.kv.DeleteValue(CredentialKey)
	s.api.ClearToken()

	s.mu.Lock()
	had := s.identity != nil || s.token != ""
	s.identity = nil
	s.token = ""
	s.mu.Unlock()

	_ = s.machine.Transition(status.Unauthenticated)
	if had {
		s.logger.Info("signed out")
		s.bus.Emit(bus.SessionIdentityChanged, IdentityChange{})
	}
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// CredentialExpiry returns the exp claim of the credential when it is a JWT.
func (s *Store) CredentialExpiry() (time.Time, bool) {
	token := s.Credential()
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// CredentialExpired reports whether the credential carries an exp claim in the past.
func (s *Store) CredentialExpired() bool {
	exp, ok := s.CredentialExpiry()
	return ok && !s.now().Before(exp)
}

func (s *Store) establish(ctx context.Context, op, token string) error {
	prev := s.Credential()
	if err := s.kv.SetValue(CredentialKey, token); err != nil {
		return fmt.Errorf("%s: persist credential: %w", op, err)
	}
	s.api.SetToken(token)
	id, err := s.api.Me(ctx)
	if err != nil {
		// Restore the previous slot so a half-finished sign-in leaves nothing behind.
		if prev != "" {
			_ = s.kv.SetValue(CredentialKey, prev)
		} else {
			_ = s.kv.DeleteValue(CredentialKey)
		}
		s.api.SetToken(prev)
		return fmt.Errorf("%s: fetch identity: %w", op, err)
	}
	s.become(id, token)
	return nil
}

func (s *Store) become(id *backend.Identity, token string) {
	s.mu.Lock()
	s.identity = id
	s.token = token
	s.mu.Unlock()
	if err := s.machine.Transition(status.Authenticated); err != nil {
		s.logger.Error("session transition", zap.Error(err))
	}
	s.logger.Info("authenticated", zap.String("user_id", id.ID), zap.String("role", string(id.Role)))
	s.bus.Emit(bus.SessionIdentityChanged, IdentityChange{Identity: s.Identity(), Token: token})
}

// authFailure turns a backend rejection into an AuthError; transport errors pass through.
func authFailure(op string, err error) error {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return &AuthError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
