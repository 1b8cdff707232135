package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/bus"
	"github.com/matheus3301/meeple/internal/status"
	"github.com/matheus3301/meeple/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const goodPassword = "correct horse battery staple"

type fakeBackend struct {
	mu        sync.Mutex
	auth      []string
	resets    []string
	meFailure atomic.Int32 // HTTP status to answer /users/me with, 0 for success
}

func (f *fakeBackend) headers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auth...)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type harness struct {
	store  *Store
	client *backend.Client
	db     *store.DB
	bus    *bus.Bus
	api    *fakeBackend
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := &fakeBackend{}
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			f.auth = append(f.auth, req.Header.Get("Authorization"))
			f.mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	r.HandleFunc("/auth/login", func(w http.ResponseWriter, req *http.Request) {
		var body struct{ Email, Password string }
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body.Password != goodPassword {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "tok-" + body.Email})
	}).Methods(http.MethodPost)
	r.HandleFunc("/auth/register", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Name, Email, Password string
			Age                   int
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body.Email == "taken@meeple.app" {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "Email already in use"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"token": "tok-" + body.Email})
	}).Methods(http.MethodPost)
	r.HandleFunc("/users/me", func(w http.ResponseWriter, req *http.Request) {
		if code := int(f.meFailure.Load()); code != 0 {
			writeJSON(w, code, map[string]string{"message": http.StatusText(code)})
			return
		}
		auth := req.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer tok-") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		email := strings.TrimPrefix(auth, "Bearer tok-")
		writeJSON(w, http.StatusOK, backend.Identity{ID: "id-" + email, Name: "Ana", Email: email, Role: backend.RoleUser})
	}).Methods(http.MethodGet)

	r.HandleFunc("/users/me", func(w http.ResponseWriter, req *http.Request) {
		var upd backend.ProfileUpdate
		_ = json.NewDecoder(req.Body).Decode(&upd)
		email := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer tok-")
		id := backend.Identity{ID: "id-" + email, Name: "Ana", Email: email, Role: backend.RoleUser}
		if upd.Name != nil {
			id.Name = *upd.Name
		}
		if upd.Age != nil {
			id.Age = *upd.Age
		}
		writeJSON(w, http.StatusOK, id)
	}).Methods(http.MethodPatch)
	r.HandleFunc("/auth/forgot-password", func(w http.ResponseWriter, req *http.Request) {
		var body struct{ Email string }
		_ = json.NewDecoder(req.Body).Decode(&body)
		f.mu.Lock()
		f.resets = append(f.resets, "forgot "+body.Email)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)
	r.HandleFunc("/auth/reset-password", func(w http.ResponseWriter, req *http.Request) {
		var body struct{ Token, Password string }
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body.Token != "good-code" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid or expired code"})
			return
		}
		f.mu.Lock()
		f.resets = append(f.resets, "reset "+body.Token)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	db, err := store.Open(filepath.Join(t.TempDir(), "meeple.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	client := backend.New(srv.URL, backend.WithHTTPClient(srv.Client()))
	b := bus.New()
	return &harness{
		store:  NewStore(client, db, b, zap.NewNop()),
		client: client,
		db:     db,
		bus:    b,
		api:    f,
	}
}

func (h *harness) stored(t *testing.T) (string, bool) {
	t.Helper()
	v, ok, err := h.db.GetValue(CredentialKey)
	require.NoError(t, err)
	return v, ok
}

func nextChange(t *testing.T, ch <-chan bus.Event) IdentityChange {
	t.Helper()
	select {
	case evt := <-ch:
		return evt.Payload.(IdentityChange)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for identity change")
		return IdentityChange{}
	}
}

func TestLoadWithoutCredential(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, status.Loading, h.store.State())

	require.NoError(t, h.store.Load(context.Background()))
	assert.Equal(t, status.Unauthenticated, h.store.State())
	assert.Nil(t, h.store.Identity())
}

func TestLoadRestoresStoredCredential(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.SetValue(CredentialKey, "tok-ana@meeple.app"))
	ch, cancel := h.bus.Subscribe(bus.SessionIdentityChanged, 4)
	defer cancel()

	require.NoError(t, h.store.Load(context.Background()))
	assert.Equal(t, status.Authenticated, h.store.State())
	assert.Equal(t, "tok-ana@meeple.app", h.client.Token())

	change := nextChange(t, ch)
	require.NotNil(t, change.Identity)
	assert.Equal(t, "id-ana@meeple.app", change.Identity.ID)
	assert.Equal(t, "tok-ana@meeple.app", change.Token)
}

func TestLoadClearsRejectedCredential(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.SetValue(CredentialKey, "revoked"))

	require.NoError(t, h.store.Load(context.Background()))
	assert.Equal(t, status.Unauthenticated, h.store.State())
	_, ok := h.stored(t)
	assert.False(t, ok, "rejected credential should be cleared")
	assert.Empty(t, h.client.Token())
}

func TestLoadKeepsCredentialOnTransientFailure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.SetValue(CredentialKey, "tok-ana@meeple.app"))
	h.api.meFailure.Store(http.StatusBadGateway)

	err := h.store.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, status.Unauthenticated, h.store.State())
	v, ok := h.stored(t)
	assert.True(t, ok)
	assert.Equal(t, "tok-ana@meeple.app", v)

	// The next Load succeeds once the backend recovers.
	h.api.meFailure.Store(0)
	require.NoError(t, h.store.Load(context.Background()))
	assert.Equal(t, status.Authenticated, h.store.State())
}

func TestSignInPersistsAndAttachesCredential(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Load(context.Background()))

	require.NoError(t, h.store.SignIn(context.Background(), " ana@meeple.app ", goodPassword))
	assert.Equal(t, status.Authenticated, h.store.State())
	v, ok := h.stored(t)
	assert.True(t, ok)
	assert.Equal(t, "tok-ana@meeple.app", v)
	assert.Equal(t, "tok-ana@meeple.app", h.store.Credential())
	require.NotNil(t, h.store.Identity())
	assert.Equal(t, "ana@meeple.app", h.store.Identity().Email)
}

func TestSignInRejected(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Load(context.Background()))

	err := h.store.SignIn(context.Background(), "ana@meeple.app", "nope")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "sign in", authErr.Op)
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
	assert.Equal(t, status.Unauthenticated, h.store.State())
	_, ok := h.stored(t)
	assert.False(t, ok)
}

func TestSignUp(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		age      string
		wantErr  error
		wantAuth bool
	}{
		{"ok", "new@meeple.app", goodPassword, " 27 ", nil, false},
		{"weak password", "new@meeple.app", "secret", "27", ErrWeakPassword, false},
		{"age not a number", "new@meeple.app", goodPassword, "twenty", ErrInvalidAge, false},
		{"rejected by backend", "taken@meeple.app", goodPassword, "27", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.store.Load(context.Background()))

			err := h.store.SignUp(context.Background(), "Ana", tt.email, tt.password, tt.age)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, status.Unauthenticated, h.store.State())
			case tt.wantAuth:
				var authErr *AuthError
				assert.ErrorAs(t, err, &authErr)
				assert.Equal(t, status.Unauthenticated, h.store.State())
			default:
				require.NoError(t, err)
				assert.Equal(t, status.Authenticated, h.store.State())
			}
		})
	}
}

func TestSignUpNeverSendsInvalidInput(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Load(context.Background()))

	_ = h.store.SignUp(context.Background(), "Ana", "new@meeple.app", "secret", "27")
	_ = h.store.SignUp(context.Background(), "Ana", "new@meeple.app", goodPassword, "x")
	assert.Empty(t, h.api.headers(), "no request should reach the backend")
}

func TestSignOutClearsCredentialAndHeader(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Load(context.Background()))
	require.NoError(t, h.store.SignIn(context.Background(), "ana@meeple.app", goodPassword))

	ch, cancel := h.bus.Subscribe(bus.SessionIdentityChanged, 4)
	defer cancel()

	require.NoError(t, h.store.SignOut(context.Background()))
	assert.Equal(t, status.Unauthenticated, h.store.State())
	assert.Nil(t, h.store.Identity())
	assert.Empty(t, h.store.Credential())
	_, ok := h.stored(t)
	assert.False(t, ok)

	change := nextChange(t, ch)
	assert.Nil(t, change.Identity)

	before := len(h.api.headers())
	_, err := h.client.Me(context.Background())
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
	after := h.api.headers()[before:]
	require.Len(t, after, 1)
	assert.Empty(t, after[0], "request after sign-out carried Authorization")
}

func TestRefreshIdentitySoftFailure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Load(context.Background()))
	require.NoError(t, h.store.SignIn(context.Background(), "ana@meeple.app", goodPassword))

	h.api.meFailure.Store(http.StatusUnauthorized)
	err := h.store.RefreshIdentity(context.Background())
	require.Error(t, err)
	assert.Equal(t, status.Authenticated, h.store.State())
	require.NotNil(t, h.store.Identity())
	assert.Equal(t, "tok-ana@meeple.app", h.store.Credential())
	_, ok := h.stored(t)
	assert.True(t, ok)
}

func TestRefreshIdentityWithoutCredential(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Load(context.Background()))
	assert.ErrorIs(t, h.store.RefreshIdentity(context.Background()), ErrNoCredential)
}

func TestCredentialExpired(t *testing.T) {
	sign := func(exp time.Time) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()}).SignedString([]byte("k"))
		require.NoError(t, err)
		return tok
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"no credential", "", false},
		{"opaque token", "tok-ana", false},
		{"future exp", sign(now.Add(time.Hour)), false},
		{"past exp", sign(now.Add(-time.Hour)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(nil, nil, nil, nil)
			s.now = func() time.Time { return now }
			s.token = tt.token
			assert.Equal(t, tt.want, s.CredentialExpired())
		})
	}
}

func TestAuthErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := error(&AuthError{Op: "sign in", Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "sign in: boom", err.Error())
}

func TestUpdateProfilePublishesIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Load(ctx))

	name := "Ana Maria"
	assert.ErrorIs(t, h.store.UpdateProfile(ctx, backend.ProfileUpdate{Name: &name}), ErrNoCredential)

	require.NoError(t, h.store.SignIn(ctx, "ana@meeple.app", goodPassword))
	changes, cancel := h.bus.Subscribe(bus.SessionIdentityChanged, 4)
	defer cancel()

	bad := 0
	assert.ErrorIs(t, h.store.UpdateProfile(ctx, backend.ProfileUpdate{Age: &bad}), ErrInvalidAge)

	age := 31
	require.NoError(t, h.store.UpdateProfile(ctx, backend.ProfileUpdate{Name: &name, Age: &age}))
	change := nextChange(t, changes)
	require.NotNil(t, change.Identity)
	assert.Equal(t, "Ana Maria", change.Identity.Name)
	assert.Equal(t, 31, change.Identity.Age)
	assert.Equal(t, "tok-ana@meeple.app", change.Token)
	assert.Equal(t, "Ana Maria", h.store.Identity().Name)
}

func TestPasswordReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Load(ctx))

	assert.ErrorIs(t, h.store.ForgotPassword(ctx, " "), ErrMissingEmail)
	require.NoError(t, h.store.ForgotPassword(ctx, " ana@meeple.app "))

	assert.ErrorIs(t, h.store.ResetPassword(ctx, "good-code", "abc"), ErrWeakPassword)

	err := h.store.ResetPassword(ctx, "stale-code", goodPassword)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "reset password", authErr.Op)

	require.NoError(t, h.store.ResetPassword(ctx, " good-code ", goodPassword))

	h.api.mu.Lock()
	defer h.api.mu.Unlock()
	assert.Equal(t, []string{"forgot ana@meeple.app", "reset good-code"}, h.api.resets)
	assert.Equal(t, status.Unauthenticated, h.store.State(), "a reset never signs in")
}
