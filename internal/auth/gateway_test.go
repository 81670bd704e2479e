package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pipedeck/pipedeck/internal/api"
	"github.com/pipedeck/pipedeck/internal/client"
	"github.com/pipedeck/pipedeck/internal/credentials"
	"github.com/pipedeck/pipedeck/internal/state"
	"github.com/pipedeck/pipedeck/internal/store"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc, sealer *credentials.Service) (*Gateway, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "pipedeck.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(s.Close)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := NewGateway(s, state.New(), sealer, logger)
	g.SetClient(client.New(srv.URL, g))
	return g, s
}

func loginHandler(t *testing.T, resp api.LoginResponse) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/login" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var creds api.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Errorf("decode credentials: %v", err)
		}
		if creds.Password != "secret" {
			http.Error(w, "invalid username and/or password", http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestTokenEmptyWithoutSession(t *testing.T) {
	g, _ := newTestGateway(t, http.NotFound, nil)
	if got := g.Token(context.Background()); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
	if g.Session(context.Background()) != nil {
		t.Fatalf("expected no session")
	}
}

func TestLoginPersistsAndPublishesSession(t *testing.T) {
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	g, s := newTestGateway(t, loginHandler(t, api.LoginResponse{
		Username:    "admin",
		DisplayName: "Administrator",
		Token:       "tok-123",
		JWTExpiry:   expiry.Unix(),
	}), nil)

	if !g.Login(context.Background(), api.Credentials{Username: "admin", Password: "secret"}) {
		t.Fatalf("expected login to succeed")
	}
	if got := g.Token(context.Background()); got != "tok-123" {
		t.Fatalf("expected token tok-123, got %q", got)
	}

	session := g.Session(context.Background())
	if session == nil || session.DisplayName != "Administrator" || !session.Expiry.Equal(expiry) {
		t.Fatalf("unexpected session %+v", session)
	}

	raw, err := s.Get(context.Background(), SessionKey)
	if err != nil {
		t.Fatalf("expected persisted session: %v", err)
	}
	if !strings.Contains(string(raw), "tok-123") {
		t.Fatalf("expected plain JSON record without a sealer, got %q", raw)
	}
}

func TestLoginFailureReturnsFalse(t *testing.T) {
	g, _ := newTestGateway(t, loginHandler(t, api.LoginResponse{Token: "x"}), nil)

	if g.Login(context.Background(), api.Credentials{Username: "admin", Password: "wrong"}) {
		t.Fatalf("expected login to fail")
	}
	if g.Token(context.Background()) != "" {
		t.Fatalf("failed login must not create a session")
	}
}

func TestLoginTransportFailureReturnsFalse(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "pipedeck.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := NewGateway(s, state.New(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.SetClient(client.New(url, g))
	if g.Login(context.Background(), api.Credentials{Username: "a", Password: "secret"}) {
		t.Fatalf("expected login to fail without a server")
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	g, s := newTestGateway(t, loginHandler(t, api.LoginResponse{Token: "tok"}), nil)
	if !g.Login(context.Background(), api.Credentials{Password: "secret"}) {
		t.Fatalf("login failed")
	}

	g.Logout(context.Background())
	if g.Token(context.Background()) != "" || g.Session(context.Background()) != nil {
		t.Fatalf("expected session to be gone after logout")
	}
	if _, err := s.Get(context.Background(), SessionKey); err != store.ErrNotFound {
		t.Fatalf("expected persisted record to be removed, got %v", err)
	}

	g.Logout(context.Background())
}

func TestSealedSessionRestores(t *testing.T) {
	sealer, err := credentials.NewService(strings.Repeat("z", 32), "")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	g, s := newTestGateway(t, loginHandler(t, api.LoginResponse{Token: "sealed-token", Username: "ops"}), sealer)
	if !g.Login(context.Background(), api.Credentials{Password: "secret"}) {
		t.Fatalf("login failed")
	}

	raw, _ := s.Get(context.Background(), SessionKey)
	if strings.Contains(string(raw), "sealed-token") {
		t.Fatalf("sealed record leaks the token")
	}

	restored := NewGateway(s, state.New(), sealer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	restored.Restore(context.Background())
	if sess := restored.Session(context.Background()); sess == nil || sess.Username != "ops" {
		t.Fatalf("expected restored session, got %+v", sess)
	}
	if restored.Token(context.Background()) != "sealed-token" {
		t.Fatalf("expected restored token")
	}
}

func TestExpiryFromTokenClaims(t *testing.T) {
	exp := time.Date(2031, 6, 1, 12, 0, 0, 0, time.UTC)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	signed, err := token.SignedString([]byte("key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if got := sessionExpiry(api.LoginResponse{Token: signed}); !got.Equal(exp) {
		t.Fatalf("expected %v, got %v", exp, got)
	}
	if got := sessionExpiry(api.LoginResponse{Token: "not-a-jwt"}); !got.IsZero() {
		t.Fatalf("expected zero expiry for opaque tokens, got %v", got)
	}

	g, _ := newTestGateway(t, loginHandler(t, api.LoginResponse{Token: signed}), nil)
	if !g.Login(context.Background(), api.Credentials{Password: "secret"}) {
		t.Fatalf("login failed")
	}
	if g.Expired(context.Background(), exp.Add(-time.Hour)) {
		t.Fatalf("session should not be expired before exp")
	}
	if !g.Expired(context.Background(), exp.Add(time.Hour)) {
		t.Fatalf("session should be expired after exp")
	}
}

func TestBrowserSessionsAreIsolated(t *testing.T) {
	g, s := newTestGateway(t, loginHandler(t, api.LoginResponse{Token: "browser-token", Username: "ops"}), nil)

	alice := WithBrowser(context.Background(), "alice")
	if !g.Login(alice, api.Credentials{Password: "secret"}) {
		t.Fatalf("login failed")
	}
	if got := g.Token(alice); got != "browser-token" {
		t.Fatalf("expected browser token, got %q", got)
	}
	if _, err := s.Get(context.Background(), BrowserKey("alice")); err != nil {
		t.Fatalf("expected record under browser key: %v", err)
	}

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{name: "other browser", ctx: WithBrowser(context.Background(), "bob")},
		{name: "browser without id", ctx: WithBrowser(context.Background(), "")},
		{name: "process session", ctx: context.Background()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if g.Session(tt.ctx) != nil || g.Token(tt.ctx) != "" {
				t.Fatalf("session leaked from another browser")
			}
		})
	}

	g.Logout(alice)
	if g.Session(alice) != nil {
		t.Fatalf("expected browser session to be gone after logout")
	}
}

func TestBrowserWithoutIDCannotLogin(t *testing.T) {
	g, _ := newTestGateway(t, loginHandler(t, api.LoginResponse{Token: "tok"}), nil)
	if g.Login(WithBrowser(context.Background(), ""), api.Credentials{Password: "secret"}) {
		t.Fatalf("expected login without a browser id to fail")
	}
}
