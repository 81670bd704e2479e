package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pipedeck/pipedeck/internal/api"
	"github.com/pipedeck/pipedeck/internal/client"
	"github.com/pipedeck/pipedeck/internal/credentials"
	"github.com/pipedeck/pipedeck/internal/state"
	"github.com/pipedeck/pipedeck/internal/store"
)

// SessionKey is the fixed storage key holding the serialized session.
const SessionKey = "session"

// browserScope selects the per-browser session record for a request.
type browserScope struct {
	id string
}

type browserScopeKey struct{}

// WithBrowser scopes ctx to the session of one browser. An empty id scopes
// ctx to a browser that has no session yet. Without a scope the gateway works
// on the process-wide session used by the CLI.
func WithBrowser(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, browserScopeKey{}, browserScope{id: id})
}

// BrowserKey returns the storage key of a browser session.
func BrowserKey(id string) string {
	return SessionKey + ":" + id
}

func scopeFrom(ctx context.Context) (browserScope, bool) {
	scope, ok := ctx.Value(browserScopeKey{}).(browserScope)
	return scope, ok
}

const loginPath = "/api/v1/login"

// Gateway reads and writes the session and exposes the bearer token.
type Gateway struct {
	store  store.Store
	state  *state.App
	sealer *credentials.Service
	logger *slog.Logger
	http   *client.Client
}

// NewGateway creates a gateway. sealer may be nil or disabled, in which case
// records are stored as plain JSON.
func NewGateway(s store.Store, app *state.App, sealer *credentials.Service, logger *slog.Logger) *Gateway {
	return &Gateway{
		store:  s,
		state:  app,
		sealer: sealer,
		logger: logger,
	}
}

// SetClient wires the HTTP client used for login. The client itself reads the
// token from the gateway, hence the two-step construction.
func (g *Gateway) SetClient(c *client.Client) {
	g.http = c
}

// Restore publishes the persisted session, if any, to the state store.
func (g *Gateway) Restore(ctx context.Context) {
	session, err := g.load(ctx, SessionKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.logger.Warn("Failed to restore session", "error", err)
		}
		return
	}
	g.state.SetSession(*session)
}

// Login exchanges credentials for a session. It reports failure as false and
// never returns an error; the reason is logged. A browser-scoped login is
// persisted under that browser's key and is not published to the state store.
func (g *Gateway) Login(ctx context.Context, creds api.Credentials) bool {
	if g.http == nil {
		g.logger.Error("Login attempted without an HTTP client")
		return false
	}
	key, ok := recordKey(ctx)
	if !ok {
		g.logger.Error("Login attempted without a browser id")
		return false
	}

	var resp api.LoginResponse
	if err := g.http.Post(ctx, loginPath, creds, &resp, client.HideProgressBar()); err != nil {
		g.logger.Info("Login rejected", "username", creds.Username, "error", err)
		return false
	}
	if resp.Token == "" {
		g.logger.Info("Login response carried no token", "username", creds.Username)
		return false
	}

	session := api.Session{
		Token:       resp.Token,
		DisplayName: resp.DisplayName,
		Username:    resp.Username,
		Expiry:      sessionExpiry(resp),
	}
	if err := g.persist(ctx, key, session); err != nil {
		g.logger.Error("Failed to persist session", "error", err)
		return false
	}
	if _, scoped := scopeFrom(ctx); !scoped {
		g.state.SetSession(session)
	}
	g.logger.Info("Logged in", "username", session.Username)
	return true
}

// Logout removes the persisted session of ctx. The process-wide session also
// clears the state store. No network call is made.
func (g *Gateway) Logout(ctx context.Context) {
	if key, ok := recordKey(ctx); ok {
		if err := g.store.Delete(ctx, key); err != nil {
			g.logger.Warn("Failed to remove persisted session", "error", err)
		}
	}
	if _, scoped := scopeFrom(ctx); !scoped {
		g.state.ClearSession()
	}
}

// Session returns the session of ctx, or nil when logged out.
func (g *Gateway) Session(ctx context.Context) *api.Session {
	if _, scoped := scopeFrom(ctx); !scoped {
		return g.state.Session()
	}
	session, err := g.loadScoped(ctx)
	if err != nil {
		return nil
	}
	return session
}

// Token returns the bearer token of the session of ctx, or "" when no
// session exists or the record cannot be read. It is read from storage on
// every call so a logout from another process is seen immediately.
func (g *Gateway) Token(ctx context.Context) string {
	session, err := g.loadScoped(ctx)
	if err != nil {
		return ""
	}
	return session.Token
}

// Expired reports whether the session of ctx exists and is past its expiry.
func (g *Gateway) Expired(ctx context.Context, now time.Time) bool {
	s := g.Session(ctx)
	if s == nil || s.Expiry.IsZero() {
		return false
	}
	return now.After(s.Expiry)
}

// recordKey is the storage key of the session of ctx. A browser without an
// id has no record.
func recordKey(ctx context.Context) (string, bool) {
	scope, scoped := scopeFrom(ctx)
	if !scoped {
		return SessionKey, true
	}
	if scope.id == "" {
		return "", false
	}
	return BrowserKey(scope.id), true
}

func (g *Gateway) loadScoped(ctx context.Context) (*api.Session, error) {
	key, ok := recordKey(ctx)
	if !ok {
		return nil, store.ErrNotFound
	}
	session, err := g.load(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		g.logger.Debug("Failed to read session record", "key", key, "error", err)
	}
	return session, err
}

func (g *Gateway) persist(ctx context.Context, key string, session api.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if g.sealer.Enabled() {
		if data, err = g.sealer.Seal(data); err != nil {
			return err
		}
	}
	return g.store.Put(ctx, key, data)
}

func (g *Gateway) load(ctx context.Context, key string) (*api.Session, error) {
	data, err := g.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if g.sealer.Enabled() {
		if data, err = g.sealer.Open(data); err != nil {
			return nil, err
		}
	}

	var session api.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("invalid session record: %w", err)
	}
	return &session, nil
}

// sessionExpiry prefers the explicit expiry and falls back to the token's exp claim.
func sessionExpiry(resp api.LoginResponse) time.Time {
	if resp.JWTExpiry > 0 {
		return time.Unix(resp.JWTExpiry, 0).UTC()
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.Token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time.UTC()
}
