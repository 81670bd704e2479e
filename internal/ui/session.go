package ui

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pipedeck/pipedeck/internal/auth"
	"github.com/pipedeck/pipedeck/internal/menu"
)

const (
	sessionCookie = "pipedeck_session"
	csrfCookie    = "pipedeck_csrf"
	csrfField     = "csrf"
)

// withBrowser scopes every request to the session named by its cookie. A
// request without a valid cookie is scoped to a browser with no session.
func (h *Handler) withBrowser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.WithBrowser(r.Context(), browserID(r))))
	})
}

// requireSession sends visitors without a valid session to the login page.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.Auth.Session(ctx) == nil {
			http.Redirect(w, r, menu.LoginPath, http.StatusFound)
			return
		}
		if h.Auth.Expired(ctx, time.Now()) {
			h.Logger.Info("Session expired")
			h.Auth.Logout(ctx)
			clearBrowserCookies(w, r)
			http.Redirect(w, r, menu.LoginPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkCSRF rejects form posts whose csrf field does not match the cookie
// issued at login.
func (h *Handler) checkCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		cookie, err := r.Cookie(csrfCookie)
		token := r.PostFormValue(csrfField)
		if err != nil || token == "" || !hmac.Equal([]byte(token), []byte(cookie.Value)) {
			h.Logger.Warn("Rejected form without a valid csrf token", "path", r.URL.Path)
			http.Error(w, "Invalid or missing csrf token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// browserID returns the session id of the request, or "" when the cookie is
// missing or malformed.
func browserID(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return ""
	}
	return id.String()
}

func csrfToken(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func newCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func setBrowserCookies(w http.ResponseWriter, r *http.Request, id, csrf string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookie,
		Value:    csrf,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearBrowserCookies(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{sessionCookie, csrfCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   r.TLS != nil,
		})
	}
}
