// Package identity gives every browser a stable anonymous applicant id and
// every tab its own session id.
package identity

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/abroad-advisor/internal/domain"
)

const (
	AnonCookieName        = "advisor_anon_id"
	SessionHeaderName     = "X-Advisor-Session-ID"
	SessionQueryParam     = "session_id"
	DefaultSessionIDValue = "default"

	anonIDPrefix     = "anon_"
	anonCookieMaxAge = 30 * 24 * time.Hour
	storeTimeout     = 2 * time.Second

	// lastSeenGranularity limits last_seen writes to one per user per window.
	lastSeenGranularity = time.Minute
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// UserStore is the subset of the repository the middleware needs.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpsertUser(ctx context.Context, user *domain.User) error
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error
}

// Identity is who is asking: the browser's applicant id and the tab's session.
type Identity struct {
	UserID    string
	Username  string
	SessionID string
}

type contextKey struct{}

// FromContext returns the identity attached by Middleware or WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// UserIDFromContext returns the applicant id, or "" when none is attached.
func UserIDFromContext(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.UserID
}

// SessionIDFromContext returns the tab session id, defaulting to
// DefaultSessionIDValue.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok {
		return id.SessionID
	}
	return DefaultSessionIDValue
}

// WithIdentity returns a copy of ctx carrying the given identity. Tests and
// non-HTTP callers use it in place of Middleware.
func WithIdentity(ctx context.Context, userID, sessionID string) context.Context {
	return context.WithValue(ctx, contextKey{}, Identity{
		UserID:    userID,
		Username:  applicantName(userID),
		SessionID: cleanSessionID(sessionID),
	})
}

func newAnonID() string {
	u := uuid.New()
	return anonIDPrefix + hex.EncodeToString(u[:])
}

// parseAnonID accepts only ids this package minted: the prefix followed by a
// bare 32-digit lowercase hex UUID.
func parseAnonID(raw string) (string, bool) {
	hexPart, ok := strings.CutPrefix(raw, anonIDPrefix)
	if !ok || len(hexPart) != 32 || strings.ToLower(hexPart) != hexPart {
		return "", false
	}
	if _, err := uuid.Parse(hexPart); err != nil {
		return "", false
	}
	return raw, true
}

// applicantName is the display name shown before the applicant saves a
// profile.
func applicantName(userID string) string {
	hexPart := strings.TrimPrefix(userID, anonIDPrefix)
	if len(hexPart) < 6 {
		return "applicant"
	}
	return "applicant-" + hexPart[len(hexPart)-6:]
}

func cleanSessionID(id string) string {
	id = strings.TrimSpace(id)
	if !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

// sessionIDFromRequest prefers the header. Browsers cannot set headers on a
// WebSocket upgrade, so the chat socket passes the id in the query string.
func sessionIDFromRequest(r *http.Request) string {
	if sid := r.Header.Get(SessionHeaderName); sid != "" {
		return cleanSessionID(sid)
	}
	return cleanSessionID(r.URL.Query().Get(SessionQueryParam))
}

// anonIDFromRequest returns the cookie's id, minting a new one when the
// cookie is missing or was not issued by us. The cookie is re-sent either way
// so its expiry slides with use.
func anonIDFromRequest(w http.ResponseWriter, r *http.Request, isDev bool) (id string, minted bool) {
	if c, err := r.Cookie(AnonCookieName); err == nil {
		id, _ = parseAnonID(c.Value)
	}
	if id == "" {
		id, minted = newAnonID(), true
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
	return id, minted
}

// touchUser records the applicant on first sight and refreshes last_seen_at
// at most once per lastSeenGranularity.
func touchUser(ctx context.Context, repo UserStore, userID string, now time.Time) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return repo.UpsertUser(ctx, &domain.User{
			UserID:     userID,
			Username:   applicantName(userID),
			LastSeenAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if user.IdleFor(now) < lastSeenGranularity {
		return nil
	}
	return repo.UpdateLastSeen(ctx, userID, now)
}

// Middleware attaches an Identity to every request. A failing user store is
// logged and does not block the request: chat works without a user row, and
// the profile endpoints report their own store errors.
func Middleware(repo UserStore, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, minted := anonIDFromRequest(w, r, isDev)

			storeCtx, cancel := context.WithTimeout(r.Context(), storeTimeout)
			err := touchUser(storeCtx, repo, userID, time.Now())
			cancel()
			if err != nil {
				slog.Warn("Failed to record anonymous user", "error", err, "user_id", userID, "new", minted)
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, Identity{
				UserID:    userID,
				Username:  applicantName(userID),
				SessionID: sessionIDFromRequest(r),
			})))
		})
	}
}

// IPFromRequest returns the remote IP without its port.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
