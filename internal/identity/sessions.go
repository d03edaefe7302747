package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"maestro/internal/connection"
)

// CookieName carries the session id
const CookieName = "maestro_session"

// refreshSkew is how long before expiry an access token gets renewed
const refreshSkew = time.Minute

// Refresher renews an access token from a refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
}

// Session is the server-side state of one signed-in browser.
type Session struct {
	ID        string
	Conn      *connection.State
	CreatedAt time.Time

	mu          sync.Mutex
	principal   Principal
	syncLimiter *rate.Limiter
}

// Principal returns the user the session belongs to.
func (s *Session) Principal() Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// AllowSync reports whether another email sync may start now.
func (s *Session) AllowSync() bool {
	return s.syncLimiter.Allow()
}

// Sessions is an in-memory session registry. With anonymous set, every
// request shares a single session and no login is required.
type Sessions struct {
	mu        sync.RWMutex
	byID      map[string]*Session
	ttl       time.Duration
	syncEvery time.Duration
	secure    bool
	anonymous *Session
	refresher Refresher
	log       *slog.Logger
	now       func() time.Time
}

// SessionOptions configures the registry
type SessionOptions struct {
	TTL          time.Duration
	SyncInterval time.Duration
	SecureCookie bool
	Anonymous    bool
	// Refresher renews access tokens close to expiry. Without one, sessions
	// end when their token does.
	Refresher Refresher
}

func NewSessions(opts SessionOptions, log *slog.Logger) *Sessions {
	s := &Sessions{
		byID:      make(map[string]*Session),
		ttl:       opts.TTL,
		syncEvery: opts.SyncInterval,
		secure:    opts.SecureCookie,
		refresher: opts.Refresher,
		log:       log,
		now:       time.Now,
	}
	if opts.Anonymous {
		s.anonymous = s.newSession(Principal{UserID: "local", Email: "local"})
	}
	return s
}

// Anonymous reports whether the registry runs without an identity provider
func (s *Sessions) Anonymous() bool { return s.anonymous != nil }

func (s *Sessions) newSession(p Principal) *Session {
	every := s.syncEvery
	if every <= 0 {
		every = time.Minute
	}
	return &Session{
		ID:          uuid.NewString(),
		principal:   p,
		Conn:        connection.New(s.log),
		CreatedAt:   s.now(),
		syncLimiter: rate.NewLimiter(rate.Every(every), 1),
	}
}

// Create registers a session for p and sets the cookie on w
func (s *Sessions) Create(w http.ResponseWriter, p Principal) *Session {
	sess := s.newSession(p)

	s.mu.Lock()
	s.byID[sess.ID] = sess
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.ttl.Seconds()),
	})
	return sess
}

// Get resolves the session for r, if any
func (s *Sessions) Get(r *http.Request) (*Session, bool) {
	if s.anonymous != nil {
		return s.anonymous, true
	}

	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, false
	}

	s.mu.RLock()
	sess, ok := s.byID[c.Value]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.expired(sess) {
		s.drop(sess.ID)
		return nil, false
	}
	return sess, true
}

// Delete forgets the session for r and clears the cookie
func (s *Sessions) Delete(w http.ResponseWriter, r *http.Request) *Session {
	sess, ok := s.Get(r)
	if ok && sess != s.anonymous {
		s.drop(sess.ID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	if !ok {
		return nil
	}
	return sess
}

// Expire ends the session for r after a downstream service rejected its
// credentials, and answers the request like an unauthenticated one.
func (s *Sessions) Expire(w http.ResponseWriter, r *http.Request) {
	if sess := s.Delete(w, r); sess != nil {
		s.log.Info("session expired", "email", sess.Principal().Email)
	}
	s.unauthorized(w, r, "session expired")
}

func (s *Sessions) drop(id string) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
}

func (s *Sessions) expired(sess *Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.CreatedAt) > s.ttl
}

// Len returns the number of live sessions
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Sweep removes every session past its TTL and returns how many went.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.byID {
		if s.expired(sess) {
			delete(s.byID, id)
			n++
		}
	}
	return n
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Debug("swept expired sessions", "count", n, "live", s.Len())
			}
		}
	}
}

// fresh returns the session's principal, renewing its access token first
// when it is about to lapse.
func (s *Sessions) fresh(ctx context.Context, sess *Session) (Principal, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	p := sess.principal
	now := s.now()
	if !p.expiresWithin(refreshSkew, now) {
		return p, nil
	}
	if s.refresher == nil || p.RefreshToken == "" {
		if now.Before(p.ExpiresAt) {
			return p, nil
		}
		return p, ErrSessionExpired
	}

	tok, err := s.refresher.Refresh(ctx, p.RefreshToken)
	if err != nil {
		if !errors.Is(err, ErrSessionExpired) && now.Before(p.ExpiresAt) {
			s.log.Warn("token refresh failed, keeping current token", "email", p.Email, "error", err)
			return p, nil
		}
		return p, err
	}

	next := tok.Principal(p.Email, now)
	if next.UserID == "" {
		next.UserID = p.UserID
	}
	if next.RefreshToken == "" {
		next.RefreshToken = p.RefreshToken
	}
	sess.principal = next
	s.log.Debug("access token refreshed", "email", next.Email, "expires_at", next.ExpiresAt)
	return next, nil
}

type sessionKey struct{}

// SessionFrom returns the session attached by Require.
func SessionFrom(r *http.Request) (*Session, bool) {
	sess, ok := r.Context().Value(sessionKey{}).(*Session)
	return sess, ok
}

// Require only lets requests with a live session through. API callers get a
// 401, browsers are sent to the login page.
func (s *Sessions) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.Get(r)
		if !ok {
			s.unauthorized(w, r, "not signed in")
			return
		}

		p, err := s.fresh(r.Context(), sess)
		if err != nil {
			s.log.Debug("token refresh rejected", "email", p.Email, "error", err)
			s.Expire(w, r)
			return
		}

		ctx := WithPrincipal(r.Context(), p)
		ctx = context.WithValue(ctx, sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Sessions) unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	if isAPI(r.URL.Path) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": msg})
		return
	}
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/login")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// isAPI reports whether path is served to programs rather than browsers
func isAPI(path string) bool {
	return strings.HasPrefix(path, "/api/") || path == "/mcp"
}
