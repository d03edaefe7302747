package identity

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providerStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		if r.URL.Query().Get("grant_type") == "refresh_token" {
			var body struct {
				RefreshToken string `json:"refresh_token"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			switch body.RefreshToken {
			case "ref-1":
				json.NewEncoder(w).Encode(map[string]any{
					"access_token":  "tok-2",
					"refresh_token": "ref-2",
					"expires_in":    3600,
					"user":          map[string]string{"id": "u1", "email": "ada@example.com"},
				})
			case "ref-down":
				w.WriteHeader(http.StatusServiceUnavailable)
			default:
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant", "error_description": "Invalid Refresh Token: Already Used"})
			}
			return
		}
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))

		var body credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch body.Email {
		case "ada@example.com":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "tok-1",
				"refresh_token": "ref-1",
				"expires_in":    3600,
				"user":          map[string]string{"id": "u1", "email": body.Email},
			})
		case "new@example.com":
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant", "error_description": "Email not confirmed"})
		case "busy@example.com":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant", "error_description": "Invalid login credentials"})
		}
	})
	mux.HandleFunc("POST /auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		var body credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Email == "ada@example.com" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]string{"msg": "User already registered"})
			return
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"id":"u2"}`)
	})
	mux.HandleFunc("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientLogin(t *testing.T) {
	srv := providerStub(t)
	c := NewClient(srv.URL+"/", "anon-key", 5*time.Second)

	tok, err := c.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.AccessToken)
	assert.Equal(t, "u1", tok.User.ID)

	now := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	p := tok.Principal("", now)
	assert.Equal(t, Principal{
		UserID:       "u1",
		Email:        "ada@example.com",
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		ExpiresAt:    now.Add(time.Hour),
	}, p)
}

func TestClientRefresh(t *testing.T) {
	srv := providerStub(t)
	c := NewClient(srv.URL, "anon-key", 5*time.Second)
	ctx := context.Background()

	tok, err := c.Refresh(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok.AccessToken)
	assert.Equal(t, "ref-2", tok.RefreshToken)

	_, err = c.Refresh(ctx, "ref-used")
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = c.Refresh(ctx, "ref-down")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrSessionExpired)
}

func TestClientLoginErrors(t *testing.T) {
	srv := providerStub(t)
	c := NewClient(srv.URL, "anon-key", 5*time.Second)

	tests := []struct {
		email   string
		want    error
		message string
	}{
		{"nobody@example.com", ErrInvalidCredentials, "Invalid email or password. Please check your credentials and try again."},
		{"new@example.com", ErrEmailNotConfirmed, "Please check your email and click the confirmation link before signing in."},
		{"busy@example.com", ErrTooManyRequests, "Too many login attempts. Please wait a few minutes before trying again."},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			_, err := c.Login(context.Background(), tt.email, "pw")
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.message, Message(err))
		})
	}
}

func TestClientSignupAndLogout(t *testing.T) {
	srv := providerStub(t)
	c := NewClient(srv.URL, "anon-key", 5*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Signup(ctx, "grace@example.com", "secret1"))

	err := c.Signup(ctx, "ada@example.com", "secret1")
	assert.ErrorIs(t, err, ErrUserExists)

	require.NoError(t, c.Logout(ctx, "tok-1"))
}

func TestMessageFallback(t *testing.T) {
	assert.Equal(t, "Unable to sign in. Please try again later.", Message(io.ErrUnexpectedEOF))
}

func TestSessionsRequire(t *testing.T) {
	sessions := NewSessions(SessionOptions{TTL: time.Hour}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var seen Principal
	h := sessions.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		_, ok := SessionFrom(r)
		assert.True(t, ok)
		w.WriteHeader(http.StatusOK)
	}))

	// no cookie: page redirects, API answers 401
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/applications", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// with a session cookie
	login := httptest.NewRecorder()
	sess := sessions.Create(login, Principal{UserID: "u1", Email: "ada@example.com", AccessToken: "tok-1"})
	cookies := login.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-1", seen.AccessToken)

	// logout
	out := httptest.NewRecorder()
	gone := sessions.Delete(out, req)
	require.NotNil(t, gone)
	assert.Equal(t, sess.ID, gone.ID)
	assert.Zero(t, sessions.Len())
}

func TestSessionsAnonymous(t *testing.T) {
	sessions := NewSessions(SessionOptions{Anonymous: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.True(t, sessions.Anonymous())

	a, ok := sessions.Get(httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, ok)
	b, _ := sessions.Get(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Same(t, a, b)
}

func TestSessionSyncThrottle(t *testing.T) {
	sessions := NewSessions(SessionOptions{SyncInterval: time.Hour}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sess := sessions.Create(httptest.NewRecorder(), Principal{UserID: "u1"})

	assert.True(t, sess.AllowSync())
	assert.False(t, sess.AllowSync())
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClockedSessions(opts SessionOptions) (*Sessions, *clock) {
	clk := &clock{t: time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)}
	sessions := NewSessions(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sessions.now = clk.now
	return sessions, clk
}

func cookieRequest(t *testing.T, path string, login *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	cookies := login.Result().Cookies()
	require.Len(t, cookies, 1)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.AddCookie(cookies[0])
	return req
}

func TestSessionsRefreshExpiringToken(t *testing.T) {
	srv := providerStub(t)
	sessions, clk := newClockedSessions(SessionOptions{
		TTL:       24 * time.Hour,
		Refresher: NewClient(srv.URL, "anon-key", 5*time.Second),
	})

	login := httptest.NewRecorder()
	sess := sessions.Create(login, Principal{
		UserID:       "u1",
		Email:        "ada@example.com",
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		ExpiresAt:    clk.now().Add(time.Hour),
	})

	var seen Principal
	h := sessions.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
	}))

	// well before expiry the token is used as is
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, cookieRequest(t, "/api/applications", login))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-1", seen.AccessToken)

	// inside the refresh window the token is renewed before the handler runs
	clk.advance(59*time.Minute + 30*time.Second)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, cookieRequest(t, "/api/applications", login))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-2", seen.AccessToken)
	assert.Equal(t, "tok-2", sess.Principal().AccessToken)
	assert.Equal(t, "ref-2", sess.Principal().RefreshToken)
	assert.Equal(t, clk.now().Add(time.Hour), sess.Principal().ExpiresAt)
}

func TestSessionsDropWhenRefreshRejected(t *testing.T) {
	srv := providerStub(t)
	sessions, clk := newClockedSessions(SessionOptions{
		TTL:       24 * time.Hour,
		Refresher: NewClient(srv.URL, "anon-key", 5*time.Second),
	})

	login := httptest.NewRecorder()
	sessions.Create(login, Principal{
		UserID:       "u1",
		AccessToken:  "tok-1",
		RefreshToken: "ref-used",
		ExpiresAt:    clk.now().Add(30 * time.Second),
	})
	require.Equal(t, 1, sessions.Len())

	called := false
	h := sessions.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, cookieRequest(t, "/api/stats", login))
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"session expired"}`, rec.Body.String())
	assert.Zero(t, sessions.Len())

	// the cleared cookie no longer resolves
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, cookieRequest(t, "/dashboard", login))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestSessionsKeepTokenWhileProviderDown(t *testing.T) {
	srv := providerStub(t)
	sessions, clk := newClockedSessions(SessionOptions{
		TTL:       24 * time.Hour,
		Refresher: NewClient(srv.URL, "anon-key", 5*time.Second),
	})

	login := httptest.NewRecorder()
	sessions.Create(login, Principal{
		UserID:       "u1",
		AccessToken:  "tok-1",
		RefreshToken: "ref-down",
		ExpiresAt:    clk.now().Add(30 * time.Second),
	})

	var seen Principal
	h := sessions.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, cookieRequest(t, "/api/stats", login))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-1", seen.AccessToken)

	// once the token has lapsed the session goes
	clk.advance(time.Minute)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, cookieRequest(t, "/api/stats", login))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, sessions.Len())
}

func TestSessionsExpire(t *testing.T) {
	sessions, _ := newClockedSessions(SessionOptions{TTL: time.Hour})

	login := httptest.NewRecorder()
	sessions.Create(login, Principal{UserID: "u1", AccessToken: "expired"})

	rec := httptest.NewRecorder()
	sessions.Expire(rec, cookieRequest(t, "/dashboard", login))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Zero(t, sessions.Len())

	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)

	// htmx requests are told to navigate instead of swapping the login page in
	login = httptest.NewRecorder()
	sessions.Create(login, Principal{UserID: "u1", AccessToken: "expired"})
	req := cookieRequest(t, "/fragments/applications", login)
	req.Header.Set("HX-Request", "true")
	rec = httptest.NewRecorder()
	sessions.Expire(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("HX-Redirect"))
}

func TestSessionsSweep(t *testing.T) {
	sessions, clk := newClockedSessions(SessionOptions{TTL: time.Hour})

	sessions.Create(httptest.NewRecorder(), Principal{UserID: "old"})
	clk.advance(30 * time.Minute)
	sessions.Create(httptest.NewRecorder(), Principal{UserID: "new"})
	require.Equal(t, 2, sessions.Len())

	assert.Zero(t, sessions.Sweep())

	clk.advance(45 * time.Minute)
	assert.Equal(t, 1, sessions.Sweep())
	assert.Equal(t, 1, sessions.Len())

	clk.advance(time.Hour)
	assert.Equal(t, 1, sessions.Sweep())
	assert.Zero(t, sessions.Len())
}

func TestSessionsRunSweepsInBackground(t *testing.T) {
	sessions, clk := newClockedSessions(SessionOptions{TTL: time.Hour})
	sessions.Create(httptest.NewRecorder(), Principal{UserID: "u1"})
	clk.advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sessions.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return sessions.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
