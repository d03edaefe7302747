package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrUserExists         = errors.New("user already registered")
	ErrWeakPassword       = errors.New("password rejected")
	ErrUnavailable        = errors.New("identity provider unavailable")

	// ErrSessionExpired means the user's tokens are no longer accepted and
	// they have to sign in again.
	ErrSessionExpired = errors.New("session expired")
)

// Message turns an auth error into the text shown on the login and signup
// forms.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password. Please check your credentials and try again."
	case errors.Is(err, ErrEmailNotConfirmed):
		return "Please check your email and click the confirmation link before signing in."
	case errors.Is(err, ErrTooManyRequests):
		return "Too many login attempts. Please wait a few minutes before trying again."
	case errors.Is(err, ErrUserExists):
		return "An account with this email already exists. Try signing in instead."
	case errors.Is(err, ErrWeakPassword):
		return "Password is too weak. Use at least 6 characters."
	}
	return "Unable to sign in. Please try again later."
}

// Tokens is the result of a successful login or refresh
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// Principal builds the downstream identity for these tokens. Email is used
// when the provider left the user out of the response.
func (t *Tokens) Principal(email string, now time.Time) Principal {
	p := Principal{
		UserID:       t.User.ID,
		Email:        t.User.Email,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
	if p.Email == "" {
		p.Email = email
	}
	if t.ExpiresIn > 0 {
		p.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return p
}

// Client talks to a GoTrue-compatible auth API (/auth/v1/...).
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup registers a new account. Providers that require email confirmation
// return no session, so only the error matters here.
func (c *Client) Signup(ctx context.Context, email, password string) error {
	resp, err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", credentials{email, password})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return mapProviderError(resp)
	}
	return nil
}

// Login exchanges email and password for tokens
func (c *Client) Login(ctx context.Context, email, password string) (*Tokens, error) {
	resp, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", credentials{email, password})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapProviderError(resp)
	}
	return decodeTokens(resp)
}

// Refresh trades a refresh token for a new token pair. A refresh token the
// provider no longer accepts yields ErrSessionExpired.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	body := map[string]string{"refresh_token": refreshToken}
	resp, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, mapProviderError(resp)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w (provider HTTP %d)", ErrSessionExpired, resp.StatusCode)
	}
	return decodeTokens(resp)
}

func decodeTokens(resp *http.Response) (*Tokens, error) {
	var tok Tokens
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response without access_token")
	}
	return &tok, nil
}

// Logout revokes the access token at the provider
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	resp, err := c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("logout: provider HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call identity provider: %w", err)
	}
	return resp, nil
}

type providerError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e providerError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func mapProviderError(resp *http.Response) error {
	var pe providerError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&pe)
	msg := strings.ToLower(pe.text())

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit"):
		return ErrTooManyRequests
	case strings.Contains(msg, "invalid login credentials"):
		return ErrInvalidCredentials
	case strings.Contains(msg, "email not confirmed"):
		return ErrEmailNotConfirmed
	case strings.Contains(msg, "already registered") || strings.Contains(msg, "already exists"):
		return ErrUserExists
	case strings.Contains(msg, "password"):
		return ErrWeakPassword
	}
	return fmt.Errorf("%w (provider HTTP %d)", ErrUnavailable, resp.StatusCode)
}
