package identity

import (
	"context"
	"time"
)

// Principal is the signed-in user as seen by downstream calls
type Principal struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	// ExpiresAt is when AccessToken stops being accepted. Zero means never.
	ExpiresAt time.Time
}

// expiresWithin reports whether the access token lapses before now+d
func (p Principal) expiresWithin(d time.Duration, now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.Add(d).After(p.ExpiresAt)
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
