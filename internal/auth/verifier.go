package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantgate/internal/apperr"
	"github.com/wolfeidau/tenantgate/internal/models"
)

// ProviderClaims are the claims carried by identity provider session tokens.
type ProviderClaims struct {
	OrgID string `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates provider issued bearer tokens against a pinned issuer.
type TokenVerifier struct {
	issuer string
	keys   KeySource
	leeway time.Duration
}

// VerifierOption configures a TokenVerifier.
type VerifierOption func(*TokenVerifier)

// WithLeeway tolerates clock skew when checking exp, nbf and iat.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *TokenVerifier) {
		v.leeway = d
	}
}

// NewTokenVerifier creates a verifier accepting tokens from issuer signed by a key in keys.
func NewTokenVerifier(issuer string, keys KeySource, opts ...VerifierOption) (*TokenVerifier, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if keys == nil {
		return nil, errors.New("key source is required")
	}

	v := &TokenVerifier{
		issuer: issuer,
		keys:   keys,
	}
	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Verify checks the token signature, expiry and issuer and returns the
// external identity it asserts. Every failure is apperr.ErrAuthentication.
func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (*models.ExternalIdentity, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: missing token", apperr.ErrAuthentication)
	}

	claims := &ProviderClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			kid, ok := t.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, errors.New("missing kid")
			}
			return v.keys.Key(ctx, kid)
		},
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("JWT verification failed")
		return nil, fmt.Errorf("%w: invalid token", apperr.ErrAuthentication)
	}

	if !parsed.Valid {
		return nil, fmt.Errorf("%w: token invalid", apperr.ErrAuthentication)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", apperr.ErrAuthentication)
	}

	if claims.OrgID == "" {
		return nil, fmt.Errorf("%w: missing organization", apperr.ErrAuthentication)
	}

	return &models.ExternalIdentity{
		ExternalUserID: claims.Subject,
		ExternalOrgID:  claims.OrgID,
	}, nil
}

// BearerToken returns the token from an "Authorization: Bearer <token>" header,
// or "" if the header is missing or malformed.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
