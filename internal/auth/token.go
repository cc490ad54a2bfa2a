package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IssueToken mints a provider style session token for subject in orgID.
func IssueToken(signer *Signer, issuer, subject, orgID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &ProviderClaims{
		OrgID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return signer.Sign(claims)
}
