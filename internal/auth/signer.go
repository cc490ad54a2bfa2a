package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer holds an ECDSA P-256 keypair used to mint development tokens that a
// StaticKeySource or JWKS endpoint can verify.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	publicDER  []byte
	kid        string // Key ID (fingerprint)
}

// NewSigner creates a Signer with a fresh keypair.
func NewSigner() (*Signer, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	return newSigner(privateKey)
}

// NewSignerFromPEM loads a PEM encoded ECDSA private key.
func NewSignerFromPEM(privateKeyPEM string) (*Signer, error) {
	privateKey, err := jwt.ParseECPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return newSigner(privateKey)
}

func newSigner(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	publicDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	return &Signer{
		privateKey: privateKey,
		publicDER:  publicDER,
		kid:        Fingerprint(publicDER),
	}, nil
}

// Kid returns the key ID (fingerprint) for this keypair.
func (s *Signer) Kid() string {
	return s.kid
}

// Sign signs claims with ES256 and sets the kid header.
func (s *Signer) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.kid

	tokenString, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return tokenString, nil
}

// PublicKeyPEM returns the PEM encoded public key.
func (s *Signer) PublicKeyPEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: s.publicDER}))
}

// PrivateKeyPEM returns the PEM encoded private key.
func (s *Signer) PrivateKeyPEM() (string, error) {
	der, err := x509.MarshalECPrivateKey(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})), nil
}

// JWK returns the public key in JWK (JSON Web Key) format.
func (s *Signer) JWK() map[string]any {
	pub := s.privateKey.PublicKey
	return map[string]any{
		"kty": "EC",
		"use": "sig",
		"crv": "P-256",
		"kid": s.kid,
		"x":   base64.RawURLEncoding.EncodeToString(pub.X.FillBytes(make([]byte, 32))),
		"y":   base64.RawURLEncoding.EncodeToString(pub.Y.FillBytes(make([]byte, 32))),
		"alg": "ES256",
	}
}
