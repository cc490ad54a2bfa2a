package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/telemetry"
	"golang.org/x/sync/singleflight"
)

// ErrKeyNotFound is returned when no verification key matches a token's kid.
var ErrKeyNotFound = errors.New("verification key not found")

const (
	defaultJWKSTTL = 1 * time.Hour
	// an unknown kid triggers a refetch at most this often
	minJWKSRefresh = 30 * time.Second
)

// KeySource resolves the public key a token was signed with.
type KeySource interface {
	Key(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// JWKSKeySource fetches keys from a JSON Web Key Set endpoint. The parsed key
// set is kept for an hour; an unknown kid refreshes it early so provider key
// rotation is picked up without a restart. Fetches are shared between
// concurrent callers and attempted at most once per minJWKSRefresh, whether
// or not the last attempt succeeded.
type JWKSKeySource struct {
	url        string
	httpClient *http.Client
	ttl        time.Duration
	group      singleflight.Group

	mu          sync.RWMutex
	keys        map[string]crypto.PublicKey
	expiresAt   time.Time
	attemptedAt time.Time
	lastErr     error
}

// JWKSURL returns the conventional JWKS location for issuer.
func JWKSURL(issuer string) string {
	return strings.TrimSuffix(issuer, "/") + "/.well-known/jwks.json"
}

// NewJWKSKeySource creates a key source for jwksURL. The http client should
// honour Cache-Control so restarts and refreshes are cheap.
func NewJWKSKeySource(jwksURL string, httpClient *http.Client) *JWKSKeySource {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}

	return &JWKSKeySource{
		url:        jwksURL,
		httpClient: httpClient,
		ttl:        defaultJWKSTTL,
		keys:       make(map[string]crypto.PublicKey),
	}
}

// Key returns the public key for kid.
func (s *JWKSKeySource) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	s.mu.RLock()
	key, ok := s.keys[kid]
	fresh := time.Now().Before(s.expiresAt)
	s.mu.RUnlock()

	if ok && fresh {
		log.Debug().Str("kid", kid).Msg("JWKS cache hit")
		return key, nil
	}

	v, err, shared := s.group.Do("jwks", func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("kid", kid).Msg("Shared JWKS refresh")
	}

	key, ok = v.(map[string]crypto.PublicKey)[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}

	return key, nil
}

// refresh fetches the key set unless an attempt was made within
// minJWKSRefresh, in which case the outcome of that attempt is reused.
func (s *JWKSKeySource) refresh(ctx context.Context) (map[string]crypto.PublicKey, error) {
	s.mu.Lock()
	if time.Since(s.attemptedAt) < minJWKSRefresh {
		keys, lastErr := s.keys, s.lastErr
		s.mu.Unlock()
		if lastErr != nil {
			return nil, lastErr
		}
		return keys, nil
	}
	s.attemptedAt = time.Now()
	s.mu.Unlock()

	keys, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = err
	if err != nil {
		return nil, err
	}

	s.keys = keys
	s.expiresAt = time.Now().Add(s.ttl)

	return keys, nil
}

func (s *JWKSKeySource) fetch(ctx context.Context) (map[string]crypto.PublicKey, error) {
	log.Debug().Str("jwks_url", s.url).Msg("Fetching JWKS")
	telemetry.GetMetrics().KeyFetchesTotal.Add(ctx, 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS request failed: %s", resp.Status)
	}

	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]crypto.PublicKey)
	for _, jwk := range jwks.Keys {
		kid, ok := jwk["kid"].(string)
		if !ok || kid == "" {
			log.Warn().Msg("JWK missing kid")
			continue
		}

		key, err := parseJWK(jwk)
		if err != nil {
			log.Warn().Err(err).Str("kid", kid).Msg("Failed to parse JWK")
			continue
		}

		keys[kid] = key
	}

	log.Info().Int("total_keys", len(keys)).Msg("Cached JWKS")
	return keys, nil
}

// parseJWK parses an RSA or P-256 EC JSON Web Key into a public key.
func parseJWK(jwk map[string]any) (crypto.PublicKey, error) {
	kty, _ := jwk["kty"].(string)
	switch kty {
	case "RSA":
		return parseRSAJWK(jwk)
	case "EC":
		return parseECJWK(jwk)
	default:
		return nil, fmt.Errorf("unsupported key type: %q", kty)
	}
}

func parseRSAJWK(jwk map[string]any) (*rsa.PublicKey, error) {
	nBytes, err := jwkField(jwk, "n")
	if err != nil {
		return nil, err
	}

	eBytes, err := jwkField(jwk, "e")
	if err != nil {
		return nil, err
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() < 3 {
		return nil, fmt.Errorf("invalid RSA exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}

func parseECJWK(jwk map[string]any) (*ecdsa.PublicKey, error) {
	crv, _ := jwk["crv"].(string)
	if crv != "P-256" {
		return nil, fmt.Errorf("unsupported curve: %q", crv)
	}

	xBytes, err := jwkField(jwk, "x")
	if err != nil {
		return nil, err
	}

	yBytes, err := jwkField(jwk, "y")
	if err != nil {
		return nil, err
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

func jwkField(jwk map[string]any, name string) ([]byte, error) {
	s, ok := jwk[name].(string)
	if !ok || s == "" {
		return nil, fmt.Errorf("missing %s", name)
	}

	b, err := decodeBase64URL(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}

	return b, nil
}

// decodeBase64URL decodes a base64url-encoded string with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// StaticKeySource serves a single public key loaded from PEM. Its kid is the
// base58 encoded SHA-256 of the key's DER encoding.
type StaticKeySource struct {
	kid string
	key crypto.PublicKey
}

// NewStaticKeySource parses a PEM encoded RSA or ECDSA public key.
func NewStaticKeySource(publicKeyPEM string) (*StaticKeySource, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("public key not provided")
	}

	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	switch pub.(type) {
	case *ecdsa.PublicKey, *rsa.PublicKey:
	default:
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}

	return &StaticKeySource{
		kid: Fingerprint(block.Bytes),
		key: pub,
	}, nil
}

// Kid returns the key id tokens must carry.
func (s *StaticKeySource) Kid() string {
	return s.kid
}

// Key returns the configured key if kid matches its fingerprint.
func (s *StaticKeySource) Key(_ context.Context, kid string) (crypto.PublicKey, error) {
	if kid != s.kid {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return s.key, nil
}

// Fingerprint returns the base58 encoded SHA-256 of a DER encoded public key.
func Fingerprint(der []byte) string {
	hash := sha256.Sum256(der)
	return base58.Encode(hash[:])
}
