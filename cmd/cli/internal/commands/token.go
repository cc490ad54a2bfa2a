package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/auth"
)

// KeygenCmd writes a development signing key pair.
type KeygenCmd struct {
	Dir string `help:"output directory" default:"." type:"path"`
}

func (k *KeygenCmd) Run(ctx context.Context) error {
	signer, err := auth.NewSigner()
	if err != nil {
		return err
	}

	private, err := signer.PrivateKeyPEM()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(k.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	privatePath := filepath.Join(k.Dir, "signing_key.pem")
	if err := os.WriteFile(privatePath, []byte(private), 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	publicPath := filepath.Join(k.Dir, "signing_key.pub.pem")
	if err := os.WriteFile(publicPath, []byte(signer.PublicKeyPEM()), 0o644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	log.Info().Str("kid", signer.Kid()).Str("private", privatePath).Str("public", publicPath).Msg("Generated signing key")

	return printJSON(os.Stdout, map[string]any{"keys": []map[string]any{signer.JWK()}})
}

// TokenCmd issues a development bearer token the gateway accepts when it is
// configured with the matching public key.
type TokenCmd struct {
	Subject    string        `help:"provider user id (sub)" required:""`
	Org        string        `help:"provider organization id (org_id)" required:""`
	Issuer     string        `help:"token issuer" required:"" env:"CLERK_JWT_ISSUER"`
	TTL        time.Duration `help:"token lifetime" default:"1h"`
	SigningKey string        `help:"path to the PEM signing key" required:"" type:"existingfile" env:"TENANTGATE_SIGNING_KEY_FILE"`
}

func (t *TokenCmd) Run(ctx context.Context) error {
	data, err := os.ReadFile(t.SigningKey)
	if err != nil {
		return fmt.Errorf("failed to read signing key: %w", err)
	}

	signer, err := auth.NewSignerFromPEM(string(data))
	if err != nil {
		return err
	}

	token, err := auth.IssueToken(signer, t.Issuer, t.Subject, t.Org, t.TTL)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
