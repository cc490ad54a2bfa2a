package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wolfeidau/tenantgate/internal/apperr"
	"golang.org/x/oauth2"
)

// DefaultProviderAPIURL is the identity provider's backend API.
const DefaultProviderAPIURL = "https://api.clerk.com"

// ProviderClient looks up user profiles in the identity provider's backend API.
type ProviderClient struct {
	jc *jsonClient
}

// NewProviderClient creates a client authenticating with the provider secret
// key as a bearer token.
func NewProviderClient(cfg Config, base *http.Client) *ProviderClient {
	if base == nil {
		base = NewHTTPClient()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultProviderAPIURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.Token,
		TokenType:   "Bearer",
	}))

	return &ProviderClient{
		jc: &jsonClient{
			cfg:        cfg,
			httpClient: httpClient,
		},
	}
}

type providerEmail struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type providerUser struct {
	ID                    string          `json:"id"`
	PrimaryEmailAddressID string          `json:"primary_email_address_id"`
	EmailAddresses        []providerEmail `json:"email_addresses"`
}

// providerStatus treats every failure as the provider's problem except an
// unknown user, which means the token's subject cannot be trusted.
func providerStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return apperr.ErrAuthentication
	case status == http.StatusGatewayTimeout:
		return apperr.ErrUpstreamTimeout
	default:
		return apperr.ErrUpstream
	}
}

// UserEmail returns the user's primary email, or the first one listed if no
// primary is set. A user without any email fails authentication.
func (c *ProviderClient) UserEmail(ctx context.Context, externalUserID string) (string, error) {
	var user providerUser
	err := c.jc.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(externalUserID), nil, &user, providerStatus)
	if err != nil {
		return "", err
	}

	email := selectEmail(user)
	if email == "" {
		return "", fmt.Errorf("%w: provider user has no email", apperr.ErrAuthentication)
	}

	return email, nil
}

func selectEmail(user providerUser) string {
	for _, e := range user.EmailAddresses {
		if e.ID == user.PrimaryEmailAddressID && e.EmailAddress != "" {
			return e.EmailAddress
		}
	}
	if len(user.EmailAddresses) > 0 {
		return user.EmailAddresses[0].EmailAddress
	}
	return ""
}
