package commands

import (
	"encoding/json"
	"io"
	"time"

	"github.com/wolfeidau/tenantgate/internal/client"
)

type Globals struct {
	Debug   bool
	Version string
}

// TenancyFlags address the internal tenancy service.
type TenancyFlags struct {
	URL     string        `help:"tenancy service base URL" default:"http://localhost:4001" env:"TENANCY_SERVICE_URL"`
	Token   string        `help:"tenancy service internal token" required:"" env:"TENANCY_SERVICE_TOKEN"`
	Timeout time.Duration `help:"request timeout" default:"10s"`
}

func (f TenancyFlags) client() *client.TenancyClient {
	return client.NewTenancyClient(client.Config{
		BaseURL: f.URL,
		Token:   f.Token,
		Timeout: f.Timeout,
	}, client.NewHTTPClient())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
