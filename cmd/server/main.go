package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/wolfeidau/tenantgate/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"TENANTGATE_DEBUG"`
		Version kong.VersionFlag
		Gateway commands.GatewayCmd `cmd:"" help:"Start the public API gateway"`
		Tenancy commands.TenancyCmd `cmd:"" help:"Start the internal tenancy service"`
		Migrate commands.MigrateCmd `cmd:"" help:"Apply database migrations and exit"`
	}
)

func main() {
	// a missing .env is fine, the process environment still applies
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
