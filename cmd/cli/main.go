package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/cmd/cli/internal/commands"
	"github.com/wolfeidau/tenantgate/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Keygen  commands.KeygenCmd  `cmd:"" help:"Generate a development signing key"`
		Token   commands.TokenCmd   `cmd:"" help:"Issue a development bearer token"`
		Resolve commands.ResolveCmd `cmd:"" help:"Resolve a provider identity"`
		Tenant  commands.TenantCmd  `cmd:"" help:"Show a tenant"`
		Rename  commands.RenameCmd  `cmd:"" help:"Rename a tenant"`
		Debug   bool                `help:"Enable debug mode."`
		Version kong.VersionFlag
	}
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(cli.Debug)

	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
