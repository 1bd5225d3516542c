package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/picotorrent/remote/cmd/picoremote/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Serve   commands.ServeCmd  `cmd:"" help:"Run the remote control server"`
		Token   commands.TokenCmd  `cmd:"" help:"Show or regenerate the access token"`
		Attach  commands.AttachCmd `cmd:"" help:"Attach to a running remote control server"`
		Debug   bool               `help:"Enable debug mode."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
