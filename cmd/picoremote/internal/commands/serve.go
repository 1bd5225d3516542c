package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/picotorrent/remote/internal/config"
	"github.com/picotorrent/remote/internal/control"
	"github.com/picotorrent/remote/internal/logger"
	"github.com/picotorrent/remote/internal/security"
)

type ServeCmd struct {
	ConfigDir string `help:"Directory holding remote control settings and key material." default:"" env:"PICOREMOTE_CONFIG_DIR"`
	Port      int    `help:"Override and persist the listen port." default:"0" env:"PICOREMOTE_PORT"`
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting remote control server")

	cfg, err := config.NewStore(c.ConfigDir)
	if err != nil {
		return err
	}

	if c.Port != 0 {
		if err := cfg.SetListenPort(c.Port); err != nil {
			return fmt.Errorf("failed to persist listen port: %w", err)
		}
	}

	cipherList, err := cfg.CipherList()
	if err != nil {
		return err
	}

	params, err := security.NewHandshakeParams(cipherList)
	if err != nil {
		return fmt.Errorf("invalid cipher list: %w", err)
	}

	srv, err := control.New(cfg, params,
		control.WithMessageHandler(func(h control.Handle, payload []byte) {
			log.Debug().Stringer("handle", h).Int("bytes", len(payload)).Msg("message received")
		}))
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start remote control server: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown

	log.Info().Str("signal", sig.String()).Msg("shutting down")
	srv.Stop()

	return nil
}
