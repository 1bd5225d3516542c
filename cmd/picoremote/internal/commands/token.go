package commands

import (
	"errors"
	"fmt"

	"github.com/picotorrent/remote/internal/config"
	"github.com/picotorrent/remote/internal/security"
)

type TokenCmd struct {
	ConfigDir  string `help:"Directory holding remote control settings and key material." default:"" env:"PICOREMOTE_CONFIG_DIR"`
	Regenerate bool   `help:"Mint and persist a fresh token, invalidating previously distributed credentials."`
}

func (t *TokenCmd) Run(globals *Globals) error {
	cfg, err := config.NewStore(t.ConfigDir)
	if err != nil {
		return err
	}

	if t.Regenerate {
		token, err := security.GenerateToken(security.DefaultTokenLength)
		if err != nil {
			return err
		}
		if err := cfg.SetAccessToken(token); err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	token, err := cfg.AccessToken()
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("no access token configured, run with --regenerate or start the server once")
	}

	fmt.Println(token)
	return nil
}
