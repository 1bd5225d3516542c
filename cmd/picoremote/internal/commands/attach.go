package commands

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/picotorrent/remote/internal/control"
	"github.com/picotorrent/remote/internal/logger"
)

type AttachCmd struct {
	URL      string `help:"Control server endpoint." default:"wss://localhost:7676/" env:"PICOREMOTE_URL"`
	Token    string `help:"Access token presented during the handshake." required:"" env:"PICOREMOTE_TOKEN"`
	Insecure bool   `help:"Skip TLS certificate verification (self-signed server certificate)."`
}

func (a *AttachCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if a.Insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 - opt-in for the self-signed default
	}

	header := http.Header{}
	header.Set(control.TokenHeader, a.Token)

	// Reconnect with exponential backoff until interrupted.
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, a.session(ctx, &dialer, header, log)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()))

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// session runs one connection until it drops. A nil return means the attach
// was interrupted and should not reconnect.
func (a *AttachCmd) session(ctx context.Context, dialer *websocket.Dialer, header http.Header, log zerolog.Logger) error {
	conn, resp, err := dialer.DialContext(ctx, a.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return backoff.Permanent(errors.New("access token rejected by server"))
		}
		log.Warn().Err(err).Str("url", a.URL).Msg("connection failed, retrying")
		return err
	}
	defer conn.Close()

	log.Info().Str("url", a.URL).Msg("attached")

	// Unblock the read loop when interrupted.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("connection lost, retrying")
			return err
		}
		fmt.Fprintln(os.Stdout, string(payload))
	}
}
