package control

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/picotorrent/remote/internal/config"
	"github.com/picotorrent/remote/internal/security"
)

// TokenHeader is the request header carrying the shared-secret access token
// during the WebSocket handshake.
const TokenHeader = "X-PicoTorrent-Token"

// MessageHandler receives inbound frames. It runs on the server's event
// loop goroutine, so no two invocations run concurrently and it must not
// block for long.
type MessageHandler func(h Handle, payload []byte)

// Option configures a Server.
type Option func(*Server)

// WithMessageHandler installs a handler for inbound frames. The default
// discards them.
func WithMessageHandler(handler MessageHandler) Option {
	return func(s *Server) {
		s.onMessage = handler
	}
}

type eventKind int

const (
	eventOpen eventKind = iota
	eventClose
	eventMessage
	eventCount
	eventShutdown
)

// event is one unit of work for the event loop. All registry mutation and
// callback dispatch happens through these.
type event struct {
	kind    eventKind
	handle  Handle
	conn    *websocket.Conn
	payload []byte
	reply   chan int
}

// Server is the embedded remote-control endpoint: a TLS-secured,
// token-authenticated WebSocket listener. One background goroutine owns all
// connection callbacks and the registry; the host only calls Start and
// Stop.
type Server struct {
	cfg       *config.Store
	factory   *TLSFactory
	token     string
	onMessage MessageHandler

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	listener net.Listener

	events   chan event
	loopDone chan struct{}
	readers  sync.WaitGroup

	// mu orders reader registration against Stop: once stopping is set no
	// new read loop may register, so readers.Wait() covers every loop that
	// will ever post events.
	mu       sync.Mutex
	stopping bool

	registry *Registry
}

// New constructs a control server reading its settings from cfg. When the
// configuration holds no access token, a fresh one is generated and
// persisted before the server can validate any connection.
func New(cfg *config.Store, params *security.HandshakeParams, opts ...Option) (*Server, error) {
	token, err := cfg.AccessToken()
	if err != nil {
		return nil, err
	}

	if token == "" {
		token, err = security.GenerateToken(security.DefaultTokenLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate access token: %w", err)
		}
		if err := cfg.SetAccessToken(token); err != nil {
			return nil, fmt.Errorf("failed to persist access token: %w", err)
		}
		log.Info().Msg("generated new access token")
	}

	s := &Server{
		cfg:     cfg,
		factory: NewTLSFactory(cfg, params),
		token:   token,
		upgrader: websocket.Upgrader{
			// The token is the authentication; remote-control clients
			// (browser extensions included) connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		events:   make(chan event, 16),
		registry: NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// AccessToken returns the token clients must present.
func (s *Server) AccessToken() string {
	return s.token
}

// Start binds the configured port and spawns the background event loop.
// Bind and listen failures are returned synchronously; once Start returns
// nil the caller must pair it with Stop.
func (s *Server) Start() error {
	port, err := s.cfg.ListenPort()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind control port %d: %w", port, err)
	}
	s.listener = tls.NewListener(ln, s.factory.ServerConfig())

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.loopDone = make(chan struct{})
	go s.loop()

	go func() {
		if err := s.httpSrv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("control server accept loop exited")
		}
	}()

	log.Info().Str("addr", s.listener.Addr().String()).Msg("remote control server listening")

	return nil
}

// Stop shuts the listener, closes every live connection, and blocks until
// the event loop has drained and exited. No callback fires after Stop
// returns. Stop must not be called from a callback.
func (s *Server) Stop() {
	// Refuse new read loops first. Shutdown does not wait for hijacked
	// connections, so an in-flight upgrade may still be running when it
	// returns; the stopping flag makes such a handler close its connection
	// instead of registering a reader, and the event loop closes any
	// connection whose open event slips in after the shutdown event.
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("control server shutdown timed out, closing")
		_ = s.httpSrv.Close()
	}

	s.events <- event{kind: eventShutdown}
	s.readers.Wait()
	close(s.events)
	<-s.loopDone

	log.Info().Msg("remote control server stopped")
}

// Addr returns the bound listener address. Only valid between Start and
// Stop.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Connections reports the number of live authenticated connections. The
// count is taken on the event loop, so it is consistent with callback
// ordering. Before Start it reports zero; not valid after Stop.
func (s *Server) Connections() int {
	if s.loopDone == nil {
		return 0
	}

	reply := make(chan int, 1)
	s.events <- event{kind: eventCount, reply: reply}
	return <-reply
}

// loop is the single goroutine owning the registry and all connection
// callbacks.
func (s *Server) loop() {
	defer close(s.loopDone)

	draining := false
	for ev := range s.events {
		switch ev.kind {
		case eventOpen:
			if draining {
				// Opened after shutdown began: close it so its read loop
				// exits, without ever registering it.
				_ = ev.conn.Close()
				continue
			}
			s.registry.Add(ev.handle, ev.conn)
			log.Debug().Stringer("handle", ev.handle).Int("connections", s.registry.Len()).Msg("connection opened")

		case eventClose:
			s.registry.Remove(ev.handle)
			log.Debug().Stringer("handle", ev.handle).Int("connections", s.registry.Len()).Msg("connection closed")

		case eventMessage:
			if s.onMessage != nil {
				s.onMessage(ev.handle, ev.payload)
			}

		case eventCount:
			ev.reply <- s.registry.Len()

		case eventShutdown:
			draining = true
			s.registry.CloseAll()
		}
	}
}

// handleUpgrade validates the access token and upgrades the connection.
// Validation always completes before the open event for the same connection
// is posted.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !s.validate(r) {
		log.Debug().Str("remote", r.RemoteAddr).Msg("rejected connection with missing or invalid token")
		http.Error(w, "invalid access token", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	// Upgrade hijacked the connection, so Shutdown no longer tracks it.
	// Registration must be atomic with the stopping check or Stop could
	// pass readers.Wait before this loop registers.
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.readers.Add(1)
	s.mu.Unlock()

	go s.readLoop(conn)
}

// validate checks the bearer token on the handshake request. Comparison is
// constant-time.
func (s *Server) validate(r *http.Request) bool {
	token := r.Header.Get(TokenHeader)
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1
}

// readLoop pumps one connection's frames into the event loop. It posts the
// open event before reading and always posts a close event on exit.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.readers.Done()

	h := NewHandle()
	s.events <- event{kind: eventOpen, handle: h, conn: conn}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.events <- event{kind: eventMessage, handle: h, payload: payload}
	}

	_ = conn.Close()
	s.events <- event{kind: eventClose, handle: h}
}
