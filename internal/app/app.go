// Package app assembles the notes server from its services and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hdnotes/server/internal/api/rest"
	"github.com/hdnotes/server/internal/auth/gate"
	"github.com/hdnotes/server/internal/auth/mailer"
	"github.com/hdnotes/server/internal/auth/otp"
	"github.com/hdnotes/server/internal/auth/provider"
	"github.com/hdnotes/server/internal/auth/token"
	"github.com/hdnotes/server/internal/notes"
	"github.com/hdnotes/server/internal/platform/timeouts"
	"github.com/hdnotes/server/internal/storage/sqlite"
)

// stateCleanupInterval paces removal of abandoned federated-login states.
const stateCleanupInterval = 5 * time.Minute

// Server hosts the notes HTTP service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *sqlite.Store
}

// New creates a configured server listening on the provided address.
//
// Store connectivity failures are fatal here: the process must not start and
// serve degraded traffic against a store it cannot reach.
func New(addr string) (*Server, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	store, err := openStore()
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	handler, err := buildHandler(store)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		store: store,
	}, nil
}

// buildHandler wires services over the store and returns the root handler.
func buildHandler(store *sqlite.Store) (http.Handler, error) {
	tokenConfig, err := token.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	issuer, err := token.NewIssuer(tokenConfig)
	if err != nil {
		return nil, err
	}

	mailerConfig, err := mailer.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	otpConfig := otp.LoadConfigFromEnv()

	otpService := otp.NewService(store, mailer.NewSMTP(mailerConfig, otpConfig.TTL), otpConfig)
	authGate := gate.New(issuer, store)
	noteService := notes.NewService(store)

	mux := http.NewServeMux()
	rest.NewServer(otpService, issuer, authGate, noteService).RegisterRoutes(mux)

	providerConfig := provider.LoadConfigFromEnv()
	if providerConfig.Enabled() {
		linker := provider.NewLinker(store)
		provider.NewServer(providerConfig, store, linker, issuer).RegisterRoutes(mux)
	} else {
		log.Printf("federated login disabled: provider credentials not configured")
	}

	return rest.Middleware(rest.LoadCORSConfigFromEnv(), mux), nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a server until the context ends.
func Run(ctx context.Context, addr string) error {
	srv, err := New(addr)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts the server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	s.startStateCleanup(serverCtx)

	log.Printf("server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancelShutdown()
		_ = s.httpServer.Shutdown(shutdownCtx)
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// startStateCleanup removes abandoned federated-login states periodically.
//
// This keeps short-lived provider round-trip records from accumulating without
// requiring a separate maintenance process.
func (s *Server) startStateCleanup(ctx context.Context) {
	if s == nil || s.store == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(stateCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.store.DeleteExpiredProviderStates(ctx, time.Now().UTC()); err != nil {
					log.Printf("cleanup provider states: %v", err)
				}
			}
		}
	}()
}

func openStore() (*sqlite.Store, error) {
	path := strings.TrimSpace(os.Getenv("HDNOTES_DB_PATH"))
	if path == "" {
		path = filepath.Join("data", "hdnotes.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStore() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}
}
