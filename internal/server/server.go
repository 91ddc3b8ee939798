// Package server exposes the chat store and reconciliation engine over
// HTTP: a small JSON API for writes and websocket streams for the live
// conversation list and per-conversation history.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jmvargas/charla/internal/engine"
	"github.com/jmvargas/charla/internal/identity"
	"github.com/jmvargas/charla/internal/logging"
	"github.com/jmvargas/charla/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Server serves the chat API on a single listen address.
type Server struct {
	addr     string
	store    store.Store
	resolver *identity.Resolver
	engines  *engineRegistry
	log      zerolog.Logger
}

// New creates a server around st. Engines started for websocket
// streams use engineOpts.
func New(addr string, st store.Store, engineOpts engine.Options) *Server {
	return &Server{
		addr:     addr,
		store:    st,
		resolver: identity.NewResolver(st),
		engines:  newEngineRegistry(engineOpts),
		log:      logging.Component("server"),
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/contacts", s.handleAddContact)
	mux.HandleFunc("POST /api/messages", s.handleSendMessage)
	mux.HandleFunc("GET /api/messages", s.handleListMessages)
	mux.HandleFunc("GET /ws/conversations", s.handleConversationStream)
	mux.HandleFunc("GET /ws/messages", s.handleMessageStream)
	return mux
}

// Run serves until ctx is cancelled, then drains connections and stops
// all shared engines.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: s.routes(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info().Str("addr", s.addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		s.engines.stopAll()
		return err
	})

	return g.Wait()
}
