// Package httpapi implements the read-only REST layer of spec §6: JSON
// responses wrapped as {"data": ...}, reflecting only what the indexer has
// committed.
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/runeindex/runeindexd/internal/btcrpc"
	"github.com/runeindex/runeindexd/internal/rlog"
	"github.com/runeindex/runeindexd/internal/store"
	"github.com/rs/zerolog"
)

// Server is the read-only HTTP API server.
type Server struct {
	addr   string
	store  *store.RuneStore
	rpc    *btcrpc.Client
	server *http.Server
	logger zerolog.Logger
	ln     net.Listener
}

// New creates a read API server bound to addr. rpc is used only by
// /readyz to report the source chain's tip height; it may be nil.
func New(addr string, s *store.RuneStore, rpc *btcrpc.Client) *Server {
	srv := &Server{
		addr:   addr,
		store:  s,
		rpc:    rpc,
		logger: rlog.WithComponent("http"),
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	srv.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return srv
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /runes", s.handleListRunes)
	mux.HandleFunc("GET /runes/name/{raw_name}", s.handleRuneByName)
	mux.HandleFunc("GET /runes/utxo/{tx_id}/{index}", s.handleRuneUTXO)
	mux.HandleFunc("GET /runes/{rune_id}", s.handleRuneByID)

	mux.HandleFunc("GET /address/{address}/runes/balance-list", s.handleBalanceList)
	mux.HandleFunc("GET /address/{address}/runes/{rune_id}/balance", s.handleBalance)
	mux.HandleFunc("GET /address/{address}/runes/{rune_id}/utxo", s.handleAddressUTXO)

	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("GET /transactions/{tx_id}", s.handleTransaction)
}

// Start begins listening and serving in a background goroutine. It
// returns immediately after the listener is bound, so the caller can
// learn the bound port (useful with addr ":0" in tests) before anything
// is served.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("http server error")
		}
	}()

	return nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server, waiting at most 5 seconds for
// in-flight requests to finish.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
