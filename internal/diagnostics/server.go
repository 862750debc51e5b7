// Package diagnostics serves a read-only HTTP view of the running trader:
// health, balance, positions, performance, configuration, tracked wallets,
// the live scan and learned signal statistics. Nothing here trades.
package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ghost-trader/ghost/internal/config"
	"github.com/ghost-trader/ghost/internal/learning"
	"github.com/ghost-trader/ghost/internal/marketdata"
	"github.com/ghost-trader/ghost/internal/observability"
	"github.com/ghost-trader/ghost/internal/positions"
	"github.com/ghost-trader/ghost/internal/smartmoney"
	"github.com/ghost-trader/ghost/internal/solana"
	"github.com/ghost-trader/ghost/internal/storage"
)

// BalanceSource reports the trading wallet's SOL and token balances.
type BalanceSource interface {
	Owner() solana.Pubkey
	SOLBalance(ctx context.Context) decimal.Decimal
	TokenBalance(ctx context.Context, mint solana.Pubkey) decimal.Decimal
}

// ClaimSource lists creator fees the wallet can still claim.
type ClaimSource interface {
	ClaimablePositions(ctx context.Context, wallet string) ([]marketdata.ClaimablePosition, error)
}

// PositionSource is the read side of the position manager.
type PositionSource interface {
	Positions() []positions.Position
	Performance() positions.Performance
}

// WalletSource lists tracked smart-money wallets.
type WalletSource interface {
	Wallets() []smartmoney.Wallet
}

// SignalSource lists learned per-signal statistics.
type SignalSource interface {
	Snapshot() []learning.SignalStat
}

// Deps are the projections the server reads from. Any may be nil; the
// matching endpoint then answers 503.
type Deps struct {
	Health    *observability.HealthMonitor
	Metrics   http.Handler
	Balance   BalanceSource
	Claims    ClaimSource
	Positions PositionSource
	Config    *config.Config
	Wallets   WalletSource
	Scans     storage.ScanStore
	LastScan  func() storage.ScanSnapshot
	Signals   SignalSource
	DryRun    bool
}

// Server is the diagnostics HTTP server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	deps       Deps
}

// NewServer builds the router. addr may be empty when the server is only
// used as an http.Handler.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.router.Use(recoveryMiddleware)
	s.router.Use(loggingMiddleware)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics).Methods(http.MethodGet)
	}

	// Full paths on the root router: a subrouter answers 404, not 405, on a
	// method mismatch.
	s.router.HandleFunc("/api/balance", s.handleBalance).Methods(http.MethodGet)
	s.router.HandleFunc("/api/positions", s.handlePositions).Methods(http.MethodGet)
	s.router.HandleFunc("/api/performance", s.handlePerformance).Methods(http.MethodGet)
	s.router.HandleFunc("/api/config", s.handleConfig).Methods(http.MethodGet)
	s.router.HandleFunc("/api/wallets", s.handleWallets).Methods(http.MethodGet)
	s.router.HandleFunc("/api/scan/live", s.handleLiveScan).Methods(http.MethodGet)
	s.router.HandleFunc("/api/signals", s.handleSignals).Methods(http.MethodGet)
}

// ServeHTTP lets the server be mounted or tested without listening.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("diagnostics: listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("diagnostics: shutting down")
	return s.httpServer.Shutdown(ctx)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Health == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": string(observability.StatusHealthy)})
		return
	}
	h := s.deps.Health.Snapshot()
	code := http.StatusOK
	if h.Status == observability.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, h)
}

type balanceResponse struct {
	Wallet     string           `json:"wallet"`
	BalanceSOL string           `json:"balance_sol"`
	DryRun     bool             `json:"dry_run"`
	Holdings   []tokenHoldingVM `json:"holdings"`

	Claimable []marketdata.ClaimablePosition `json:"claimable,omitempty"`
}

// tokenHoldingVM is the on-chain balance of an open position's mint.
type tokenHoldingVM struct {
	PositionID string `json:"position_id"`
	Mint       string `json:"mint"`
	Balance    string `json:"balance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if s.deps.Balance == nil {
		respondError(w, http.StatusServiceUnavailable, "wallet not configured")
		return
	}
	resp := balanceResponse{
		Wallet:     string(s.deps.Balance.Owner()),
		BalanceSOL: s.deps.Balance.SOLBalance(r.Context()).StringFixed(4),
		DryRun:     s.deps.DryRun,
		Holdings:   []tokenHoldingVM{},
	}
	if s.deps.Positions != nil {
		for _, p := range s.deps.Positions.Positions() {
			if p.Status != positions.StatusOpen {
				continue
			}
			resp.Holdings = append(resp.Holdings, tokenHoldingVM{
				PositionID: p.ID,
				Mint:       p.Mint,
				Balance:    s.deps.Balance.TokenBalance(r.Context(), solana.Pubkey(p.Mint)).String(),
			})
		}
	}
	if s.deps.Claims != nil {
		claims, err := s.deps.Claims.ClaimablePositions(r.Context(), resp.Wallet)
		if err != nil {
			log.Warn().Err(err).Msg("diagnostics: claimable fees unavailable")
		} else {
			resp.Claimable = claims
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Positions == nil {
		respondError(w, http.StatusServiceUnavailable, "positions unavailable")
		return
	}
	status := positions.Status(r.URL.Query().Get("status"))
	switch status {
	case "", positions.StatusOpen, positions.StatusClosed, positions.StatusFailed:
	default:
		respondError(w, http.StatusBadRequest, "status must be open, closed or failed")
		return
	}

	all := s.deps.Positions.Positions()
	out := make([]positions.Position, 0, len(all))
	for _, p := range all {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(out),
		"positions": out,
	})
}

func (s *Server) handlePerformance(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Positions == nil {
		respondError(w, http.StatusServiceUnavailable, "positions unavailable")
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Positions.Performance())
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Config == nil {
		respondError(w, http.StatusServiceUnavailable, "config unavailable")
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Config.Redacted())
}

func (s *Server) handleWallets(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Wallets == nil {
		respondError(w, http.StatusServiceUnavailable, "smart money tracker unavailable")
		return
	}
	wallets := s.deps.Wallets.Wallets()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(wallets),
		"wallets": wallets,
	})
}

func (s *Server) handleLiveScan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scans != nil {
		snap, err := s.deps.Scans.LatestScan(r.Context())
		switch {
		case err == nil:
			respondJSON(w, http.StatusOK, snap)
			return
		case !errors.Is(err, storage.ErrNotFound):
			log.Warn().Err(err).Msg("diagnostics: live scan store read failed")
		}
	}
	if s.deps.LastScan != nil {
		if snap := s.deps.LastScan(); !snap.At.IsZero() {
			respondJSON(w, http.StatusOK, snap)
			return
		}
	}
	respondError(w, http.StatusNotFound, "no scan completed yet")
}

func (s *Server) handleSignals(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Signals == nil {
		respondError(w, http.StatusServiceUnavailable, "learning store unavailable")
		return
	}
	stats := s.deps.Signals.Snapshot()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(stats),
		"signals": stats,
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("diagnostics: encode response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
