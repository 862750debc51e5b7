// Package wallet signs and submits swap transactions and reads balances
// for the trading wallet.
package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ghost-trader/ghost/internal/solana"
)

// ErrTransactionFailed is returned when a submitted transaction landed with
// an on-chain error.
var ErrTransactionFailed = errors.New("wallet: transaction failed on-chain")

// SendOptions tunes a single submission.
type SendOptions struct {
	Label string // log context, e.g. "buy BONK"
}

// SendResult is the outcome of SignAndSend. Confirmed=false with a nil
// error means the confirmation budget ran out; the transaction may still
// land.
type SendResult struct {
	Signature solana.Signature `json:"signature"`
	Confirmed bool             `json:"confirmed"`
	Simulated bool             `json:"simulated"`
	Message   string           `json:"message,omitempty"`
}

// Signer signs and submits serialized transactions.
type Signer interface {
	IsConfigured() bool
	PublicKey() (solana.Pubkey, bool)
	SignAndSend(ctx context.Context, base64Tx string, opts SendOptions) (SendResult, error)
}

// Config selects and tunes the signer.
type Config struct {
	PrivateKey   string
	DryRun       bool
	PollInterval time.Duration // between getSignatureStatuses polls
	MaxPolls     int
}

// DefaultConfig returns the confirmation budget: 30 polls one second apart.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		MaxPolls:     30,
	}
}

// New returns a KeypairSigner when key material is configured and dry-run
// is off, otherwise a SimulatedSigner.
func New(cfg Config, rpc solana.RPCClient) (Signer, error) {
	if cfg.DryRun || cfg.PrivateKey == "" {
		reason := "no private key configured"
		if cfg.DryRun {
			reason = "dry run"
		}
		log.Warn().Str("reason", reason).Msg("wallet: using simulated signer")
		return NewSimulatedSigner(), nil
	}
	return NewKeypairSigner(cfg, rpc)
}

// ---------------------------------------------------------------------------
// Keypair signer
// ---------------------------------------------------------------------------

// KeypairSigner signs with an ed25519 key held in memory.
type KeypairSigner struct {
	key    ed25519.PrivateKey
	pubkey solana.Pubkey
	rpc    solana.RPCClient
	config Config

	sent      atomic.Int64
	confirmed atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
}

// NewKeypairSigner decodes the key once and validates its public key.
func NewKeypairSigner(cfg Config, rpc solana.RPCClient) (*KeypairSigner, error) {
	if rpc == nil {
		return nil, fmt.Errorf("wallet: rpc client required")
	}
	key, err := solana.ParseKeypair(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: load key: %w", err)
	}
	pubkey := solana.PubkeyOf(key)
	if !pubkey.IsOnCurve() {
		return nil, fmt.Errorf("wallet: public key %s is not a valid ed25519 point", pubkey)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 30
	}

	log.Info().Str("pubkey", string(pubkey)).Msg("wallet: keypair signer ready")
	return &KeypairSigner{key: key, pubkey: pubkey, rpc: rpc, config: cfg}, nil
}

func (s *KeypairSigner) IsConfigured() bool { return true }

func (s *KeypairSigner) PublicKey() (solana.Pubkey, bool) { return s.pubkey, true }

// SignAndSend decodes, signs, submits and confirms a transaction.
// Confirmation runs on a context detached from ctx cancellation so a
// submitted transaction is followed to the end of its poll budget.
func (s *KeypairSigner) SignAndSend(ctx context.Context, base64Tx string, opts SendOptions) (SendResult, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Tx)
	if err != nil {
		return SendResult{}, fmt.Errorf("wallet: decode transaction: %w", err)
	}
	signed, localSig, err := solana.SignTransaction(raw, s.key)
	if err != nil {
		return SendResult{}, fmt.Errorf("wallet: sign: %w", err)
	}

	sig, err := s.rpc.SendTransaction(ctx, base64.StdEncoding.EncodeToString(signed))
	if err != nil {
		return SendResult{}, fmt.Errorf("wallet: send %s: %w", opts.Label, err)
	}
	if sig == "" {
		sig = localSig
	}
	s.sent.Add(1)

	log.Info().
		Str("signature", string(sig)).
		Str("label", opts.Label).
		Msg("wallet: transaction submitted")

	return s.confirm(context.WithoutCancel(ctx), sig, opts)
}

func (s *KeypairSigner) confirm(ctx context.Context, sig solana.Signature, opts SendOptions) (SendResult, error) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.config.MaxPolls; attempt++ {
		<-ticker.C

		statuses, err := s.rpc.GetSignatureStatuses(ctx, sig)
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Str("signature", string(sig)).Msg("wallet: status poll failed")
			continue
		}
		if len(statuses) == 0 || statuses[0] == nil {
			continue
		}
		st := statuses[0]
		if st.Failed() {
			s.failed.Add(1)
			return SendResult{Signature: sig, Message: string(st.Err)},
				fmt.Errorf("%w: %s: %s", ErrTransactionFailed, sig, st.Err)
		}
		if st.Confirmed() {
			s.confirmed.Add(1)
			log.Info().
				Str("signature", string(sig)).
				Str("label", opts.Label).
				Int("polls", attempt).
				Msg("wallet: transaction confirmed")
			return SendResult{Signature: sig, Confirmed: true, Message: st.ConfirmationStatus}, nil
		}
	}

	s.timedOut.Add(1)
	log.Warn().
		Str("signature", string(sig)).
		Str("label", opts.Label).
		Int("polls", s.config.MaxPolls).
		Msg("wallet: confirmation timed out")
	return SendResult{Signature: sig, Message: "confirmation timed out"}, nil
}

// SignerStats tracks submission outcomes.
type SignerStats struct {
	Sent      int64 `json:"sent"`
	Confirmed int64 `json:"confirmed"`
	Failed    int64 `json:"failed"`
	TimedOut  int64 `json:"timed_out"`
}

func (s *KeypairSigner) Stats() SignerStats {
	return SignerStats{
		Sent:      s.sent.Load(),
		Confirmed: s.confirmed.Load(),
		Failed:    s.failed.Load(),
		TimedOut:  s.timedOut.Load(),
	}
}

// ---------------------------------------------------------------------------
// Simulated signer
// ---------------------------------------------------------------------------

// SimulatedSigner never touches the network. Its results are never
// confirmed, so no position is opened from them.
type SimulatedSigner struct {
	calls atomic.Int64
}

func NewSimulatedSigner() *SimulatedSigner { return &SimulatedSigner{} }

func (s *SimulatedSigner) IsConfigured() bool { return false }

func (s *SimulatedSigner) PublicKey() (solana.Pubkey, bool) { return "", false }

func (s *SimulatedSigner) SignAndSend(_ context.Context, _ string, opts SendOptions) (SendResult, error) {
	s.calls.Add(1)
	id := uuid.New().String()[:8]
	log.Info().Str("label", opts.Label).Msg("wallet: simulated send")
	return SendResult{
		Signature: solana.Signature("SIMULATION_" + id),
		Simulated: true,
		Message:   "simulation: no wallet configured, transaction not sent",
	}, nil
}

// Calls returns the number of simulated sends.
func (s *SimulatedSigner) Calls() int64 { return s.calls.Load() }
