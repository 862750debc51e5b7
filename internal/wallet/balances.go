package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ghost-trader/ghost/internal/solana"
)

// DefaultTokenDecimals is assumed when a mint's decimals cannot be read.
const DefaultTokenDecimals = 6

// Balances reads wallet state, trying the primary RPC first and the
// fallback RPC second.
type Balances struct {
	owner    solana.Pubkey
	primary  solana.RPCClient
	fallback solana.RPCClient // may be nil
	timeout  time.Duration
	excluded map[solana.Pubkey]struct{}
}

// NewBalances creates a balance reader for owner.
func NewBalances(owner solana.Pubkey, primary, fallback solana.RPCClient) *Balances {
	return &Balances{
		owner:    owner,
		primary:  primary,
		fallback: fallback,
		timeout:  5 * time.Second,
		excluded: make(map[solana.Pubkey]struct{}),
	}
}

// ExcludeHolders marks token accounts that never count as a holder, such
// as bonding-curve or pool vaults. Call before the reader is shared.
func (b *Balances) ExcludeHolders(accounts ...solana.Pubkey) {
	for _, a := range accounts {
		if a != "" {
			b.excluded[a] = struct{}{}
		}
	}
}

// Owner returns the wallet address this reader queries.
func (b *Balances) Owner() solana.Pubkey { return b.owner }

// query runs fn against each endpoint in turn with a per-attempt timeout.
func query[T any](ctx context.Context, b *Balances, op string, fn func(context.Context, solana.RPCClient) (T, error)) (T, error) {
	var (
		zero T
		errs []error
	)
	for i, rpc := range []solana.RPCClient{b.primary, b.fallback} {
		if rpc == nil {
			continue
		}
		attemptCtx, cancel := context.WithTimeout(ctx, b.timeout)
		v, err := fn(attemptCtx, rpc)
		cancel()
		if err == nil {
			return v, nil
		}
		log.Debug().Err(err).Str("op", op).Int("endpoint", i).Msg("wallet: rpc query failed")
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return zero, fmt.Errorf("wallet: %s: no rpc configured", op)
	}
	return zero, fmt.Errorf("wallet: %s: %w", op, errors.Join(errs...))
}

// SOLBalance returns the owner's SOL balance, or zero when every endpoint
// fails.
func (b *Balances) SOLBalance(ctx context.Context) decimal.Decimal {
	if b.owner == "" {
		return decimal.Zero
	}
	lamports, err := query(ctx, b, "getBalance", func(ctx context.Context, rpc solana.RPCClient) (uint64, error) {
		return rpc.GetBalance(ctx, b.owner)
	})
	if err != nil {
		log.Warn().Err(err).Msg("wallet: SOL balance unavailable, assuming zero")
		return decimal.Zero
	}
	return solana.LamportsToSOL(lamports)
}

// TokenBalance returns the owner's UI balance of mint summed across token
// accounts, or zero on failure.
func (b *Balances) TokenBalance(ctx context.Context, mint solana.Pubkey) decimal.Decimal {
	if b.owner == "" {
		return decimal.Zero
	}
	accts, err := query(ctx, b, "getTokenAccountsByOwner", func(ctx context.Context, rpc solana.RPCClient) ([]solana.TokenAccount, error) {
		return rpc.GetTokenAccountsByOwner(ctx, b.owner, mint)
	})
	if err != nil {
		log.Warn().Err(err).Str("mint", string(mint)).Msg("wallet: token balance unavailable, assuming zero")
		return decimal.Zero
	}

	total := decimal.Zero
	for _, a := range accts {
		amt, err := decimal.NewFromString(a.Amount.UIAmountString)
		if err != nil {
			amt = decimal.NewFromFloat(a.Amount.UIAmount)
		}
		total = total.Add(amt)
	}
	return total
}

// TokenDecimals returns the decimals of mint, or DefaultTokenDecimals when
// the supply cannot be read.
func (b *Balances) TokenDecimals(ctx context.Context, mint solana.Pubkey) int {
	supply, err := query(ctx, b, "getTokenSupply", func(ctx context.Context, rpc solana.RPCClient) (*solana.TokenAmount, error) {
		return rpc.GetTokenSupply(ctx, mint)
	})
	if err != nil || supply == nil {
		log.Warn().Err(err).Str("mint", string(mint)).Int("default", DefaultTokenDecimals).Msg("wallet: token decimals unavailable")
		return DefaultTokenDecimals
	}
	return int(supply.Decimals)
}

// LargestAccounts returns the largest holders of mint.
func (b *Balances) LargestAccounts(ctx context.Context, mint solana.Pubkey) ([]solana.LargestAccount, error) {
	return query(ctx, b, "getTokenLargestAccounts", func(ctx context.Context, rpc solana.RPCClient) ([]solana.LargestAccount, error) {
		return rpc.GetTokenLargestAccounts(ctx, mint)
	})
}

// TopHolderPct returns the share of supply held by the largest account that
// is not an excluded vault, in percent, or zero when it cannot be computed.
// Per-mint vaults that were not excluded still count as holders.
func (b *Balances) TopHolderPct(ctx context.Context, mint solana.Pubkey) float64 {
	accts, err := b.LargestAccounts(ctx, mint)
	if err != nil {
		return 0
	}
	var top *solana.LargestAccount
	for i := range accts {
		if _, skip := b.excluded[accts[i].Address]; !skip {
			top = &accts[i]
			break
		}
	}
	if top == nil {
		return 0
	}
	supply, err := query(ctx, b, "getTokenSupply", func(ctx context.Context, rpc solana.RPCClient) (*solana.TokenAmount, error) {
		return rpc.GetTokenSupply(ctx, mint)
	})
	if err != nil || supply == nil || supply.UIAmount <= 0 {
		return 0
	}
	return top.Amount.UIAmount / supply.UIAmount * 100
}
