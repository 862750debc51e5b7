package smartmoney

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ghost-trader/ghost/internal/solana"
)

// ---------------------------------------------------------------------------
// Live activity feed: tracked-wallet swaps from logsSubscribe, attributed
// through getTransaction balance deltas.
// ---------------------------------------------------------------------------

// SwapSource streams swap log events for watched wallets.
type SwapSource interface {
	Watch(wallet solana.Pubkey)
	Start(ctx context.Context) <-chan solana.SwapLogEvent
}

// Trade is a swap attributed to a tracked wallet.
type Trade struct {
	Wallet    string
	Mint      string
	Action    Action
	AmountSOL float64
	Signature solana.Signature
}

// Feed turns swap log events into tracker activity.
type Feed struct {
	tracker *Tracker
	source  SwapSource
	rpc     solana.RPCClient
	timeout time.Duration

	events     atomic.Int64
	attributed atomic.Int64
	dropped    atomic.Int64
}

// NewFeed wires a swap source to the tracker. Every currently tracked
// wallet is watched, and wallets added later are watched as they arrive.
func NewFeed(tracker *Tracker, source SwapSource, rpc solana.RPCClient) *Feed {
	return &Feed{
		tracker: tracker,
		source:  source,
		rpc:     rpc,
		timeout: 10 * time.Second,
	}
}

// Watch subscribes one more wallet.
func (f *Feed) Watch(address string) {
	f.source.Watch(solana.Pubkey(address))
}

// Run consumes events until ctx is cancelled or the source closes.
func (f *Feed) Run(ctx context.Context) {
	for _, w := range f.tracker.Wallets() {
		f.source.Watch(solana.Pubkey(w.Address))
	}

	events := f.source.Start(ctx)
	log.Info().Int("wallets", len(f.tracker.Wallets())).Msg("smartmoney: live feed started")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			f.events.Add(1)
			f.handle(ctx, ev)
		}
	}
}

func (f *Feed) handle(ctx context.Context, ev solana.SwapLogEvent) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	tx, err := f.rpc.GetTransaction(reqCtx, ev.Signature)
	if err != nil {
		f.dropped.Add(1)
		log.Debug().Err(err).Str("signature", string(ev.Signature)).Msg("smartmoney: transaction lookup failed")
		return
	}

	trade, ok := Attribute(tx, ev.Wallet)
	if !ok {
		f.dropped.Add(1)
		return
	}
	trade.Signature = ev.Signature

	if f.tracker.RecordActivity(trade.Mint, trade.Wallet, trade.Action, trade.AmountSOL) {
		f.attributed.Add(1)
		log.Info().
			Str("wallet", trade.Wallet).
			Str("mint", trade.Mint).
			Str("action", string(trade.Action)).
			Float64("amount_sol", trade.AmountSOL).
			Str("dex", ev.DEX).
			Msg("smartmoney: live trade")
	}
}

// Attribute derives a wallet's swap from a transaction's balance changes:
// the token whose balance moved gives mint and direction, the wallet's
// lamport delta gives the SOL size.
func Attribute(tx *solana.TransactionMeta, wallet solana.Pubkey) (Trade, bool) {
	if tx == nil || (len(tx.Meta.Err) > 0 && string(tx.Meta.Err) != "null") {
		return Trade{}, false
	}

	idx := -1
	for i, k := range tx.AccountKeys {
		if k == wallet {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(tx.Meta.PreBalances) || idx >= len(tx.Meta.PostBalances) {
		return Trade{}, false
	}
	solDelta := solana.LamportsToSOL(tx.Meta.PostBalances[idx]).
		Sub(solana.LamportsToSOL(tx.Meta.PreBalances[idx])).InexactFloat64()

	mint, tokenDelta := largestTokenDelta(tx, string(wallet))
	if mint == "" || tokenDelta == 0 {
		return Trade{}, false
	}

	t := Trade{Wallet: string(wallet), Mint: mint}
	if tokenDelta > 0 {
		t.Action = ActionBuy
		t.AmountSOL = -solDelta
	} else {
		t.Action = ActionSell
		t.AmountSOL = solDelta
	}
	if t.AmountSOL < 0 {
		t.AmountSOL = 0
	}
	return t, true
}

// largestTokenDelta returns the non-SOL mint with the largest absolute
// balance change for owner.
func largestTokenDelta(tx *solana.TransactionMeta, owner string) (string, float64) {
	type key struct {
		mint string
		idx  int
	}
	pre := make(map[key]float64)
	for _, b := range tx.Meta.PreTokenBalances {
		if b.Owner == owner && b.Mint != string(solana.SOLMint) {
			pre[key{b.Mint, b.AccountIndex}] = b.UITokenAmount.UIAmount
		}
	}

	deltas := make(map[string]float64)
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Owner != owner || b.Mint == string(solana.SOLMint) {
			continue
		}
		k := key{b.Mint, b.AccountIndex}
		deltas[b.Mint] += b.UITokenAmount.UIAmount - pre[k]
		delete(pre, k)
	}
	// Accounts closed by the swap only appear in the pre balances.
	for k, v := range pre {
		deltas[k.mint] -= v
	}

	var (
		best    string
		bestAbs float64
		bestVal float64
	)
	for mint, d := range deltas {
		abs := d
		if abs < 0 {
			abs = -abs
		}
		if abs > bestAbs || (abs == bestAbs && abs > 0 && mint < best) {
			best, bestAbs, bestVal = mint, abs, d
		}
	}
	return best, bestVal
}

// FeedStats returns feed statistics.
type FeedStats struct {
	Events     int64 `json:"events"`
	Attributed int64 `json:"attributed"`
	Dropped    int64 `json:"dropped"`
}

func (f *Feed) Stats() FeedStats {
	return FeedStats{
		Events:     f.events.Load(),
		Attributed: f.attributed.Load(),
		Dropped:    f.dropped.Load(),
	}
}
