package solana

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Pubkey is a Solana public key (base58 string).
type Pubkey string

// Signature is a Solana transaction signature (base58 string).
type Signature string

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Well-known addresses.
const (
	SOLMint        Pubkey = "So11111111111111111111111111111111111111112"
	TokenProgramID Pubkey = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Div(decimal.NewFromInt(LamportsPerSOL))
}

// SOLToLamports converts SOL to lamports, truncating sub-lamport dust.
func SOLToLamports(sol decimal.Decimal) uint64 {
	l := sol.Mul(decimal.NewFromInt(LamportsPerSOL)).IntPart()
	if l < 0 {
		return 0
	}
	return uint64(l)
}

// ---------------------------------------------------------------------------
// Typed RPC results
// ---------------------------------------------------------------------------

// SignatureStatus is one entry of a getSignatureStatuses result. A nil
// entry in the RPC response means the signature is not yet known.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	ConfirmationStatus string          `json:"confirmationStatus"` // processed|confirmed|finalized
	Err                json.RawMessage `json:"err"`
}

// Failed reports whether the transaction landed with an on-chain error.
func (s SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// Confirmed reports whether the transaction reached confirmed or finalized.
func (s SignatureStatus) Confirmed() bool {
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// Blockhash is a getLatestBlockhash result.
type Blockhash struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// TokenAmount is the parsed amount of an SPL token balance.
type TokenAmount struct {
	Amount         string  `json:"amount"`
	Decimals       uint8   `json:"decimals"`
	UIAmount       float64 `json:"uiAmount"`
	UIAmountString string  `json:"uiAmountString"`
}

// TokenAccount is an SPL token account held by an owner.
type TokenAccount struct {
	Address Pubkey      `json:"address"`
	Mint    Pubkey      `json:"mint"`
	Owner   Pubkey      `json:"owner"`
	Amount  TokenAmount `json:"amount"`
}

// LargestAccount is one entry of getTokenLargestAccounts.
type LargestAccount struct {
	Address Pubkey      `json:"address"`
	Amount  TokenAmount `json:"amount"`
}

// TokenBalanceChange is a pre/post token balance entry of a transaction.
type TokenBalanceChange struct {
	AccountIndex  int         `json:"accountIndex"`
	Mint          string      `json:"mint"`
	Owner         string      `json:"owner"`
	UITokenAmount TokenAmount `json:"uiTokenAmount"`
}

// TransactionMeta is the subset of getTransaction used to attribute a swap
// to a wallet.
type TransactionMeta struct {
	Slot        uint64   `json:"slot"`
	BlockTime   *int64   `json:"blockTime"`
	AccountKeys []Pubkey `json:"-"`
	Meta        struct {
		Err               json.RawMessage      `json:"err"`
		PreBalances       []uint64             `json:"preBalances"`
		PostBalances      []uint64             `json:"postBalances"`
		PreTokenBalances  []TokenBalanceChange `json:"preTokenBalances"`
		PostTokenBalances []TokenBalanceChange `json:"postTokenBalances"`
	} `json:"meta"`
}
