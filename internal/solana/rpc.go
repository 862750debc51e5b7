package solana

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// RPC Client Interface
// ---------------------------------------------------------------------------

// RPCClient is the interface for Solana RPC interactions.
// Implementations: LiveRPCClient (real Solana), StubRPCClient (testing).
type RPCClient interface {
	// SendTransaction submits a signed, base64 encoded transaction.
	SendTransaction(ctx context.Context, txBase64 string) (Signature, error)

	// GetSignatureStatuses returns one entry per signature; nil entries are
	// signatures the cluster has not seen yet.
	GetSignatureStatuses(ctx context.Context, sigs ...Signature) ([]*SignatureStatus, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, account Pubkey) (uint64, error)

	// GetLatestBlockhash returns the most recent blockhash.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// GetTokenAccountsByOwner lists SPL token accounts of owner. An empty
	// mint lists every account under the token program.
	GetTokenAccountsByOwner(ctx context.Context, owner, mint Pubkey) ([]TokenAccount, error)

	// GetTokenSupply returns the total supply and decimals of a mint.
	GetTokenSupply(ctx context.Context, mint Pubkey) (*TokenAmount, error)

	// GetTokenLargestAccounts returns the largest holders of a mint.
	GetTokenLargestAccounts(ctx context.Context, mint Pubkey) ([]LargestAccount, error)

	// GetTransaction fetches balances of a landed transaction.
	GetTransaction(ctx context.Context, sig Signature) (*TransactionMeta, error)

	// Health returns the RPC endpoint health.
	Health(ctx context.Context) error
}

// RPCConfig configures the Solana RPC client.
type RPCConfig struct {
	Endpoint     string        `yaml:"endpoint"`       // e.g. https://api.mainnet-beta.solana.com
	WSEndpoint   string        `yaml:"ws_endpoint"`    // e.g. wss://api.mainnet-beta.solana.com
	Timeout      time.Duration `yaml:"timeout"`        // per HTTP attempt
	MaxRetries   int           `yaml:"max_retries"`    // retries on HTTP 429
	RetryBackoff time.Duration `yaml:"retry_backoff"`  // retry n waits RetryBackoff * n
	RateLimitRPS float64       `yaml:"rate_limit_rps"` // requests per second limit
}

// DefaultRPCConfig returns mainnet defaults.
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		Endpoint:     "https://api.mainnet-beta.solana.com",
		WSEndpoint:   "wss://api.mainnet-beta.solana.com",
		Timeout:      15 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 2 * time.Second,
		RateLimitRPS: 10,
	}
}

// ---------------------------------------------------------------------------
// Stub RPC Client (for testing and development)
// ---------------------------------------------------------------------------

// StubRPCClient is a scriptable in-memory RPC client.
type StubRPCClient struct {
	mu           sync.Mutex
	balances     map[Pubkey]uint64
	tokenAccts   map[Pubkey][]TokenAccount
	supplies     map[Pubkey]*TokenAmount
	largest      map[Pubkey][]LargestAccount
	transactions map[Signature]*TransactionMeta
	statuses     map[Signature][]*SignatureStatus // consumed one per poll
	sent         []string
	failNext     int
	nextSig      int
}

// NewStubRPCClient creates a stub RPC client for testing.
func NewStubRPCClient() *StubRPCClient {
	return &StubRPCClient{
		balances:     make(map[Pubkey]uint64),
		tokenAccts:   make(map[Pubkey][]TokenAccount),
		supplies:     make(map[Pubkey]*TokenAmount),
		largest:      make(map[Pubkey][]LargestAccount),
		transactions: make(map[Signature]*TransactionMeta),
		statuses:     make(map[Signature][]*SignatureStatus),
	}
}

// SetBalance sets the lamport balance of an account.
func (s *StubRPCClient) SetBalance(account Pubkey, lamports uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[account] = lamports
}

// SetTokenSupply registers a mint's supply.
func (s *StubRPCClient) SetTokenSupply(mint Pubkey, supply TokenAmount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supplies[mint] = &supply
}

// AddTokenAccount registers a token account for an owner.
func (s *StubRPCClient) AddTokenAccount(acct TokenAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenAccts[acct.Owner] = append(s.tokenAccts[acct.Owner], acct)
}

// SetLargestAccounts registers the top holders of a mint.
func (s *StubRPCClient) SetLargestAccounts(mint Pubkey, accts []LargestAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.largest[mint] = accts
}

// AddTransaction registers a landed transaction.
func (s *StubRPCClient) AddTransaction(sig Signature, tx TransactionMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[sig] = &tx
}

// QueueStatuses scripts the statuses returned for sig, one per poll. The
// last entry repeats once the queue is drained.
func (s *StubRPCClient) QueueStatuses(sig Signature, statuses ...*SignatureStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[sig] = append(s.statuses[sig], statuses...)
}

// SetFailNext makes the next n calls fail.
func (s *StubRPCClient) SetFailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Sent returns the transactions submitted so far.
func (s *StubRPCClient) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *StubRPCClient) shouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return true
	}
	return false
}

var errStubFailure = fmt.Errorf("stub: simulated RPC failure")

// --- Interface implementation ---

func (s *StubRPCClient) SendTransaction(_ context.Context, txBase64 string) (Signature, error) {
	if s.shouldFail() {
		return "", errStubFailure
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, txBase64)
	s.nextSig++
	return Signature(fmt.Sprintf("stub-sig-%d", s.nextSig)), nil
}

func (s *StubRPCClient) GetSignatureStatuses(_ context.Context, sigs ...Signature) ([]*SignatureStatus, error) {
	if s.shouldFail() {
		return nil, errStubFailure
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*SignatureStatus, len(sigs))
	for i, sig := range sigs {
		queue, ok := s.statuses[sig]
		if !ok || len(queue) == 0 {
			// Unscripted signatures confirm immediately.
			out[i] = &SignatureStatus{ConfirmationStatus: "confirmed"}
			continue
		}
		out[i] = queue[0]
		if len(queue) > 1 {
			s.statuses[sig] = queue[1:]
		}
	}
	return out, nil
}

func (s *StubRPCClient) GetBalance(_ context.Context, account Pubkey) (uint64, error) {
	if s.shouldFail() {
		return 0, errStubFailure
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[account], nil
}

func (s *StubRPCClient) GetLatestBlockhash(_ context.Context) (*Blockhash, error) {
	if s.shouldFail() {
		return nil, errStubFailure
	}
	return &Blockhash{Blockhash: "stub-blockhash", LastValidBlockHeight: 1}, nil
}

func (s *StubRPCClient) GetTokenAccountsByOwner(_ context.Context, owner, mint Pubkey) ([]TokenAccount, error) {
	if s.shouldFail() {
		return nil, errStubFailure
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TokenAccount
	for _, a := range s.tokenAccts[owner] {
		if mint == "" || a.Mint == mint {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *StubRPCClient) GetTokenSupply(_ context.Context, mint Pubkey) (*TokenAmount, error) {
	if s.shouldFail() {
		return nil, errStubFailure
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if supply, ok := s.supplies[mint]; ok {
		return supply, nil
	}
	return nil, fmt.Errorf("stub: mint %s not found", mint)
}

func (s *StubRPCClient) GetTokenLargestAccounts(_ context.Context, mint Pubkey) ([]LargestAccount, error) {
	if s.shouldFail() {
		return nil, errStubFailure
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.largest[mint], nil
}

func (s *StubRPCClient) GetTransaction(_ context.Context, sig Signature) (*TransactionMeta, error) {
	if s.shouldFail() {
		return nil, errStubFailure
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.transactions[sig]; ok {
		return tx, nil
	}
	return nil, fmt.Errorf("stub: transaction %s not found", sig)
}

func (s *StubRPCClient) Health(_ context.Context) error {
	if s.shouldFail() {
		return errStubFailure
	}
	return nil
}
