package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghost-trader/ghost/internal/solana"
)

var testSeed = []byte("ghost-trader-wallet-test-seed-32")

func testKey(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	require.Len(t, testSeed, ed25519.SeedSize)
	key := ed25519.NewKeyFromSeed(testSeed)
	return key, base58.Encode(key)
}

// unsignedTx builds a legacy transaction with one empty signature slot and
// payer as the only account key.
func unsignedTx(payer ed25519.PublicKey) string {
	msg := []byte{1, 0, 0, 1}
	msg = append(msg, payer...)
	msg = append(msg, make([]byte, 32)...) // recent blockhash
	msg = append(msg, 0)                   // no instructions

	raw := []byte{1}
	raw = append(raw, make([]byte, 64)...)
	raw = append(raw, msg...)
	return base64.StdEncoding.EncodeToString(raw)
}

func fastConfig(secret string) Config {
	return Config{PrivateKey: secret, PollInterval: time.Millisecond, MaxPolls: 5}
}

func TestNew_SelectsSigner(t *testing.T) {
	_, secret := testKey(t)
	rpc := solana.NewStubRPCClient()

	t.Run("no key", func(t *testing.T) {
		s, err := New(Config{}, rpc)
		require.NoError(t, err)
		assert.IsType(t, &SimulatedSigner{}, s)
		assert.False(t, s.IsConfigured())
	})

	t.Run("dry run overrides key", func(t *testing.T) {
		s, err := New(Config{PrivateKey: secret, DryRun: true}, rpc)
		require.NoError(t, err)
		assert.IsType(t, &SimulatedSigner{}, s)
	})

	t.Run("key present", func(t *testing.T) {
		s, err := New(Config{PrivateKey: secret}, rpc)
		require.NoError(t, err)
		assert.IsType(t, &KeypairSigner{}, s)
		assert.True(t, s.IsConfigured())
	})

	t.Run("bad key", func(t *testing.T) {
		_, err := New(Config{PrivateKey: "not-base58-0OIl"}, rpc)
		assert.ErrorIs(t, err, solana.ErrInvalidKey)
	})
}

func TestKeypairSigner_SignsAndConfirms(t *testing.T) {
	key, secret := testKey(t)
	rpc := solana.NewStubRPCClient()
	rpc.QueueStatuses("stub-sig-1",
		nil,
		&solana.SignatureStatus{ConfirmationStatus: "processed"},
		&solana.SignatureStatus{ConfirmationStatus: "confirmed"},
	)

	s, err := NewKeypairSigner(fastConfig(secret), rpc)
	require.NoError(t, err)

	pub, ok := s.PublicKey()
	require.True(t, ok)
	assert.Equal(t, solana.Pubkey(base58.Encode(key.Public().(ed25519.PublicKey))), pub)

	res, err := s.SignAndSend(context.Background(), unsignedTx(key.Public().(ed25519.PublicKey)), SendOptions{Label: "buy TEST"})
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.False(t, res.Simulated)
	assert.Equal(t, solana.Signature("stub-sig-1"), res.Signature)

	sent := rpc.Sent()
	require.Len(t, sent, 1)
	raw, err := base64.StdEncoding.DecodeString(sent[0])
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(key.Public().(ed25519.PublicKey), raw[65:], raw[1:65]))

	assert.Equal(t, int64(1), s.Stats().Confirmed)
}

func TestKeypairSigner_OnChainErrorIsFatal(t *testing.T) {
	key, secret := testKey(t)
	rpc := solana.NewStubRPCClient()
	rpc.QueueStatuses("stub-sig-1", &solana.SignatureStatus{
		ConfirmationStatus: "confirmed",
		Err:                json.RawMessage(`{"InstructionError":[2,{"Custom":6001}]}`),
	})

	s, err := NewKeypairSigner(fastConfig(secret), rpc)
	require.NoError(t, err)

	_, err = s.SignAndSend(context.Background(), unsignedTx(key.Public().(ed25519.PublicKey)), SendOptions{})
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.Equal(t, int64(1), s.Stats().Failed)
}

func TestKeypairSigner_ConfirmationTimeout(t *testing.T) {
	key, secret := testKey(t)
	rpc := solana.NewStubRPCClient()
	rpc.QueueStatuses("stub-sig-1", &solana.SignatureStatus{ConfirmationStatus: "processed"})

	s, err := NewKeypairSigner(fastConfig(secret), rpc)
	require.NoError(t, err)

	res, err := s.SignAndSend(context.Background(), unsignedTx(key.Public().(ed25519.PublicKey)), SendOptions{})
	require.NoError(t, err)
	assert.False(t, res.Confirmed)
	assert.Equal(t, solana.Signature("stub-sig-1"), res.Signature)
	assert.Equal(t, int64(1), s.Stats().TimedOut)
}

func TestKeypairSigner_ConfirmationSurvivesCancel(t *testing.T) {
	key, secret := testKey(t)
	rpc := solana.NewStubRPCClient()
	rpc.QueueStatuses("stub-sig-1",
		&solana.SignatureStatus{ConfirmationStatus: "processed"},
		&solana.SignatureStatus{ConfirmationStatus: "finalized"},
	)
	s, err := NewKeypairSigner(fastConfig(secret), rpc)
	require.NoError(t, err)

	// The caller is gone once the transaction is on the wire; polling
	// continues on a detached context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.SignAndSend(ctx, unsignedTx(key.Public().(ed25519.PublicKey)), SendOptions{})
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
}

func TestKeypairSigner_RejectsMalformedAndForeignTx(t *testing.T) {
	_, secret := testKey(t)
	rpc := solana.NewStubRPCClient()
	s, err := NewKeypairSigner(fastConfig(secret), rpc)
	require.NoError(t, err)

	_, err = s.SignAndSend(context.Background(), "%%%", SendOptions{})
	assert.Error(t, err)

	_, err = s.SignAndSend(context.Background(), base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), SendOptions{})
	assert.ErrorIs(t, err, solana.ErrMalformedTransaction)

	other := ed25519.NewKeyFromSeed(make([]byte, 32))
	_, err = s.SignAndSend(context.Background(), unsignedTx(other.Public().(ed25519.PublicKey)), SendOptions{})
	assert.Error(t, err)

	assert.Empty(t, rpc.Sent())
}

func TestKeypairSigner_SendFailure(t *testing.T) {
	key, secret := testKey(t)
	rpc := solana.NewStubRPCClient()
	rpc.SetFailNext(1)
	s, err := NewKeypairSigner(fastConfig(secret), rpc)
	require.NoError(t, err)

	_, err = s.SignAndSend(context.Background(), unsignedTx(key.Public().(ed25519.PublicKey)), SendOptions{})
	assert.Error(t, err)
	assert.Equal(t, int64(0), s.Stats().Sent)
}

func TestSimulatedSigner(t *testing.T) {
	s := NewSimulatedSigner()
	res, err := s.SignAndSend(context.Background(), "anything", SendOptions{Label: "buy"})
	require.NoError(t, err)
	assert.True(t, res.Simulated)
	assert.False(t, res.Confirmed)
	assert.Contains(t, string(res.Signature), "SIMULATION_")
	assert.Contains(t, res.Message, "simulation")

	_, ok := s.PublicKey()
	assert.False(t, ok)
	assert.Equal(t, int64(1), s.Calls())
}
