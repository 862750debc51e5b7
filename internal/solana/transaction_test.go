package solana

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildUnsignedTx lays out: sig count, empty slots, then a v0 message whose
// first account key is payer.
func buildUnsignedTx(payer ed25519.PublicKey, sigCount int) []byte {
	tx := []byte{byte(sigCount)}
	tx = append(tx, make([]byte, sigCount*64)...)
	msg := []byte{0x80, 1, 0, 1, 2}
	msg = append(msg, payer...)
	msg = append(msg, make([]byte, 32)...) // second account
	msg = append(msg, make([]byte, 32)...) // recent blockhash
	msg = append(msg, 0)                   // no instructions
	return append(tx, msg...)
}

func TestSignTransaction_SplicesSignature(t *testing.T) {
	key := ed25519.NewKeyFromSeed(testSeed())
	pub := key.Public().(ed25519.PublicKey)
	raw := buildUnsignedTx(pub, 1)

	signed, sig, err := SignTransaction(raw, key)
	require.NoError(t, err)
	require.Len(t, signed, len(raw))
	assert.NotEmpty(t, sig)

	msg := raw[1+64:]
	assert.Equal(t, msg, signed[1+64:], "message region untouched")
	assert.True(t, ed25519.Verify(pub, msg, signed[1:65]))
	assert.Equal(t, make([]byte, 64), raw[1:65], "input not mutated")
}

func TestSignTransaction_MultipleSlotsSignsFirst(t *testing.T) {
	key := ed25519.NewKeyFromSeed(testSeed())
	pub := key.Public().(ed25519.PublicKey)
	raw := buildUnsignedTx(pub, 2)

	signed, _, err := SignTransaction(raw, key)
	require.NoError(t, err)

	msg := raw[1+128:]
	assert.True(t, ed25519.Verify(pub, msg, signed[1:65]))
	assert.Equal(t, make([]byte, 64), signed[65:129])
}

func TestSignTransaction_RejectsMalformed(t *testing.T) {
	key := ed25519.NewKeyFromSeed(testSeed())

	_, _, err := SignTransaction([]byte{}, key)
	assert.ErrorIs(t, err, ErrMalformedTransaction)

	_, _, err = SignTransaction([]byte{0, 1, 2}, key)
	assert.ErrorIs(t, err, ErrMalformedTransaction)

	_, _, err = SignTransaction(append([]byte{1}, make([]byte, 64)...), key)
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}

func TestSignTransaction_RejectsForeignPayer(t *testing.T) {
	key := ed25519.NewKeyFromSeed(testSeed())
	other := ed25519.NewKeyFromSeed(make([]byte, 32))
	raw := buildUnsignedTx(other.Public().(ed25519.PublicKey), 1)

	_, _, err := SignTransaction(raw, key)
	assert.ErrorContains(t, err, "fee payer")
}

func TestDecodeShortVec(t *testing.T) {
	v, n, err := decodeShortVec([]byte{0x05})
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, 1, n)

	v, n, err = decodeShortVec([]byte{0x80, 0x01})
	require.NoError(t, err)
	assert.Equal(t, 128, v)
	assert.Equal(t, 2, n)

	_, _, err = decodeShortVec([]byte{0x80})
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}
