package solana

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrMalformedTransaction is returned for transaction bytes that do not
// follow the wire layout.
var ErrMalformedTransaction = errors.New("solana: malformed transaction")

const (
	signatureLen    = ed25519.SignatureSize
	versionedPrefix = 0x80
)

// decodeShortVec reads a compact-u16 length prefix.
func decodeShortVec(b []byte) (value, size int, err error) {
	for size < 3 {
		if size >= len(b) {
			return 0, 0, fmt.Errorf("%w: truncated length prefix", ErrMalformedTransaction)
		}
		c := b[size]
		value |= int(c&0x7f) << (7 * size)
		size++
		if c&0x80 == 0 {
			return value, size, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: length prefix too long", ErrMalformedTransaction)
}

// feePayer returns the first static account key of a serialized message,
// which is the signer for signature slot 0.
func feePayer(msg []byte) ([]byte, error) {
	off := 0
	if len(msg) > 0 && msg[0]&versionedPrefix != 0 {
		off++ // v0 message version byte
	}
	off += 3 // header: required sigs, readonly signed, readonly unsigned
	if len(msg) < off {
		return nil, fmt.Errorf("%w: message header truncated", ErrMalformedTransaction)
	}
	n, size, err := decodeShortVec(msg[off:])
	if err != nil {
		return nil, err
	}
	off += size
	if n == 0 || len(msg) < off+ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: no account keys", ErrMalformedTransaction)
	}
	return msg[off : off+ed25519.PublicKeySize], nil
}

// SignTransaction signs a serialized transaction produced by a swap
// builder. The message region starts after the signature count and the
// count*64 empty signature slots; the detached signature is spliced into
// slot 0, which belongs to the fee payer.
func SignTransaction(raw []byte, key ed25519.PrivateKey) ([]byte, Signature, error) {
	count, size, err := decodeShortVec(raw)
	if err != nil {
		return nil, "", err
	}
	if count == 0 {
		return nil, "", fmt.Errorf("%w: no signature slots", ErrMalformedTransaction)
	}

	msgStart := size + count*signatureLen
	if len(raw) <= msgStart {
		return nil, "", fmt.Errorf("%w: %d bytes, message expected after offset %d", ErrMalformedTransaction, len(raw), msgStart)
	}
	msg := raw[msgStart:]

	payer, err := feePayer(msg)
	if err != nil {
		return nil, "", err
	}
	pub := key.Public().(ed25519.PublicKey)
	if !bytes.Equal(payer, pub) {
		return nil, "", fmt.Errorf("solana: fee payer %s is not the signer %s",
			base58.Encode(payer), base58.Encode(pub))
	}

	sig := ed25519.Sign(key, msg)

	signed := make([]byte, len(raw))
	copy(signed, raw)
	copy(signed[size:size+signatureLen], sig)

	return signed, Signature(base58.Encode(sig)), nil
}
