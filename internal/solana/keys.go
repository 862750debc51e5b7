package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrInvalidKey is returned for key material that cannot be used to sign.
var ErrInvalidKey = errors.New("solana: invalid key")

// ParseKeypair decodes wallet key material. Accepted forms are a base58
// 64-byte keypair, a base58 32-byte seed, or the solana-keygen JSON byte
// array.
func ParseKeypair(secret string) (ed25519.PrivateKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	var raw []byte
	if strings.HasPrefix(secret, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(secret), &ints); err != nil {
			return nil, fmt.Errorf("%w: parse byte array: %v", ErrInvalidKey, err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: byte %d out of range", ErrInvalidKey, i)
			}
			raw[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(secret)
		if err != nil {
			return nil, fmt.Errorf("%w: base58: %v", ErrInvalidKey, err)
		}
		raw = decoded
	}

	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		key := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !key.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
			return nil, fmt.Errorf("%w: public half does not match seed", ErrInvalidKey)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: expected 32 or 64 bytes, got %d", ErrInvalidKey, len(raw))
	}
}

// PubkeyOf returns the base58 address of a private key.
func PubkeyOf(key ed25519.PrivateKey) Pubkey {
	return Pubkey(base58.Encode(key.Public().(ed25519.PublicKey)))
}

// Bytes decodes the address.
func (p Pubkey) Bytes() ([]byte, error) {
	b, err := base58.Decode(string(p))
	if err != nil {
		return nil, fmt.Errorf("solana: decode pubkey %q: %w", p, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("solana: pubkey %q has %d bytes, want 32", p, len(b))
	}
	return b, nil
}

// Valid reports whether p decodes to 32 bytes.
func (p Pubkey) Valid() bool {
	_, err := p.Bytes()
	return err == nil
}

// IsOnCurve reports whether p is a valid ed25519 point. Wallet addresses
// are on the curve; program-derived addresses are not.
func (p Pubkey) IsOnCurve() bool {
	b, err := p.Bytes()
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// Short returns an abbreviated address for logs.
func (p Pubkey) Short() string {
	if len(p) <= 8 {
		return string(p)
	}
	return string(p[:4]) + ".." + string(p[len(p)-4:])
}
