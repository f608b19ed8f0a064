package identity

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// #region algorithm

// Algorithm selects the digest used for session key derivation.
type Algorithm string

const (
	SHA256  Algorithm = "sha256"
	SHA512  Algorithm = "sha512"
	BLAKE2b Algorithm = "blake2b"
)

// #endregion algorithm

// #region keyer

// Keyer derives stable, opaque session keys from caller-supplied identifiers
// so raw user identifiers never reach the memory bank or the event log. The
// same (salt, identifier) pair always yields the same key.
type Keyer struct {
	alg     Algorithm
	salt    []byte
	newHash func() (hash.Hash, error)
}

// NewKeyer builds a keyer for the given algorithm and salt. The algorithm is
// resolved once here; derivation never branches on strings.
func NewKeyer(alg Algorithm, salt string) (*Keyer, error) {
	k := &Keyer{alg: alg, salt: []byte(salt)}
	switch alg {
	case SHA256:
		k.newHash = func() (hash.Hash, error) { return sha256.New(), nil }
	case SHA512:
		k.newHash = func() (hash.Hash, error) { return sha512.New(), nil }
	case BLAKE2b:
		k.newHash = func() (hash.Hash, error) { return blake2b.New256(nil) }
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", alg)
	}
	return k, nil
}

// SessionKey derives the hex-encoded key for an identifier.
func (k *Keyer) SessionKey(identifier string) (string, error) {
	h, err := k.newHash()
	if err != nil {
		return "", fmt.Errorf("init %s: %w", k.alg, err)
	}
	h.Write(k.salt)
	h.Write([]byte(identifier))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Algorithm returns the configured digest.
func (k *Keyer) Algorithm() Algorithm {
	return k.alg
}

// #endregion keyer
