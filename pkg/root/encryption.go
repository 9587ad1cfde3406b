package root

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/cuemby/acorndb/pkg/acorn"
)

// KeyProvider resolves a key id to the symmetric key material used by
// EncryptionRoot. Injected so the root never owns key material directly.
type KeyProvider func(keyID string) (*[32]byte, error)

// EncryptionRoot wraps the payload in a tagged ciphertext envelope using
// nacl/secretbox (XSalsa20-Poly1305): a fresh random nonce per Stash,
// prepended to the sealed box.
type EncryptionRoot struct {
	sequence int
	keyID    string
	keys     KeyProvider
}

// NewEncryptionRoot builds an encryption stage that resolves its key via
// keys(keyID) on every call — callers may rotate the provider without
// reconstructing the pipeline.
func NewEncryptionRoot(sequence int, keyID string, keys KeyProvider) *EncryptionRoot {
	return &EncryptionRoot{sequence: sequence, keyID: keyID, keys: keys}
}

func (r *EncryptionRoot) Signature() string { return "encryption:" + r.keyID }
func (r *EncryptionRoot) Sequence() int     { return r.sequence }

func (r *EncryptionRoot) OnStash(data []byte, _ *Context) ([]byte, error) {
	key, err := r.keys(r.keyID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve key %s: %v", acorn.ErrPolicyDenied, r.keyID, err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("encryption nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], data, &nonce, key)
	return sealed, nil
}

func (r *EncryptionRoot) OnCrack(data []byte, _ *Context) ([]byte, error) {
	if len(data) < 24 {
		return nil, fmt.Errorf("%w: ciphertext too short", acorn.ErrRootMismatch)
	}
	key, err := r.keys(r.keyID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve key %s: %v", acorn.ErrPolicyDenied, r.keyID, err)
	}

	var nonce [24]byte
	copy(nonce[:], data[:24])

	opened, ok := secretbox.Open(nil, data[24:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("%w: ciphertext authentication failed", acorn.ErrRootMismatch)
	}
	return opened, nil
}
