// Package vault seals refresh tokens at rest with an authenticated
// symmetric cipher. It never logs or formats plaintext.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/playback-history/collector/errkind"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	version    byte = 1
	keySize         = 32
	nonceSize       = 24
)

// Vault seals and unseals refresh-token plaintext using XSalsa20-Poly1305
// (golang.org/x/crypto/nacl/secretbox), keyed by a process-scoped secret.
// Ciphertext layout is self-describing: [version][nonce][sealed box].
type Vault struct {
	key [keySize]byte
}

// New constructs a Vault from TOKEN_ENCRYPTION_KEY. The key may be supplied
// as raw bytes (exactly 32) or base64-encoded 32 bytes; anything else is a
// fatal configuration error, matching the teacher's startup-time
// config.Load() validation style.
func New(rawKey string) (*Vault, error) {
	key, err := decodeKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	v := &Vault{}
	copy(v.key[:], key)
	return v, nil
}

func decodeKey(rawKey string) ([]byte, error) {
	if len(rawKey) == keySize {
		return []byte(rawKey), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(rawKey)
	if err == nil && len(decoded) == keySize {
		return decoded, nil
	}
	return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY must be %d raw bytes or base64-encoded %d bytes", keySize, keySize)
}

// Seal encrypts plaintext into a self-describing, versioned ciphertext.
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("vault: generating nonce: %w", err)
	}

	out := make([]byte, 0, 1+nonceSize+len(plaintext)+secretbox.Overhead)
	out = append(out, version)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, plaintext, &nonce, &v.key)
	return out, nil
}

// Unseal decrypts ciphertext produced by Seal. Authentication failure or a
// malformed envelope both surface as errkind.CorruptCredential — the caller
// must treat the credential as unusable and ask the user to re-authorize.
func (v *Vault) Unseal(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 1+nonceSize+secretbox.Overhead {
		return nil, errkind.New(errkind.CorruptCredential, "ciphertext too short")
	}
	if ciphertext[0] != version {
		return nil, errkind.New(errkind.CorruptCredential, "unsupported ciphertext version")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[1:1+nonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[1+nonceSize:], &nonce, &v.key)
	if !ok {
		return nil, errkind.New(errkind.CorruptCredential, "authentication failed")
	}
	return plaintext, nil
}
