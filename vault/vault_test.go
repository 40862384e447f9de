package vault

import (
	"strings"
	"testing"

	"github.com/playback-history/collector/errkind"
)

const testKey = "01234567890123456789012345678901" // 32 bytes, trimmed to size below

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(testKey[:keySize])
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestSealUnsealRoundTrip(t *testing.T) {
	v := newTestVault(t)
	plaintext := []byte("AQA_super_secret_refresh_token")

	sealed, err := v.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if strings.Contains(string(sealed), string(plaintext)) {
		t.Fatalf("ciphertext contains plaintext")
	}

	opened, err := v.Unseal(sealed)
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Fatalf("got %q, want %q", opened, plaintext)
	}
}

func TestUnsealTamperedCiphertextIsCorrupt(t *testing.T) {
	v := newTestVault(t)
	sealed, err := v.Seal([]byte("token"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF

	_, err = v.Unseal(sealed)
	if errkind.KindOf(err) != errkind.CorruptCredential {
		t.Fatalf("got kind %v, want CorruptCredential", errkind.KindOf(err))
	}
}

func TestNewRejectsWrongLengthKey(t *testing.T) {
	if _, err := New("too-short"); err == nil {
		t.Fatalf("expected error for short key")
	}
}
