package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/arbordb/arbor/lib/db"
	"golang.org/x/crypto/chacha20poly1305"
)

// TestCipherRoundTrip tests encrypt-then-decrypt for various payload sizes
func TestCipherRoundTrip(t *testing.T) {
	cipher, err := NewChaChaCipher("test-master-key")
	if err != nil {
		t.Fatalf("NewChaChaCipher failed: %v", err)
	}

	payloads := [][]byte{
		[]byte(""),
		[]byte("x"),
		[]byte("a short payload"),
		[]byte(strings.Repeat("block", 1000)),
		{0x00, 0xff, 0x00, 0xff},
	}

	for i, plain := range payloads {
		sealed, err := cipher.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt payload %d failed: %v", i, err)
		}

		if len(sealed) <= len(plain) {
			t.Errorf("Payload %d: ciphertext should carry header and tag, got %d <= %d bytes",
				i, len(sealed), len(plain))
		}

		restored, err := cipher.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt payload %d failed: %v", i, err)
		}

		if !bytes.Equal(plain, restored) {
			t.Errorf("Payload %d mismatch after round trip", i)
		}
	}
}

// TestCipherCiphertextsDiffer tests that encrypting the same plaintext twice
// yields different ciphertexts (fresh salt and nonce per record)
func TestCipherCiphertextsDiffer(t *testing.T) {
	cipher, err := NewChaChaCipher("test-master-key")
	if err != nil {
		t.Fatalf("NewChaChaCipher failed: %v", err)
	}

	plain := []byte("same plaintext")
	first, err := cipher.Encrypt(plain)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	second, err := cipher.Encrypt(plain)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if bytes.Equal(first, second) {
		t.Error("two encryptions of the same plaintext should not produce identical ciphertexts")
	}
}

// TestCipherTamper tests that modifying any region of the ciphertext fails
// the authenticated open
func TestCipherTamper(t *testing.T) {
	cipher, err := NewChaChaCipher("test-master-key")
	if err != nil {
		t.Fatalf("NewChaChaCipher failed: %v", err)
	}

	sealed, err := cipher.Encrypt([]byte("sensitive payload"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	regions := []struct {
		name   string
		offset int
	}{
		{"salt", 0},
		{"day", cipherSaltSize},
		{"nonce", cipherHeaderSize},
		{"sealed data", cipherHeaderSize + chacha20poly1305.NonceSizeX},
		{"auth tag", len(sealed) - 1},
	}

	for _, region := range regions {
		t.Run(region.name, func(t *testing.T) {
			tampered := make([]byte, len(sealed))
			copy(tampered, sealed)
			tampered[region.offset] ^= 0x01

			_, err := cipher.Decrypt(tampered)
			if err == nil {
				t.Fatal("Decrypt of tampered ciphertext should fail")
			}
			if !errors.Is(err, db.ErrDecryption) {
				t.Errorf("expected Decryption error, got: %v", err)
			}
		})
	}
}

// TestCipherTruncated tests the error path for truncated and empty input
func TestCipherTruncated(t *testing.T) {
	cipher, err := NewChaChaCipher("test-master-key")
	if err != nil {
		t.Fatalf("NewChaChaCipher failed: %v", err)
	}

	sealed, err := cipher.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	for _, length := range []int{0, 1, cipherHeaderSize, cipherHeaderSize + 10} {
		_, err := cipher.Decrypt(sealed[:length])
		if err == nil {
			t.Errorf("Decrypt of %d-byte prefix should fail", length)
			continue
		}
		if !errors.Is(err, db.ErrDecryption) {
			t.Errorf("expected Decryption error for %d-byte prefix, got: %v", length, err)
		}
	}
}

// TestCipherWrongKey tests that a different master key cannot open records
func TestCipherWrongKey(t *testing.T) {
	first, err := NewChaChaCipher("key-one")
	if err != nil {
		t.Fatalf("NewChaChaCipher failed: %v", err)
	}
	second, err := NewChaChaCipher("key-two")
	if err != nil {
		t.Fatalf("NewChaChaCipher failed: %v", err)
	}

	sealed, err := first.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := second.Decrypt(sealed); err == nil {
		t.Fatal("Decrypt with a different key should fail")
	}
}

// TestCipherDayRotation tests that records encrypted on one day stay
// decryptable on later days, since the rotation day travels in the header
func TestCipherDayRotation(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cipher := &chachaCipher{
		master: []byte("rotating-key"),
		now:    func() time.Time { return base },
	}

	sealed, err := cipher.Encrypt([]byte("written on day one"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// move the clock three days ahead, the stored day must still win
	cipher.now = func() time.Time { return base.Add(72 * time.Hour) }

	restored, err := cipher.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt after day rotation failed: %v", err)
	}
	if string(restored) != "written on day one" {
		t.Error("payload mismatch after day rotation")
	}

	// records written on different days must not share a subkey header
	laterSealed, err := cipher.Encrypt([]byte("written on day four"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	dayOne := sealed[cipherSaltSize:cipherHeaderSize]
	dayFour := laterSealed[cipherSaltSize:cipherHeaderSize]
	if bytes.Equal(dayOne, dayFour) {
		t.Error("day header should differ for records written three days apart")
	}
}

// TestCipherEmptyKey tests that construction rejects an empty key
func TestCipherEmptyKey(t *testing.T) {
	if _, err := NewChaChaCipher(""); err == nil {
		t.Error("NewChaChaCipher with empty key should fail")
	}
}
