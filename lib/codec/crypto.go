package codec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"time"

	"github.com/arbordb/arbor/lib/db"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// --------------------------------------------------------------------------
// Cipher Interface
// --------------------------------------------------------------------------

// ICipher is the interface for payload encryption. Implementations must
// embed all material needed for decryption (salt, rotation input) in the
// ciphertext itself, so that records stay decryptable independent of the
// date at decode time.
type ICipher interface {
	// Encrypt encrypts the plaintext and returns the ciphertext with the
	// embedded key-derivation header
	Encrypt(plaintext []byte) ([]byte, error)
	// Decrypt reverses Encrypt. It fails with a Decryption error on
	// tampered, truncated or otherwise malformed input
	Decrypt(ciphertext []byte) ([]byte, error)
}

// --------------------------------------------------------------------------
// XChaCha20-Poly1305 Implementation
// --------------------------------------------------------------------------

// Ciphertext layout: salt (16) || day (4, little endian) || nonce (24) ||
// sealed data. The per-record subkey is derived via HKDF-SHA256 from the
// master key, the salt and the day number, so subkeys rotate daily while
// old records remain readable from their stored header.
const (
	cipherSaltSize   = 16
	cipherDaySize    = 4
	cipherHeaderSize = cipherSaltSize + cipherDaySize
)

// subkey derivation context, bound into HKDF so keys derived here can never
// collide with other uses of the same master key
var cipherInfo = []byte("arbor record subkey v1")

// chachaCipher implements ICipher with XChaCha20-Poly1305
type chachaCipher struct {
	master []byte
	now    func() time.Time
}

// NewChaChaCipher creates an ICipher from the given master key material.
// The key may be any non-empty string; HKDF stretches it to cipher size.
func NewChaChaCipher(key string) (ICipher, error) {
	if key == "" {
		return nil, db.NewError(db.ErrCInternal, "encryption key must not be empty")
	}
	return &chachaCipher{
		master: []byte(key),
		now:    time.Now,
	}, nil
}

// deriveKey derives the subkey for the given header (salt plus day number)
func (c *chachaCipher) deriveKey(header []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, c.master, header, cipherInfo)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, db.WrapError(db.ErrCInternal, "subkey derivation failed", err)
	}
	return key, nil
}

// rotationDay returns the day number used for subkey rotation
func (c *chachaCipher) rotationDay() uint32 {
	return uint32(c.now().UTC().Unix() / 86400)
}

func (c *chachaCipher) Encrypt(plaintext []byte) ([]byte, error) {
	// build the key-derivation header
	header := make([]byte, cipherHeaderSize)
	if _, err := rand.Read(header[:cipherSaltSize]); err != nil {
		return nil, db.WrapError(db.ErrCInternal, "salt generation failed", err)
	}
	binary.LittleEndian.PutUint32(header[cipherSaltSize:], c.rotationDay())

	key, err := c.deriveKey(header)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, db.WrapError(db.ErrCInternal, "cipher construction failed", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, db.WrapError(db.ErrCInternal, "nonce generation failed", err)
	}

	// header || nonce || sealed; the header is authenticated as
	// additional data so tampering with it fails the open
	out := make([]byte, 0, cipherHeaderSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, header), nil
}

func (c *chachaCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	minLen := cipherHeaderSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(ciphertext) < minLen {
		return nil, db.NewErrorf(db.ErrCDecryption, "ciphertext too short: %d bytes", len(ciphertext))
	}

	header := ciphertext[:cipherHeaderSize]
	nonce := ciphertext[cipherHeaderSize : cipherHeaderSize+chacha20poly1305.NonceSizeX]
	sealed := ciphertext[cipherHeaderSize+chacha20poly1305.NonceSizeX:]

	key, err := c.deriveKey(header)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, db.WrapError(db.ErrCInternal, "cipher construction failed", err)
	}

	plain, err := aead.Open(nil, nonce, sealed, header)
	if err != nil {
		return nil, db.WrapError(db.ErrCDecryption, "authenticated decryption failed", err)
	}
	return plain, nil
}
