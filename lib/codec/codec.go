package codec

import (
	"github.com/arbordb/arbor/lib/db"
	"github.com/zeebo/xxh3"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configure a Codec instance.
type Options struct {
	// CompressionEnabled turns payload compression on by default.
	// Individual encodes can override this via EncodeOptions.
	CompressionEnabled bool
	// EncryptionEnabled turns payload encryption on by default.
	// Individual encodes can override this via EncodeOptions.
	EncryptionEnabled bool
	// EncryptionKey is the master key material for the cipher. A cipher is
	// built whenever a key is present, so per-call encryption works even
	// when EncryptionEnabled is false.
	EncryptionKey string
	// CompressMinSize is the payload size in bytes above which compression
	// is attempted (unless forced by resource hints).
	CompressMinSize int
	// CompressMinGain is the relative size reduction compression must
	// achieve to be kept (0.10 means at least 10% smaller).
	CompressMinGain float64
	// Serializer converts values to and from bytes. Defaults to JSON.
	Serializer ISerializer
	// Cipher overrides the cipher built from EncryptionKey. Mainly a test
	// seam and an extension point for alternative AEAD schemes.
	Cipher ICipher
}

// DefaultOptions returns the default codec configuration: compression on
// above 100 bytes with a 10% minimum gain, encryption off.
func DefaultOptions() Options {
	return Options{
		CompressionEnabled: true,
		EncryptionEnabled:  false,
		CompressMinSize:    100,
		CompressMinGain:    0.10,
	}
}

// EncodeOptions override the codec defaults for a single encode call.
// Nil pointers inherit the configured default.
type EncodeOptions struct {
	Compress *bool
	Encrypt  *bool
	Hints    Hints
}

// --------------------------------------------------------------------------
// Codec
// --------------------------------------------------------------------------

// Codec turns values into stored payloads and back: serialize, optionally
// compress, optionally encrypt on encode; the exact reverse on decode.
//
// Thread-safety: a Codec is immutable after construction and safe for
// concurrent use.
type Codec struct {
	opts       Options
	serializer ISerializer
	cipher     ICipher
}

// New creates a Codec from the given options.
func New(opts Options) (*Codec, error) {
	c := &Codec{
		opts:       opts,
		serializer: opts.Serializer,
		cipher:     opts.Cipher,
	}
	if c.serializer == nil {
		c.serializer = NewJSONSerializer()
	}
	if c.cipher == nil && opts.EncryptionKey != "" {
		cipher, err := NewChaChaCipher(opts.EncryptionKey)
		if err != nil {
			return nil, err
		}
		c.cipher = cipher
	}
	if opts.EncryptionEnabled && c.cipher == nil {
		return nil, db.NewError(db.ErrCInternal, "encryption enabled but no key configured")
	}
	return c, nil
}

// Marshal serializes a value to its canonical byte form without running the
// compression or encryption stages. The write-ahead log records this form.
func (c *Codec) Marshal(value interface{}) ([]byte, error) {
	raw, err := c.serializer.Marshal(value)
	if err != nil {
		return nil, db.WrapError(db.ErrCInternal, "value serialization failed", err)
	}
	return raw, nil
}

// Unmarshal reverses Marshal, turning the canonical byte form back into a
// value.
func (c *Codec) Unmarshal(raw []byte) (interface{}, error) {
	value, err := c.serializer.Unmarshal(raw)
	if err != nil {
		return nil, db.WrapError(db.ErrCCorruptRecord, "payload unmarshal failed", err)
	}
	return value, nil
}

// Encode runs the full pipeline on a value and returns the stored payload
// together with the processing metadata. Lifecycle fields (timestamps,
// version, access statistics) are left for the store to fill in.
func (c *Codec) Encode(value interface{}, opts EncodeOptions) ([]byte, db.Metadata, error) {
	raw, err := c.Marshal(value)
	if err != nil {
		return nil, db.Metadata{}, err
	}
	return c.EncodeBytes(raw, opts)
}

// EncodeBytes runs the compression and encryption stages on an already
// serialized value.
func (c *Codec) EncodeBytes(raw []byte, opts EncodeOptions) ([]byte, db.Metadata, error) {
	meta := db.Metadata{
		OriginalSize: len(raw),
		Algorithm:    db.TierNone,
	}
	payload := raw

	compress := c.opts.CompressionEnabled
	if opts.Compress != nil {
		compress = *opts.Compress
	}
	if compress && (len(raw) > c.opts.CompressMinSize || opts.Hints.ForceCompression) {
		tier := selectTier(len(raw), opts.Hints)
		compressed, err := Compress(tier, raw)
		if err != nil {
			return nil, db.Metadata{}, db.WrapError(db.ErrCInternal, "compression failed", err)
		}
		// only keep compression when it actually pays off
		if float64(len(compressed)) < float64(len(raw))*(1.0-c.opts.CompressMinGain) {
			payload = compressed
			meta.Compressed = true
			meta.Algorithm = tier
		}
	}

	encrypt := c.opts.EncryptionEnabled
	if opts.Encrypt != nil {
		encrypt = *opts.Encrypt
	}
	if encrypt {
		if c.cipher == nil {
			return nil, db.Metadata{}, db.NewError(db.ErrCUnsupportedOperation, "encryption requested but no key configured")
		}
		sealed, err := c.cipher.Encrypt(payload)
		if err != nil {
			return nil, db.Metadata{}, err
		}
		payload = sealed
		meta.Encrypted = true
	}

	meta.Size = len(payload)
	meta.Checksum = xxh3.Hash(payload)
	return payload, meta, nil
}

// Decode reverses Encode: verify, decrypt, decompress, unmarshal.
func (c *Codec) Decode(payload []byte, meta db.Metadata) (interface{}, error) {
	raw, err := c.DecodeBytes(payload, meta)
	if err != nil {
		return nil, err
	}
	value, err := c.serializer.Unmarshal(raw)
	if err != nil {
		return nil, db.WrapError(db.ErrCCorruptRecord, "payload unmarshal failed", err)
	}
	return value, nil
}

// DecodeBytes reverses the encryption and compression stages, returning the
// canonical serialized form of the value.
func (c *Codec) DecodeBytes(payload []byte, meta db.Metadata) ([]byte, error) {
	if len(payload) != meta.Size {
		return nil, db.NewErrorf(db.ErrCCorruptRecord,
			"payload length %d does not match recorded size %d", len(payload), meta.Size)
	}
	if xxh3.Hash(payload) != meta.Checksum {
		return nil, db.NewError(db.ErrCCorruptRecord, "payload checksum mismatch")
	}

	data := payload
	if meta.Encrypted {
		if c.cipher == nil {
			return nil, db.NewError(db.ErrCDecryption, "record is encrypted but no key configured")
		}
		plain, err := c.cipher.Decrypt(data)
		if err != nil {
			return nil, err
		}
		data = plain
	}

	if meta.Compressed {
		if meta.Algorithm == db.TierNone {
			return nil, db.NewError(db.ErrCCorruptRecord, "record marked compressed without an algorithm")
		}
		raw, err := Decompress(meta.Algorithm, data)
		if err != nil {
			return nil, db.WrapError(db.ErrCCorruptRecord, "decompression failed", err)
		}
		data = raw
	}

	return data, nil
}
