// Package codec implements the record processing pipeline: values are
// serialized to canonical JSON, optionally compressed, optionally encrypted
// on the way in, and the exact reverse on the way out.
//
// The package focuses on:
//   - A pluggable serializer interface with a JSON default
//   - Tiered compression with a deterministic selection policy
//   - Authenticated encryption with self-contained key rotation material
//   - Typed failure reporting (corrupt record vs. decryption failure)
//
// Key Components:
//
//   - Codec: The pipeline itself. Encode produces the stored payload plus
//     processing metadata (original size, tier, flags, checksum); Decode
//     verifies the checksum, decrypts, decompresses and unmarshals.
//
//   - Compression Tiers: The metadata vocabulary (none, fast, simple, lz77)
//     names the speed/ratio trade-off; the backing codecs are Snappy, LZ4
//     and Zstandard. Selection is by payload size, shifted by resource
//     hints: low memory forces compression on, constrained network or
//     battery bumps the tier up. Compression is only kept when it shrinks
//     the payload by the configured minimum gain.
//
//   - ICipher: XChaCha20-Poly1305 with per-record subkeys derived via
//     HKDF-SHA256 from the master key, a random salt and the day number.
//     Salt and day travel in the ciphertext header (authenticated as
//     additional data), so records stay decryptable regardless of when
//     they are read.
//
// Failure modes are part of the contract: a checksum mismatch, truncated
// input, invalid tier or failed unmarshal is a CorruptRecord error; a failed
// authenticated open is a Decryption error. The pipeline never panics on
// malformed input.
package codec
