package wal

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/zeebo/xxh3"
)

// Operation defines the mutating operations recorded in the log.
type Operation uint8

const (
	OpSet    Operation = iota // Insert or update an entry.
	OpDelete                  // Delete an entry.
)

func (op Operation) String() string {
	switch op {
	case OpSet:
		return "SET"
	case OpDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("Unknown(%d)", op)
	}
}

// Entry is a single intent record in the write-ahead log. For SET
// operations Value holds the serialized form of the written value, for
// DELETE operations Value is nil. Checksum covers all other fields so a
// decoded entry can be verified for integrity.
type Entry struct {
	ID        uint64
	Op        Operation
	Key       string
	Value     []byte
	Timestamp time.Time
	Checksum  uint64
}

// computeChecksum hashes the entry fields covered by the integrity check,
// which is exactly the serialized form with the checksum field excluded.
func (e *Entry) computeChecksum() uint64 {
	var header [21]byte
	header[0] = byte(e.Op)
	binary.BigEndian.PutUint64(header[1:9], e.ID)
	binary.BigEndian.PutUint64(header[9:17], uint64(e.Timestamp.UnixNano()))
	binary.BigEndian.PutUint32(header[17:21], uint32(len(e.Key)))

	h := xxh3.New()
	_, _ = h.Write(header[:])
	_, _ = h.WriteString(e.Key)
	if e.Value != nil {
		_, _ = h.Write(e.Value)
	}
	return h.Sum64()
}

// SizeBytes returns the exact number of bytes needed to serialize this entry
func (e *Entry) SizeBytes() int {
	size := 1 + 8 + 8 + 8 + 4 + len(e.Key) // Op + ID + Timestamp + Checksum + KeyLen + Key
	if e.Value != nil {
		size += len(e.Value)
	}
	return size
}

// Serialize serializes an entry into a byte array with the format:
// 1 byte for the operation,
// 8 bytes for the entry id (big endian),
// 8 bytes for the timestamp in unix nanoseconds,
// 8 bytes for the checksum,
// 4 bytes for key length (big endian),
// N bytes for key data,
// N bytes for value data (optional)
func (e *Entry) Serialize() []byte {
	result := make([]byte, e.SizeBytes())

	result[0] = byte(e.Op)
	binary.BigEndian.PutUint64(result[1:9], e.ID)
	binary.BigEndian.PutUint64(result[9:17], uint64(e.Timestamp.UnixNano()))
	binary.BigEndian.PutUint64(result[17:25], e.Checksum)

	binary.BigEndian.PutUint32(result[25:29], uint32(len(e.Key)))
	copy(result[29:29+len(e.Key)], e.Key)

	if e.Value != nil {
		copy(result[29+len(e.Key):], e.Value)
	}

	return result
}

// Deserialize extracts all Entry fields from a byte array and verifies the
// embedded checksum.
func (e *Entry) Deserialize(data []byte) error {
	// Minimum size: 1 (Op) + 8 (ID) + 8 (Timestamp) + 8 (Checksum) + 4 (KeyLen) = 29 bytes
	if len(data) < 29 {
		return fmt.Errorf("data too short for wal entry")
	}

	e.Op = Operation(data[0])
	e.ID = binary.BigEndian.Uint64(data[1:9])
	e.Timestamp = time.Unix(0, int64(binary.BigEndian.Uint64(data[9:17])))
	e.Checksum = binary.BigEndian.Uint64(data[17:25])

	keyLen := binary.BigEndian.Uint32(data[25:29])
	if len(data) < 29+int(keyLen) {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	e.Key = string(data[29 : 29+keyLen])

	if len(data) > 29+int(keyLen) {
		valueLen := len(data) - (29 + int(keyLen))
		// Reuse existing buffer if possible to reduce allocations
		if e.Value == nil || cap(e.Value) < valueLen {
			e.Value = make([]byte, valueLen)
		} else {
			e.Value = e.Value[:valueLen]
		}
		copy(e.Value, data[29+int(keyLen):])
	} else {
		e.Value = nil
	}

	if got := e.computeChecksum(); got != e.Checksum {
		return fmt.Errorf("wal entry checksum mismatch: stored %d, computed %d", e.Checksum, got)
	}

	return nil
}

// Clone returns a deep copy of the entry
func (e *Entry) Clone() Entry {
	clone := *e
	if e.Value != nil {
		clone.Value = make([]byte, len(e.Value))
		copy(clone.Value, e.Value)
	}
	return clone
}
