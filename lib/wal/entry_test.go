package wal

import (
	"bytes"
	"testing"
	"time"
)

// TestEntrySizeBytes tests the SizeBytes method
func TestEntrySizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		entry    Entry
		expected int
	}{
		{
			name: "Entry with key and value",
			entry: Entry{
				ID:        1,
				Op:        OpSet,
				Key:       "testkey",
				Value:     []byte("testvalue"),
				Timestamp: time.Now(),
			},
			expected: 1 + 8 + 8 + 8 + 4 + 7 + 9, // Op + ID + Timestamp + Checksum + KeyLen + Key + Value
		},
		{
			name: "Entry without value",
			entry: Entry{
				ID:        2,
				Op:        OpDelete,
				Key:       "testkey",
				Timestamp: time.Now(),
			},
			expected: 1 + 8 + 8 + 8 + 4 + 7, // Op + ID + Timestamp + Checksum + KeyLen + Key
		},
		{
			name: "Entry with empty key",
			entry: Entry{
				ID:        3,
				Op:        OpSet,
				Key:       "",
				Value:     []byte("v"),
				Timestamp: time.Now(),
			},
			expected: 1 + 8 + 8 + 8 + 4 + 0 + 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.entry.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestEntrySerializeDeserialize tests both Serialize and Deserialize methods
func TestEntrySerializeDeserialize(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		entry Entry
	}{
		{
			name: "Set entry with value",
			entry: Entry{
				ID:        42,
				Op:        OpSet,
				Key:       "user:1",
				Value:     []byte(`{"name":"alice"}`),
				Timestamp: now,
			},
		},
		{
			name: "Delete entry without value",
			entry: Entry{
				ID:        43,
				Op:        OpDelete,
				Key:       "user:1",
				Timestamp: now,
			},
		},
		{
			name: "Entry with empty key",
			entry: Entry{
				ID:        44,
				Op:        OpSet,
				Key:       "",
				Value:     []byte("value"),
				Timestamp: now,
			},
		},
		{
			name: "Entry with large id",
			entry: Entry{
				ID:        1<<63 + 7,
				Op:        OpSet,
				Key:       "key",
				Value:     []byte("value"),
				Timestamp: now,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.entry.Checksum = tt.entry.computeChecksum()

			data := tt.entry.Serialize()
			if len(data) != tt.entry.SizeBytes() {
				t.Errorf("Serialize() produced %d bytes, want %d", len(data), tt.entry.SizeBytes())
			}

			var decoded Entry
			if err := decoded.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() failed: %v", err)
			}

			if decoded.ID != tt.entry.ID {
				t.Errorf("ID = %v, want %v", decoded.ID, tt.entry.ID)
			}
			if decoded.Op != tt.entry.Op {
				t.Errorf("Op = %v, want %v", decoded.Op, tt.entry.Op)
			}
			if decoded.Key != tt.entry.Key {
				t.Errorf("Key = %q, want %q", decoded.Key, tt.entry.Key)
			}
			if !bytes.Equal(decoded.Value, tt.entry.Value) {
				t.Errorf("Value = %v, want %v", decoded.Value, tt.entry.Value)
			}
			if decoded.Timestamp.UnixNano() != tt.entry.Timestamp.UnixNano() {
				t.Errorf("Timestamp = %v, want %v", decoded.Timestamp.UnixNano(), tt.entry.Timestamp.UnixNano())
			}
			if decoded.Checksum != tt.entry.Checksum {
				t.Errorf("Checksum = %v, want %v", decoded.Checksum, tt.entry.Checksum)
			}
		})
	}
}

// TestEntryDeserializeErrors tests error handling for malformed data
func TestEntryDeserializeErrors(t *testing.T) {
	valid := Entry{
		ID:        1,
		Op:        OpSet,
		Key:       "testkey",
		Value:     []byte("testvalue"),
		Timestamp: time.Now(),
	}
	valid.Checksum = valid.computeChecksum()
	data := valid.Serialize()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "Empty data", data: []byte{}},
		{name: "Truncated header", data: data[:20]},
		{name: "Truncated key", data: data[:31]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Entry
			if err := e.Deserialize(tt.data); err == nil {
				t.Error("Deserialize() should have failed")
			}
		})
	}
}

// TestEntryChecksumDetectsTampering verifies the integrity check
func TestEntryChecksumDetectsTampering(t *testing.T) {
	e := Entry{
		ID:        7,
		Op:        OpSet,
		Key:       "account:99",
		Value:     []byte(`{"balance":100}`),
		Timestamp: time.Now(),
	}
	e.Checksum = e.computeChecksum()
	data := e.Serialize()

	// sanity check: untampered data decodes
	var decoded Entry
	if err := decoded.Deserialize(data); err != nil {
		t.Fatalf("Deserialize() of valid data failed: %v", err)
	}

	// flip one byte in the key region
	tampered := make([]byte, len(data))
	copy(tampered, data)
	tampered[30] ^= 0xFF

	if err := decoded.Deserialize(tampered); err == nil {
		t.Error("Deserialize() should have detected the tampered key")
	}

	// flip one byte in the value region
	tampered = make([]byte, len(data))
	copy(tampered, data)
	tampered[len(tampered)-1] ^= 0xFF

	if err := decoded.Deserialize(tampered); err == nil {
		t.Error("Deserialize() should have detected the tampered value")
	}
}

// TestEntryClone verifies the deep copy semantics
func TestEntryClone(t *testing.T) {
	e := Entry{
		ID:        1,
		Op:        OpSet,
		Key:       "key",
		Value:     []byte("value"),
		Timestamp: time.Now(),
	}

	clone := e.Clone()
	clone.Value[0] = 'X'

	if e.Value[0] != 'v' {
		t.Error("Clone() should not share the value buffer")
	}
}
