package codec

import "encoding/json"

// --------------------------------------------------------------------------
// Serializer Interface
// --------------------------------------------------------------------------

// ISerializer is the interface for all value serializers.
// The serialized form must round-trip: Unmarshal(Marshal(v)) yields a value
// deep-equal to the canonical form of v. Field queries run against the
// unmarshaled form, so all implementations must produce the same value
// shapes (maps, slices, strings, numbers).
type ISerializer interface {
	// Marshal serializes a value into a byte array
	// It returns the serialized byte array and an error if any
	Marshal(value interface{}) ([]byte, error)
	// Unmarshal deserializes a byte array back into a value
	// It returns the value and an error if any
	Unmarshal(data []byte) (interface{}, error)
}

// --------------------------------------------------------------------------
// JSON Implementation
// --------------------------------------------------------------------------

// NewJSONSerializer creates a new serializer using json encoding.
// This is the default serializer: canonical JSON text keeps stored values
// language-neutral and defines the value shapes seen by field queries
// (objects as map[string]interface{}, numbers as float64).
func NewJSONSerializer() ISerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the ISerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ISerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Marshal(value interface{}) ([]byte, error) {
	return json.Marshal(value)
}

func (j jsonSerializerImpl) Unmarshal(data []byte) (interface{}, error) {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return value, nil
}
