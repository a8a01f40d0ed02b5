package editorial

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Metadata wraps the free-form structured payload carried by audit
// entries and change events, with path-based access over nested maps.
type Metadata struct {
	data map[string]any
}

// NewMetadata creates metadata from JSON bytes. Malformed input yields an
// empty payload rather than an error; stored metadata is best-effort data.
func NewMetadata(b []byte) *Metadata {
	m := &Metadata{
		data: make(map[string]any),
	}
	if len(b) > 0 {
		json.Unmarshal(b, &m.data)
	}
	return m
}

// NewMetadataFromMap creates metadata over an existing map.
func NewMetadataFromMap(data map[string]any) *Metadata {
	if data == nil {
		data = make(map[string]any)
	}
	return &Metadata{data: data}
}

// Get reads a value at a nested path.
// For example Get("before", "stage") reads before.stage.
func (m *Metadata) Get(keys ...string) (any, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	current := any(m.data)
	for _, key := range keys {
		currentMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, exists := currentMap[key]
		if !exists {
			return nil, false
		}
		current = val
	}
	return current, true
}

// GetString reads a string value at a nested path.
func (m *Metadata) GetString(keys ...string) (string, bool) {
	val, ok := m.Get(keys...)
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetInt64 reads an integer value at a nested path. JSON round-trips
// numbers as float64, so both forms are accepted.
func (m *Metadata) GetInt64(keys ...string) (int64, bool) {
	val, ok := m.Get(keys...)
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// GetBool reads a boolean value at a nested path.
func (m *Metadata) GetBool(keys ...string) (bool, bool) {
	val, ok := m.Get(keys...)
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// Set writes a value at a nested path, creating intermediate maps as
// needed. Non-map intermediates are overwritten.
func (m *Metadata) Set(keys []string, value any) error {
	if len(keys) == 0 {
		return fmt.Errorf("keys cannot be empty")
	}
	current := m.data
	for i := 0; i < len(keys)-1; i++ {
		key := keys[i]
		nextMap, ok := current[key].(map[string]any)
		if !ok {
			nextMap = make(map[string]any)
			current[key] = nextMap
		}
		current = nextMap
	}
	current[keys[len(keys)-1]] = value
	return nil
}

// ToBytes serializes the payload to JSON.
func (m *Metadata) ToBytes() ([]byte, error) {
	return json.Marshal(m.data)
}

// ToBytesWithoutError serializes the payload, returning nil on failure.
func (m *Metadata) ToBytesWithoutError() []byte {
	b, err := json.Marshal(m.data)
	if err != nil {
		return nil
	}
	return b
}

// ToMap returns the underlying map (a reference, not a copy).
func (m *Metadata) ToMap() map[string]any {
	return m.data
}

// Clone deep-copies the payload through a JSON round trip.
func (m *Metadata) Clone() *Metadata {
	b, _ := m.ToBytes()
	return NewMetadata(b)
}

// sensitiveKeySubstrings is the deny-list applied before metadata is
// persisted. Matching is by case-insensitive substring on the key.
var sensitiveKeySubstrings = []string{
	"password",
	"token",
	"secret",
	"credential",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sub := range sensitiveKeySubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// Sanitized returns a copy with every deny-listed key stripped, applied
// recursively through nested maps and arrays. The receiver is unchanged.
func (m *Metadata) Sanitized() *Metadata {
	return NewMetadataFromMap(sanitizeMap(m.data))
}

func sanitizeMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if isSensitiveKey(k) {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return sanitizeMap(val)
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, sanitizeValue(item))
		}
		return out
	default:
		return v
	}
}
