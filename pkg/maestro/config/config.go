package config

import (
	"strconv"
)

// Bag wraps a map[string]any for type-safe value extraction.
// Node property bags are decoded straight from JSON, so numeric values
// usually arrive as float64 and may arrive as strings when the graph was
// generated by an LLM. All accessors return a default value when the key
// is missing or cannot be converted.
type Bag struct {
	data map[string]any
}

// New creates a Bag from the given map.
// If data is nil, an empty Bag is returned.
func New(data map[string]any) Bag {
	if data == nil {
		data = make(map[string]any)
	}
	return Bag{data: data}
}

// String returns the string value for key, or defaultVal if missing or not a string.
func (b Bag) String(key, defaultVal string) string {
	v, ok := b.data[key]
	if !ok {
		return defaultVal
	}
	if s, ok := v.(string); ok {
		return s
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal if missing or not convertible.
//
// Accepts:
//   - int: used directly
//   - int64: converted to int
//   - float64: converted to int (only if no fractional part)
//   - string: parsed with strconv.Atoi
func (b Bag) Int(key string, defaultVal int) int {
	v, ok := b.data[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// Float returns the float64 value for key, or defaultVal if missing or not convertible.
func (b Bag) Float(key string, defaultVal float64) float64 {
	v, ok := b.data[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal if missing or not a bool.
func (b Bag) Bool(key string, defaultVal bool) bool {
	v, ok := b.data[key]
	if !ok {
		return defaultVal
	}
	if val, ok := v.(bool); ok {
		return val
	}
	return defaultVal
}

// Any returns the raw value for key, or defaultVal if missing.
func (b Bag) Any(key string, defaultVal any) any {
	v, ok := b.data[key]
	if !ok {
		return defaultVal
	}
	return v
}

// Has returns true if the key exists in the bag.
func (b Bag) Has(key string) bool {
	_, ok := b.data[key]
	return ok
}

// Set stores a value under key. The underlying map is created lazily
// so a zero Bag is usable.
func (b *Bag) Set(key string, value any) {
	if b.data == nil {
		b.data = make(map[string]any)
	}
	b.data[key] = value
}

// Raw returns the underlying map.
// The returned map should not be modified.
func (b Bag) Raw() map[string]any {
	return b.data
}
