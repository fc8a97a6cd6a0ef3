package shared

import (
	"bytes"
	"encoding/json"
)

// Patch is a partial-update field. The zero value means "not provided".
// Set with Null means "explicitly cleared"; Set with a Value replaces the old value.
type Patch[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a patch that sets value.
func Some[T any](value T) Patch[T] {
	return Patch[T]{Set: true, Value: value}
}

// Clear returns a patch that clears the field.
func Clear[T any]() Patch[T] {
	return Patch[T]{Set: true, Null: true}
}

// Apply returns the merged value: old when unset, zero when cleared, Value otherwise.
func (p Patch[T]) Apply(old T) T {
	switch {
	case !p.Set:
		return old
	case p.Null:
		var zero T
		return zero
	default:
		return p.Value
	}
}

// ApplyPtr merges into an optional field.
func (p Patch[T]) ApplyPtr(old *T) *T {
	switch {
	case !p.Set:
		return old
	case p.Null:
		return nil
	default:
		v := p.Value
		return &v
	}
}

// MarshalJSON renders the provided value, or null when unset or cleared.
func (p Patch[T]) MarshalJSON() ([]byte, error) {
	if !p.Set || p.Null {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON marks the field as provided. Absent keys never reach this method.
func (p *Patch[T]) UnmarshalJSON(data []byte) error {
	p.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		p.Null = true
		var zero T
		p.Value = zero
		return nil
	}
	p.Null = false
	return json.Unmarshal(data, &p.Value)
}
