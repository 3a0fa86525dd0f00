package flags

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Field is an optional patch value. The zero Field is unspecified.
type Field[T any] struct {
	Value T
	Set   bool
}

// Some returns a specified Field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// Or returns the field's value if specified, otherwise fallback.
func (f Field[T]) Or(fallback T) T {
	if f.Set {
		return f.Value
	}
	return fallback
}

// Patch is a partial update to a flag. UpdatedAt is always applied.
type Patch struct {
	Name    Field[string]
	Enabled Field[bool]
	Rules   Field[[]Rule]
	// Percentage specified with a nil Value clears the stored percentage.
	Percentage Field[*float64]
	UpdatedAt  int64
}

// SetPercentage returns a percentage field holding p.
func SetPercentage(p float64) Field[*float64] {
	return Some(&p)
}

// ClearPercentage returns a percentage field that resets the percentage to
// unset.
func ClearPercentage() Field[*float64] {
	return Some[*float64](nil)
}

// Apply merges p into f and returns the result. f is not modified.
func (p Patch) Apply(f Flag) Flag {
	out := f
	out.Name = p.Name.Or(f.Name)
	out.Enabled = p.Enabled.Or(f.Enabled)
	out.Rules = p.Rules.Or(f.Rules)
	out.Percentage = p.Percentage.Or(f.Percentage)
	out.UpdatedAt = p.UpdatedAt
	return out
}

var errMissingUpdatedAt = errors.New("patch: updatedAt is required")

// MarshalJSON writes only the specified fields. A cleared percentage is
// written as null.
func (p Patch) MarshalJSON() ([]byte, error) {
	m := map[string]any{"updatedAt": p.UpdatedAt}
	if p.Name.Set {
		m["name"] = p.Name.Value
	}
	if p.Enabled.Set {
		m["enabled"] = p.Enabled.Value
	}
	if p.Rules.Set {
		m["rules"] = p.Rules.Value
	}
	if p.Percentage.Set {
		m["percentage"] = p.Percentage.Value
	}
	return json.Marshal(m)
}

// UnmarshalJSON treats an absent key as unspecified. An explicit null
// percentage clears it; null for any other field is unspecified.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out Patch
	ts, ok := raw["updatedAt"]
	if !ok || isNull(ts) {
		return errMissingUpdatedAt
	}
	if err := json.Unmarshal(ts, &out.UpdatedAt); err != nil {
		return fmt.Errorf("patch: updatedAt: %w", err)
	}

	if err := decodeField(raw, "name", &out.Name); err != nil {
		return err
	}
	if err := decodeField(raw, "enabled", &out.Enabled); err != nil {
		return err
	}
	if err := decodeField(raw, "rules", &out.Rules); err != nil {
		return err
	}
	if v, ok := raw["percentage"]; ok {
		out.Percentage.Set = true
		if err := json.Unmarshal(v, &out.Percentage.Value); err != nil {
			return fmt.Errorf("patch: percentage: %w", err)
		}
	}

	*p = out
	return nil
}

func decodeField[T any](raw map[string]json.RawMessage, key string, f *Field[T]) error {
	v, ok := raw[key]
	if !ok || isNull(v) {
		return nil
	}
	if err := json.Unmarshal(v, &f.Value); err != nil {
		return fmt.Errorf("patch: %s: %w", key, err)
	}
	f.Set = true
	return nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
