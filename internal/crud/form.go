package crud

import (
	"errors"
	"fmt"
	"strings"

	"github.com/studiowebux/halcrud/internal/types"
)

// ErrUnknownField is returned when a form is given a key the resource does not configure
var ErrUnknownField = errors.New("unknown field")

// Form is a field-key to text buffer holding exactly the configured keys
type Form struct {
	keys   []string
	values map[string]string
}

// NewForm returns an empty form for fields
func NewForm(fields []types.Field) *Form {
	f := &Form{
		keys:   make([]string, 0, len(fields)),
		values: make(map[string]string, len(fields)),
	}
	for _, field := range fields {
		f.keys = append(f.keys, field.Key)
		f.values[field.Key] = ""
	}
	return f
}

// Keys returns the field keys in configuration order
func (f *Form) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Get returns the text for key, "" for unknown keys
func (f *Form) Get(key string) string {
	return f.values[key]
}

// Set stores value under key
func (f *Form) Set(key, value string) error {
	if _, ok := f.values[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	f.values[key] = value
	return nil
}

// Values returns a copy of the buffer
func (f *Form) Values() map[string]string {
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Complete reports whether every key in required holds non-blank text
func (f *Form) Complete(required []string) bool {
	for _, k := range required {
		if strings.TrimSpace(f.values[k]) == "" {
			return false
		}
	}
	return true
}

// Reset blanks every value
func (f *Form) Reset() {
	for k := range f.values {
		f.values[k] = ""
	}
}

func (f *Form) clone() *Form {
	return &Form{keys: f.Keys(), values: f.Values()}
}

// BuildPayload turns form text into a request body. Every configured field is
// present: trimmed text, or null when blank, so optional fields are cleared
// rather than left out.
func BuildPayload(fields []types.Field, values map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		v := strings.TrimSpace(values[field.Key])
		if v == "" {
			out[field.Key] = nil
		} else {
			out[field.Key] = v
		}
	}
	return out
}
