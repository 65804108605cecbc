package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is wrapped by every configuration validation failure
var ErrInvalidConfig = errors.New("invalid config")

// DefaultRequiredKeys is used when a resource does not declare requiredKeys
var DefaultRequiredKeys = []string{"name"}

// Field describes one editable attribute of a resource
type Field struct {
	Key         string `json:"key" yaml:"key"`
	Label       string `json:"label,omitempty" yaml:"label,omitempty"`
	Placeholder string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

// DisplayLabel returns the label, falling back to the key
func (f Field) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Key
}

// Column describes one column of the listing table
type Column struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Messages holds the user-facing strings used for recovery alerts and confirmations.
// Empty values fall back to DefaultMessages.
type Messages struct {
	ConfirmDelete  string `json:"confirmDelete,omitempty" yaml:"confirmDelete,omitempty"`
	EditGone       string `json:"editGone,omitempty" yaml:"editGone,omitempty"`
	SaveGone       string `json:"saveGone,omitempty" yaml:"saveGone,omitempty"`
	SaveConflict   string `json:"saveConflict,omitempty" yaml:"saveConflict,omitempty"`
	DeleteGone     string `json:"deleteGone,omitempty" yaml:"deleteGone,omitempty"`
	DeleteConflict string `json:"deleteConflict,omitempty" yaml:"deleteConflict,omitempty"`
}

// DefaultMessages returns the built-in English strings.
// ConfirmDelete is a format string taking the item label.
func DefaultMessages() Messages {
	return Messages{
		ConfirmDelete:  "Delete %s",
		EditGone:       "This item has already been deleted and cannot be edited. Refreshing the list.",
		SaveGone:       "Save failed: this item has already been deleted. Refreshing the list.",
		SaveConflict:   "Save failed: this item was modified elsewhere first. Refreshing the list.",
		DeleteGone:     "Delete failed: this item has already been deleted. Refreshing the list.",
		DeleteConflict: "Delete failed: this item was changed elsewhere first. Refreshing the list.",
	}
}

// WithDefaults fills every empty message from DefaultMessages
func (m Messages) WithDefaults() Messages {
	d := DefaultMessages()
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return Messages{
		ConfirmDelete:  pick(m.ConfirmDelete, d.ConfirmDelete),
		EditGone:       pick(m.EditGone, d.EditGone),
		SaveGone:       pick(m.SaveGone, d.SaveGone),
		SaveConflict:   pick(m.SaveConflict, d.SaveConflict),
		DeleteGone:     pick(m.DeleteGone, d.DeleteGone),
		DeleteConflict: pick(m.DeleteConflict, d.DeleteConflict),
	}
}

// ResourceConfig is the static description of one HAL resource type
type ResourceConfig struct {
	Name          string   `json:"name" yaml:"name"`
	Title         string   `json:"title,omitempty" yaml:"title,omitempty"`
	ItemLabel     string   `json:"itemLabel,omitempty" yaml:"itemLabel,omitempty"`
	CollectionURL string   `json:"collectionUrl" yaml:"collectionUrl"`
	SearchURL     string   `json:"searchUrl,omitempty" yaml:"searchUrl,omitempty"`
	EmbeddedKey   string   `json:"embeddedKey" yaml:"embeddedKey"`
	Fields        []Field  `json:"fields" yaml:"fields"`
	RequiredKeys  []string `json:"requiredKeys,omitempty" yaml:"requiredKeys,omitempty"`
	Columns       []Column `json:"columns,omitempty" yaml:"columns,omitempty"`
	Messages      Messages `json:"messages,omitempty" yaml:"messages,omitempty"`
}

// HasField reports whether key names a configured field
func (rc *ResourceConfig) HasField(key string) bool {
	for _, f := range rc.Fields {
		if f.Key == key {
			return true
		}
	}
	return false
}

// Required returns the required keys, applying the default when none are declared
func (rc *ResourceConfig) Required() []string {
	if len(rc.RequiredKeys) == 0 {
		return DefaultRequiredKeys
	}
	return rc.RequiredKeys
}

// TableColumns returns the configured columns, or an id column followed by every field
func (rc *ResourceConfig) TableColumns() []Column {
	if len(rc.Columns) > 0 {
		return rc.Columns
	}
	cols := []Column{{Key: "id", Label: "ID"}}
	for _, f := range rc.Fields {
		cols = append(cols, Column{Key: f.Key, Label: f.DisplayLabel()})
	}
	return cols
}

// Label returns ItemLabel, falling back to Name
func (rc *ResourceConfig) Label() string {
	if rc.ItemLabel != "" {
		return rc.ItemLabel
	}
	return rc.Name
}

// Validate checks the invariants a client relies on
func (rc *ResourceConfig) Validate() error {
	if rc.CollectionURL == "" {
		return fmt.Errorf("%w: resource %q: collectionUrl is required", ErrInvalidConfig, rc.Name)
	}
	if rc.EmbeddedKey == "" {
		return fmt.Errorf("%w: resource %q: embeddedKey is required", ErrInvalidConfig, rc.Name)
	}
	if len(rc.Fields) == 0 {
		return fmt.Errorf("%w: resource %q: at least one field is required", ErrInvalidConfig, rc.Name)
	}

	seen := make(map[string]bool, len(rc.Fields))
	for i, f := range rc.Fields {
		if f.Key == "" {
			return fmt.Errorf("%w: resource %q: field %d: key is required", ErrInvalidConfig, rc.Name, i)
		}
		if seen[f.Key] {
			return fmt.Errorf("%w: resource %q: duplicate field key %q", ErrInvalidConfig, rc.Name, f.Key)
		}
		seen[f.Key] = true
	}

	for _, k := range rc.Required() {
		if !seen[k] {
			return fmt.Errorf("%w: resource %q: required key %q is not a configured field", ErrInvalidConfig, rc.Name, k)
		}
	}

	for _, c := range rc.Columns {
		if c.Key != "id" && !seen[c.Key] {
			return fmt.Errorf("%w: resource %q: column %q is not a configured field", ErrInvalidConfig, rc.Name, c.Key)
		}
	}

	return nil
}

// TLSConfig contains TLS/mTLS settings for the API connection
type TLSConfig struct {
	CertFile           string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	KeyFile            string `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
	CAFile             string `json:"caFile,omitempty" yaml:"caFile,omitempty"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// OAuthConfig contains OAuth 2.0 client-credentials settings
type OAuthConfig struct {
	TokenURL     string   `json:"tokenUrl" yaml:"tokenUrl"`
	ClientID     string   `json:"clientId" yaml:"clientId"`
	ClientSecret string   `json:"clientSecret,omitempty" yaml:"clientSecret,omitempty"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// APIConfig describes the server every resource lives on
type APIConfig struct {
	BaseURL string            `json:"baseUrl" yaml:"baseUrl"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Timeout Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	TLS     *TLSConfig        `json:"tls,omitempty" yaml:"tls,omitempty"`
	OAuth   *OAuthConfig      `json:"oauth,omitempty" yaml:"oauth,omitempty"`
}

// Duration is a time.Duration that reads and writes as a string like "30s"
type Duration time.Duration

// HistoryEntry is one recorded client operation
type HistoryEntry struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Resource   string    `json:"resource"`
	Label      string    `json:"label"`
	Method     string    `json:"method,omitempty"`
	URL        string    `json:"url,omitempty"`
	Status     int       `json:"status,omitempty"`
	Outcome    string    `json:"outcome"`
	DurationMs int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
}
