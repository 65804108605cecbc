package mock

import "time"

// Config represents the mock server configuration
type Config struct {
	Port    int    `json:"port" yaml:"port"` // Server port (default: 8080)
	Host    string `json:"host" yaml:"host"` // Server host (default: localhost)
	Logging bool   `json:"logging" yaml:"logging"`
	// NoPatch answers PATCH with 405 so clients fall back to PUT
	NoPatch     bool         `json:"noPatch,omitempty" yaml:"noPatch,omitempty"`
	Collections []Collection `json:"collections" yaml:"collections"`
}

// Collection seeds one HAL collection served at /<name>
type Collection struct {
	Name string `json:"name" yaml:"name"`
	// EmbeddedKey is the array name inside _embedded (default: Name)
	EmbeddedKey string `json:"embeddedKey,omitempty" yaml:"embeddedKey,omitempty"`
	// SearchFields are matched by /<name>/search?q= (default: every string attribute)
	SearchFields []string                 `json:"searchFields,omitempty" yaml:"searchFields,omitempty"`
	Items        []map[string]interface{} `json:"items,omitempty" yaml:"items,omitempty"`
}

// RequestLog represents a logged request
type RequestLog struct {
	// Seq numbers requests from 1 in arrival order
	Seq       uint64            `json:"seq"`
	Timestamp time.Time         `json:"timestamp"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body"`
	Status    int               `json:"status"`
	Duration  time.Duration     `json:"duration"`
}
