package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/studiowebux/halcrud/internal/oauth"
	"github.com/studiowebux/halcrud/internal/types"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755

	// LocalConfigFile is looked up in the working directory before the global file
	LocalConfigFile = "halcrud.yaml"
)

var (
	// ConfigDir is the global configuration directory (~/.halcrud)
	ConfigDir string

	// DatabasePath is the SQLite database file for operation history
	DatabasePath string

	// ResourcesFile is the global resource configuration file
	ResourcesFile string
)

// File is the content of a resource configuration file
type File struct {
	API       types.APIConfig        `json:"api" yaml:"api"`
	Resources []types.ResourceConfig `json:"resources" yaml:"resources"`
}

// Initialize sets up the configuration directory and paths.
// It creates ~/.halcrud/ if it doesn't exist.
func Initialize() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	return InitializeAt(filepath.Join(homeDir, ".halcrud"))
}

// InitializeAt is Initialize with an explicit configuration directory
func InitializeAt(dir string) error {
	ConfigDir = dir
	DatabasePath = filepath.Join(ConfigDir, "halcrud.db")
	ResourcesFile = filepath.Join(ConfigDir, "resources.yaml")

	if err := os.MkdirAll(ConfigDir, DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", ConfigDir, err)
	}
	return nil
}

// GetConfigFilePath returns the local halcrud.yaml when present, otherwise the global file
func GetConfigFilePath() string {
	if _, err := os.Stat(LocalConfigFile); err == nil {
		return LocalConfigFile
	}
	return ResourcesFile
}

// LoadFile reads a configuration file. YAML (.yaml, .yml) and JSON with
// comments (.json, .jsonc) are supported.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file File
	if err := Unmarshal(path, data, &file); err != nil {
		return nil, err
	}

	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &file, nil
}

// Unmarshal decodes data into v using the format implied by the extension of path
func Unmarshal(path string, data []byte, v interface{}) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), v); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, .json or .jsonc)", ext)
	}
	return nil
}

// Validate checks the API settings and every resource
func (f *File) Validate() error {
	if len(f.Resources) == 0 {
		return fmt.Errorf("%w: no resources defined", types.ErrInvalidConfig)
	}

	if f.API.OAuth != nil {
		if err := oauth.Validate(f.API.OAuth); err != nil {
			return err
		}
	}

	names := make(map[string]bool, len(f.Resources))
	for i := range f.Resources {
		rc := &f.Resources[i]
		if rc.Name == "" {
			return fmt.Errorf("%w: resource %d: name is required", types.ErrInvalidConfig, i)
		}
		if names[rc.Name] {
			return fmt.Errorf("%w: duplicate resource %q", types.ErrInvalidConfig, rc.Name)
		}
		names[rc.Name] = true

		if err := rc.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Resource returns the named resource. An empty name selects the only
// resource when exactly one is configured.
func (f *File) Resource(name string) (*types.ResourceConfig, error) {
	if name == "" {
		if len(f.Resources) == 1 {
			return &f.Resources[0], nil
		}
		return nil, fmt.Errorf("several resources configured, choose one with --resource (%s)", strings.Join(f.ResourceNames(), ", "))
	}

	for i := range f.Resources {
		if f.Resources[i].Name == name {
			return &f.Resources[i], nil
		}
	}
	return nil, fmt.Errorf("unknown resource %q (available: %s)", name, strings.Join(f.ResourceNames(), ", "))
}

// ResourceNames lists the configured resource names in file order
func (f *File) ResourceNames() []string {
	names := make([]string, 0, len(f.Resources))
	for _, rc := range f.Resources {
		names = append(names, rc.Name)
	}
	return names
}

// SaveFile writes a configuration file in the format implied by its extension
func SaveFile(file *File, path string) error {
	var data []byte
	var err error

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(file)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
	case ".json", ".jsonc":
		data, err = json.MarshalIndent(file, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, .json or .jsonc)", ext)
	}

	if err := os.MkdirAll(filepath.Dir(path), DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, FilePermissions); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Example returns the starter configuration written by `halcrud init`
func Example() *File {
	return &File{
		API: types.APIConfig{
			BaseURL: "http://localhost:8080",
			Headers: map[string]string{},
		},
		Resources: []types.ResourceConfig{
			{
				Name:          "widgets",
				Title:         "Widgets",
				ItemLabel:     "widget",
				CollectionURL: "/widgets",
				SearchURL:     "/widgets/search",
				EmbeddedKey:   "widgets",
				Fields: []types.Field{
					{Key: "name", Label: "Name", Placeholder: "Sprocket"},
					{Key: "color", Label: "Color"},
					{Key: "description", Label: "Description"},
				},
				RequiredKeys: []string{"name"},
				Columns: []types.Column{
					{Key: "id", Label: "ID"},
					{Key: "name", Label: "Name"},
					{Key: "color", Label: "Color"},
				},
			},
		},
	}
}
