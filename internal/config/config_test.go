package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiowebux/halcrud/internal/types"
)

const yamlConfig = `
api:
  baseUrl: http://localhost:8080
  timeout: 10s
  headers:
    X-Tenant: acme
resources:
  - name: widgets
    itemLabel: widget
    collectionUrl: /widgets
    searchUrl: /widgets/search
    embeddedKey: widgets
    fields:
      - key: name
        label: Name
      - key: color
    messages:
      saveConflict: "저장 실패: 다른 곳에서 먼저 수정되었습니다."
`

const jsoncConfig = `{
  // API the resources live on
  "api": {"baseUrl": "http://localhost:8080", "timeout": 5},
  "resources": [
    {
      "name": "users",
      "collectionUrl": "/users",
      "searchUrl": "/users/search/byName",
      "embeddedKey": "users",
      "fields": [{"key": "name"}, {"key": "email"}], /* trailing comma below */
      "requiredKeys": ["name", "email"],
    },
  ],
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), FilePermissions))
	return path
}

func TestLoadFileYAML(t *testing.T) {
	file, err := LoadFile(writeFile(t, "resources.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", file.API.BaseURL)
	assert.Equal(t, 10*time.Second, file.API.Timeout.Std())
	assert.Equal(t, "acme", file.API.Headers["X-Tenant"])

	rc, err := file.Resource("")
	require.NoError(t, err)
	assert.Equal(t, "widget", rc.Label())
	assert.Equal(t, []string{"name"}, rc.Required())
	assert.Equal(t, "저장 실패: 다른 곳에서 먼저 수정되었습니다.", rc.Messages.WithDefaults().SaveConflict)
}

func TestLoadFileJSONC(t *testing.T) {
	file, err := LoadFile(writeFile(t, "resources.jsonc", jsoncConfig))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, file.API.Timeout.Std())
	rc, err := file.Resource("users")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "email"}, rc.RequiredKeys)
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unsupported extension", "resources.toml", "x = 1"},
		{"bad yaml", "resources.yaml", "resources: [\n"},
		{"no resources", "resources.yaml", "api:\n  baseUrl: http://x\n"},
		{"duplicate names", "resources.yaml", `
resources:
  - {name: a, collectionUrl: /a, embeddedKey: a, fields: [{key: name}]}
  - {name: a, collectionUrl: /b, embeddedKey: b, fields: [{key: name}]}
`},
		{"invalid resource", "resources.yaml", `
resources:
  - {name: a, embeddedKey: a, fields: [{key: name}]}
`},
		{"oauth without client", "resources.yaml", `
api: {oauth: {tokenUrl: http://x/token}}
resources:
  - {name: a, collectionUrl: /a, embeddedKey: a, fields: [{key: name}]}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestResourceSelection(t *testing.T) {
	file := &File{Resources: []types.ResourceConfig{{Name: "a"}, {Name: "b"}}}

	_, err := file.Resource("")
	assert.ErrorContains(t, err, "a, b")

	_, err = file.Resource("c")
	assert.ErrorContains(t, err, "unknown resource")

	rc, err := file.Resource("b")
	require.NoError(t, err)
	assert.Equal(t, "b", rc.Name)
}

func TestSaveFileRoundTrip(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, SaveFile(Example(), path))

			loaded, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, Example().Resources, loaded.Resources)
			assert.Equal(t, Example().API.BaseURL, loaded.API.BaseURL)
		})
	}

	assert.Error(t, SaveFile(Example(), filepath.Join(t.TempDir(), "out.ini")))
}

func TestInitializeAt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")
	require.NoError(t, InitializeAt(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(dir, "halcrud.db"), DatabasePath)
	assert.Equal(t, filepath.Join(dir, "resources.yaml"), ResourcesFile)
}
