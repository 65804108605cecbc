package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiowebux/halcrud/internal/config"
	"github.com/studiowebux/halcrud/internal/crud"
	"github.com/studiowebux/halcrud/internal/mock"
	"github.com/studiowebux/halcrud/internal/types"
)

type fixture struct {
	server *mock.Server
	config string
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	server := mock.NewServer(&mock.Config{
		Logging: true,
		Collections: []mock.Collection{{
			Name:         "widgets",
			SearchFields: []string{"name"},
			Items: []map[string]interface{}{
				{"name": "Sprocket", "color": "red"},
				{"name": "Gear", "color": "blue"},
			},
		}},
	}, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	file := config.Example()
	file.API.BaseURL = ts.URL
	path := filepath.Join(t.TempDir(), "halcrud.yaml")
	require.NoError(t, config.SaveFile(file, path))

	return &fixture{server: server, config: path, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
}

func (f *fixture) open(t *testing.T, mutate func(*Options)) *Session {
	t.Helper()
	f.stdout.Reset()
	f.stderr.Reset()

	opts := Options{
		ConfigPath:   f.config,
		OutputFormat: "json",
		Yes:          true,
		NoHistory:    true,
		Stdout:       f.stdout,
		Stderr:       f.stderr,
	}
	if mutate != nil {
		mutate(&opts)
	}

	s, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func (f *fixture) names(t *testing.T) []string {
	t.Helper()
	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal(f.stdout.Bytes(), &items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		name, _ := it["name"].(string)
		out = append(out, name)
	}
	return out
}

func TestListAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.open(t, nil)
	require.NoError(t, s.List(ctx))
	assert.Equal(t, []string{"Sprocket", "Gear"}, f.names(t))

	s = f.open(t, nil)
	require.NoError(t, s.Search(ctx, "spro"))
	assert.Equal(t, []string{"Sprocket"}, f.names(t))
}

func TestOutputFormats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.open(t, func(o *Options) { o.OutputFormat = "yaml" })
	require.NoError(t, s.List(ctx))
	assert.Contains(t, f.stdout.String(), "name: Sprocket")

	s = f.open(t, func(o *Options) { o.OutputFormat = "text" })
	require.NoError(t, s.List(ctx))
	out := f.stdout.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Color")
	assert.Contains(t, out, "Sprocket")
	assert.Contains(t, out, "2 Widgets")

	s = f.open(t, func(o *Options) { o.OutputFormat = "xml" })
	assert.Error(t, s.List(ctx))
}

func TestQueryAndFilter(t *testing.T) {
	f := newFixture(t)

	s := f.open(t, func(o *Options) {
		o.Filter = "[?color=='blue']"
		o.Query = "[].name"
	})
	require.NoError(t, s.List(context.Background()))

	var names []string
	require.NoError(t, json.Unmarshal(f.stdout.Bytes(), &names))
	assert.Equal(t, []string{"Gear"}, names)

	s = f.open(t, func(o *Options) {
		o.OutputFormat = "text"
		o.Query = "length(@)"
	})
	require.NoError(t, s.List(context.Background()))
	assert.Equal(t, "2\n", f.stdout.String())
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.open(t, nil)
	require.NoError(t, s.Get(ctx, "2", false))
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(f.stdout.Bytes(), &doc))
	assert.Equal(t, "Gear", doc["name"])

	s = f.open(t, func(o *Options) { o.OutputFormat = "text" })
	require.NoError(t, s.Get(ctx, "sprock", false))
	out := f.stdout.String()
	assert.Contains(t, out, "widget 1")
	assert.Contains(t, out, `ETag: "1"`)
	assert.Contains(t, out, "Sprocket")

	s = f.open(t, nil)
	err := s.Get(ctx, "zzz", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no widget matches")

	s = f.open(t, nil)
	assert.Error(t, s.Get(ctx, "", false), "an id is required without a terminal")
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.open(t, nil)
	require.NoError(t, s.Create(ctx, []string{"name=Cog", "color= green "}))
	assert.Equal(t, []string{"Sprocket", "Gear", "Cog"}, f.names(t))
	assert.Contains(t, f.stderr.String(), "loaded 3")

	attrs, _, ok := f.server.Item("widgets", "3")
	require.True(t, ok)
	assert.Equal(t, "green", attrs["color"])
	assert.Nil(t, attrs["description"])

	s = f.open(t, nil)
	err := s.Create(ctx, []string{"color=red"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required fields: name")

	s = f.open(t, nil)
	assert.ErrorIs(t, s.Create(ctx, []string{"weight=3"}), crud.ErrUnknownField)

	s = f.open(t, nil)
	assert.Error(t, s.Create(ctx, []string{"no-equals"}))
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.open(t, nil)
	require.NoError(t, s.Edit(ctx, "1", []string{"color=purple"}))
	assert.Contains(t, f.stderr.String(), "update widget OK")

	attrs, tag, _ := f.server.Item("widgets", "1")
	assert.Equal(t, "purple", attrs["color"])
	assert.Equal(t, "Sprocket", attrs["name"])
	assert.Equal(t, `"2"`, tag)
	assert.False(t, s.Client().Edit().Open)

	s = f.open(t, nil)
	err := s.Edit(ctx, "1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to change")

	s = f.open(t, nil)
	err = s.Edit(ctx, "1", []string{"name= "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required fields")
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.open(t, func(o *Options) { o.Yes = false })
	err := s.Delete(ctx, "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	_, _, ok := f.server.Item("widgets", "1")
	assert.True(t, ok)

	s = f.open(t, nil)
	require.NoError(t, s.Delete(ctx, "1"))
	assert.Contains(t, f.stderr.String(), "delete widget OK")
	_, _, ok = f.server.Item("widgets", "1")
	assert.False(t, ok)
}

func TestHistoryIsRecorded(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, config.InitializeAt(t.TempDir()))
	ctx := context.Background()

	s := f.open(t, func(o *Options) { o.NoHistory = false })
	require.NoError(t, s.List(ctx))
	require.NoError(t, s.Close())

	var out bytes.Buffer
	require.NoError(t, History(ctx, HistoryOptions{Resource: "widgets", OutputFormat: "json", Stdout: &out}))

	var entries []types.HistoryEntry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "load widgets", entries[0].Label)
	assert.Equal(t, 200, entries[0].Status)

	out.Reset()
	require.NoError(t, History(ctx, HistoryOptions{OutputFormat: "text", Stdout: &out}))
	assert.Contains(t, out.String(), "load widgets")
	assert.Contains(t, out.String(), "OUTCOME")

	out.Reset()
	require.NoError(t, History(ctx, HistoryOptions{Stats: true, OutputFormat: "json", Query: "[0].[label, total, ok]", Stdout: &out}))
	assert.JSONEq(t, `["load widgets", 1, 1]`, out.String())

	out.Reset()
	require.NoError(t, History(ctx, HistoryOptions{Clear: true, Stdout: &out}))
	out.Reset()
	require.NoError(t, History(ctx, HistoryOptions{OutputFormat: "json", Stdout: &out}))
	assert.Equal(t, "[]\n", out.String())
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(context.Background(), Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
		Stdout:     &bytes.Buffer{},
		Stderr:     &bytes.Buffer{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "halcrud init")

	f := newFixture(t)
	_, err = Open(context.Background(), Options{ConfigPath: f.config, Resource: "gadgets", Stderr: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resource")
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "halcrud.yaml")
	var out bytes.Buffer

	require.NoError(t, Init(path, false, &out))
	assert.Contains(t, out.String(), "Wrote "+path)

	file, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets"}, file.ResourceNames())

	err = Init(path, false, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, os.WriteFile(path, []byte("junk"), 0o644))
	require.NoError(t, Init(path, true, &out))
	_, err = config.LoadFile(path)
	assert.NoError(t, err)
}

func TestParseSets(t *testing.T) {
	got, err := parseSets([]string{"name=A", "note=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "A", "note": "a=b", "empty": ""}, got)

	for _, bad := range []string{"name", "=x"} {
		_, err := parseSets([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestPrompter(t *testing.T) {
	var out bytes.Buffer
	ctx := context.Background()

	ok, err := NewPrompter(&out, true, false).Confirm(ctx, "Delete widget")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewPrompter(&out, false, false).Confirm(ctx, "Delete widget")
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.False(t, ok)

	NewPrompter(&out, false, false).Alert(ctx, "modified elsewhere")
	assert.True(t, strings.Contains(out.String(), "modified elsewhere"))
}

func TestStatusOutcome(t *testing.T) {
	assert.Equal(t, "ok", statusOutcome(204))
	assert.Equal(t, "gone", statusOutcome(404))
	assert.Equal(t, "conflict", statusOutcome(412))
	assert.Equal(t, "conflict", statusOutcome(409))
	assert.Equal(t, "failed", statusOutcome(500))
}
