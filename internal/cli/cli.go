// Package cli implements the halcrud commands on top of the crud client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/studiowebux/halcrud/internal/config"
	"github.com/studiowebux/halcrud/internal/crud"
	"github.com/studiowebux/halcrud/internal/executor"
	"github.com/studiowebux/halcrud/internal/hal"
	"github.com/studiowebux/halcrud/internal/history"
	"github.com/studiowebux/halcrud/internal/logging"
	"github.com/studiowebux/halcrud/internal/types"
)

// Options contains the flags shared by the resource commands
type Options struct {
	ConfigPath   string
	Resource     string
	OutputFormat string // json, yaml, text
	Filter       string // JMESPath filter expression
	Query        string // JMESPath query or $(bash command)
	LogLevel     string
	LogFormat    string
	Yes          bool // answer yes to confirmations
	NoHistory    bool
	// Interactive enables forms and pickers; main sets it when stdin is a terminal
	Interactive bool

	Stdout io.Writer
	Stderr io.Writer
}

func (o *Options) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// Session is one resource bound to its API for the length of a command
type Session struct {
	opts      Options
	file      *config.File
	resource  types.ResourceConfig
	transport *executor.Client
	client    *crud.Client
	history   *history.Manager
	logger    *slog.Logger
}

// Open loads the configuration and builds the client for opts.Resource
func Open(ctx context.Context, opts Options) (*Session, error) {
	opts.defaults()

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(opts.LogLevel),
		Format: logging.ParseFormat(opts.LogFormat),
		Output: opts.Stderr,
	})

	path := opts.ConfigPath
	if path == "" {
		path = config.GetConfigFilePath()
	}
	file, err := config.LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no configuration at %s (create one with 'halcrud init')", path)
		}
		return nil, err
	}

	rc, err := file.Resource(opts.Resource)
	if err != nil {
		return nil, err
	}

	transport, err := executor.New(ctx, executor.Options{API: file.API, Logger: logger})
	if err != nil {
		return nil, err
	}

	s := &Session{
		opts:      opts,
		file:      file,
		resource:  *rc,
		transport: transport,
		logger:    logger,
	}

	clientOpts := []crud.Option{
		crud.WithPrompter(NewPrompter(opts.Stderr, opts.Yes, opts.Interactive)),
		crud.WithLogger(logger),
	}
	if !opts.NoHistory && config.DatabasePath != "" {
		mgr, err := history.NewManager(config.DatabasePath)
		if err != nil {
			// History is optional
			logger.Warn("history disabled", "error", err)
		} else {
			s.history = mgr
			clientOpts = append(clientOpts, crud.WithRecorder(mgr))
		}
	}

	client, err := crud.New(*rc, transport, clientOpts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.client = client

	logger.Debug("session opened", "config", path, "resource", rc.Name, "base_url", file.API.BaseURL)
	return s, nil
}

// Client returns the crud client
func (s *Session) Client() *crud.Client {
	return s.client
}

// Close releases the history database
func (s *Session) Close() error {
	if s.history != nil {
		return s.history.Close()
	}
	return nil
}

// List prints the collection
func (s *Session) List(ctx context.Context) error {
	if err := s.client.Load(ctx, ""); err != nil {
		return err
	}
	return s.printItems(ctx, s.client.Items())
}

// Search prints the server-side search results for query
func (s *Session) Search(ctx context.Context, query string) error {
	s.client.SetSearchQuery(query)
	if err := s.client.Search(ctx); err != nil {
		return err
	}
	return s.printItems(ctx, s.client.Items())
}

// Get prints the current representation of one entity
func (s *Session) Get(ctx context.Context, ref string, copyOutput bool) error {
	entity, err := s.pick(ctx, ref)
	if err != nil {
		return err
	}

	fresh, err := s.transport.FetchFresh(ctx, entity.SelfHref())
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", entity.SelfHref(), err)
	}
	if fresh == nil {
		return fmt.Errorf("%s %s no longer exists", s.resource.Label(), ref)
	}

	out, err := s.render(ctx, fresh.Entity, func() string { return s.entityText(fresh.Entity, fresh.ETag) })
	if err != nil {
		return err
	}
	fmt.Fprint(s.opts.Stdout, out)

	if copyOutput {
		if err := copyToClipboard(out); err != nil {
			return err
		}
		fmt.Fprintln(s.opts.Stderr, "Copied to clipboard")
	}
	return nil
}

// Create fills the create form from sets (key=value) or, without any, from an
// interactive form, then submits it
func (s *Session) Create(ctx context.Context, sets []string) error {
	values, err := parseSets(sets)
	if err != nil {
		return err
	}

	if len(values) == 0 && s.opts.Interactive {
		values, err = runFieldForm(ctx, "New "+s.resource.Label(), s.resource, s.client.Snapshot().Form)
		if err != nil {
			return err
		}
	}

	for key, value := range values {
		if err := s.client.SetField(key, value); err != nil {
			return err
		}
	}

	if !s.client.CanCreate() {
		return fmt.Errorf("missing required fields: %s", strings.Join(s.resource.Required(), ", "))
	}

	if err := s.client.Create(ctx); err != nil {
		return err
	}
	s.notice(s.client.Status())
	return s.printItems(ctx, s.client.Items())
}

// Edit opens ref for editing, applies sets (or an interactive form) and saves
func (s *Session) Edit(ctx context.Context, ref string, sets []string) error {
	values, err := parseSets(sets)
	if err != nil {
		return err
	}

	entity, err := s.pick(ctx, ref)
	if err != nil {
		return err
	}

	outcome, err := s.client.OpenEdit(ctx, entity)
	if err != nil {
		return err
	}
	if outcome != crud.OutcomeApplied {
		return s.report("edit", outcome)
	}
	defer s.client.CloseEdit()

	if len(values) == 0 {
		if !s.opts.Interactive {
			return fmt.Errorf("nothing to change: pass --set key=value")
		}
		values, err = runFieldForm(ctx, "Edit "+s.resource.Label()+" "+entity.ID(), s.resource, s.client.Edit().Form)
		if err != nil {
			return err
		}
	}

	for key, value := range values {
		if err := s.client.SetEditField(key, value); err != nil {
			return err
		}
	}

	if !s.client.CanSaveEdit() {
		return fmt.Errorf("missing required fields: %s", strings.Join(s.resource.Required(), ", "))
	}

	outcome, err = s.client.SaveEdit(ctx)
	if err != nil {
		return err
	}
	return s.report("update", outcome)
}

// Delete removes ref after confirmation
func (s *Session) Delete(ctx context.Context, ref string) error {
	entity, err := s.pick(ctx, ref)
	if err != nil {
		return err
	}

	outcome, err := s.client.Remove(ctx, entity)
	if err != nil {
		return err
	}
	return s.report("delete", outcome)
}

// report turns a recovered outcome into the command result. Gone and
// conflict were already announced by the prompter.
func (s *Session) report(action string, outcome crud.Outcome) error {
	switch outcome {
	case crud.OutcomeApplied:
		s.notice(fmt.Sprintf("%s %s OK", action, s.resource.Label()))
		return nil
	case crud.OutcomeSkipped:
		s.notice(fmt.Sprintf("%s %s skipped", action, s.resource.Label()))
		return nil
	default:
		return fmt.Errorf("%s %s not applied: %s", action, s.resource.Label(), outcome)
	}
}

// pick resolves ref against the collection: an exact id first, then the
// single best fuzzy match on the first field. An empty ref opens the picker.
func (s *Session) pick(ctx context.Context, ref string) (hal.Entity, error) {
	if err := s.client.Load(ctx, ""); err != nil {
		return nil, err
	}
	items := s.client.Items()

	if ref == "" {
		if !s.opts.Interactive {
			return nil, fmt.Errorf("%s id is required", s.resource.Label())
		}
		return selectEntity(s.resource, items)
	}

	for _, item := range items {
		if item.ID() == ref {
			return item, nil
		}
	}

	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = displayName(s.resource, item)
	}
	matches := fuzzy.Find(ref, labels)
	switch {
	case len(matches) == 0:
		return nil, fmt.Errorf("no %s matches %q", s.resource.Label(), ref)
	case len(matches) > 1 && matches[0].Score == matches[1].Score:
		candidates := make([]string, 0, len(matches))
		for _, m := range matches {
			candidates = append(candidates, fmt.Sprintf("%s (%s)", m.Str, items[m.Index].ID()))
		}
		return nil, fmt.Errorf("%q is ambiguous: %s", ref, strings.Join(candidates, ", "))
	}

	s.logger.Debug("resolved by name", "ref", ref, "match", matches[0].Str)
	return items[matches[0].Index], nil
}

// displayName is the value of the first configured field
func displayName(rc types.ResourceConfig, e hal.Entity) string {
	if len(rc.Fields) == 0 {
		return e.ID()
	}
	return e.Attr(rc.Fields[0].Key)
}

// parseSets parses key=value pairs from --set flags
func parseSets(sets []string) (map[string]string, error) {
	values := make(map[string]string, len(sets))
	for _, kv := range sets {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", kv)
		}
		values[parts[0]] = parts[1]
	}
	return values, nil
}

func (s *Session) notice(msg string) {
	fmt.Fprintln(s.opts.Stderr, noticeStyle.Render(msg))
}
