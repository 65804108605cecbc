package crud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/studiowebux/halcrud/internal/executor"
	"github.com/studiowebux/halcrud/internal/hal"
	"github.com/studiowebux/halcrud/internal/logging"
	"github.com/studiowebux/halcrud/internal/types"
)

// Transport is the HTTP side of the client; *executor.Client implements it
type Transport interface {
	Get(ctx context.Context, address string) (*executor.Response, error)
	FetchFresh(ctx context.Context, address string) (*executor.Fresh, error)
	Post(ctx context.Context, address string, body interface{}) (*executor.Response, error)
	WriteWithFallback(ctx context.Context, address string, body interface{}, headers map[string]string) (*executor.Response, error)
	Delete(ctx context.Context, address string, headers map[string]string) (*executor.Response, error)
}

// EditSession is a copy of the edit state
type EditSession struct {
	Open bool
	URL  string
	// ETag is the tag captured when the session opened. Writes re-fetch the current one.
	ETag string
	Form map[string]string
}

// State is a consistent copy of everything a UI binds to
type State struct {
	Loading     bool
	Status      string
	Debug       string
	Items       []hal.Entity
	SearchQuery string
	Form        map[string]string
	Edit        EditSession
	CanCreate   bool
	CanSaveEdit bool
}

type editSession struct {
	open bool
	url  string
	etag string
	form *Form
}

// Client binds one resource type to a HAL API.
//
// Operations block until the server answers. The client does not serialize
// concurrent operations; state reads are safe from any goroutine.
type Client struct {
	cfg       types.ResourceConfig
	messages  types.Messages
	transport Transport
	prompter  Prompter
	recorder  Recorder
	logger    *slog.Logger

	mu      sync.RWMutex
	loading bool
	status  string
	debug   string
	items   []hal.Entity
	searchQ string
	form    *Form
	edit    editSession
	notify  chan struct{}
}

// Option configures a Client
type Option func(*Client)

// WithPrompter sets the confirmation and alert collaborator.
// Without one every delete confirmation is declined.
func WithPrompter(p Prompter) Option {
	return func(c *Client) { c.prompter = p }
}

// WithRecorder records every traced operation
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for cfg. The configuration is validated and copied.
func New(cfg types.ResourceConfig, transport Transport, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	c := &Client{
		cfg:       cfg,
		messages:  cfg.Messages.WithDefaults(),
		transport: transport,
		prompter:  declinePrompter{},
		logger:    logging.Nop(),
		status:    "idle",
		items:     []hal.Entity{},
		form:      NewForm(cfg.Fields),
		edit:      editSession{form: NewForm(cfg.Fields)},
		notify:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("resource", cfg.Name)
	return c, nil
}

// Config returns the resource configuration
func (c *Client) Config() types.ResourceConfig {
	return c.cfg
}

// Changes delivers a signal after state changes. Signals coalesce: a receiver
// that falls behind sees one pending signal, not one per change.
func (c *Client) Changes() <-chan struct{} {
	return c.notify
}

func (c *Client) changed() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the current state
func (c *Client) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]hal.Entity, len(c.items))
	copy(items, c.items)

	return State{
		Loading:     c.loading,
		Status:      c.status,
		Debug:       c.debug,
		Items:       items,
		SearchQuery: c.searchQ,
		Form:        c.form.Values(),
		Edit: EditSession{
			Open: c.edit.open,
			URL:  c.edit.url,
			ETag: c.edit.etag,
			Form: c.edit.form.Values(),
		},
		CanCreate:   c.form.Complete(c.cfg.Required()),
		CanSaveEdit: c.canSaveEditLocked(),
	}
}

// Loading reports whether a traced operation is in flight
func (c *Client) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Status returns the last status line
func (c *Client) Status() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Debug returns the last response or error summary as indented JSON
func (c *Client) Debug() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.debug
}

// Items returns the entities of the last successful load
func (c *Client) Items() []hal.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]hal.Entity, len(c.items))
	copy(out, c.items)
	return out
}

// SearchQuery returns the search buffer
func (c *Client) SearchQuery() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.searchQ
}

// SetSearchQuery replaces the search buffer
func (c *Client) SetSearchQuery(q string) {
	c.mu.Lock()
	c.searchQ = q
	c.mu.Unlock()
	c.changed()
}

// Field returns a create-form value
func (c *Client) Field(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.form.Get(key)
}

// SetField sets a create-form value
func (c *Client) SetField(key, value string) error {
	c.mu.Lock()
	err := c.form.Set(key, value)
	c.mu.Unlock()
	if err == nil {
		c.changed()
	}
	return err
}

// EditField returns an edit-form value
func (c *Client) EditField(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.edit.form.Get(key)
}

// SetEditField sets an edit-form value
func (c *Client) SetEditField(key, value string) error {
	c.mu.Lock()
	err := c.edit.form.Set(key, value)
	c.mu.Unlock()
	if err == nil {
		c.changed()
	}
	return err
}

// Edit returns a copy of the edit session
func (c *Client) Edit() EditSession {
	return c.Snapshot().Edit
}

// CanCreate reports whether every required create-form field is filled
func (c *Client) CanCreate() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.form.Complete(c.cfg.Required())
}

// CanSaveEdit reports whether an edit session is open with every required field filled
func (c *Client) CanSaveEdit() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.canSaveEditLocked()
}

func (c *Client) canSaveEditLocked() bool {
	return c.edit.open && c.edit.form.Complete(c.cfg.Required())
}

// IDFromSelf returns the display id of an entity
func (c *Client) IDFromSelf(e hal.Entity) string {
	return e.ID()
}

// SearchAddress is the address Search loads for the current query
func (c *Client) SearchAddress() string {
	q := strings.TrimSpace(c.SearchQuery())
	if q == "" {
		return c.cfg.CollectionURL
	}
	base := c.cfg.SearchURL
	if base == "" {
		base = c.cfg.CollectionURL
	}
	return base + "?q=" + encodeQueryComponent(q)
}

// uriComponentUnreserved restores what encodeURIComponent leaves as is but
// url.QueryEscape escapes
var uriComponentUnreserved = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeQueryComponent escapes like encodeURIComponent: spaces become %20, not +
func encodeQueryComponent(s string) string {
	return uriComponentUnreserved.Replace(url.QueryEscape(s))
}

// Load replaces the item list with the collection at address.
// An empty address loads the configured collection.
func (c *Client) Load(ctx context.Context, address string) error {
	if address == "" {
		address = c.cfg.CollectionURL
	}

	res, err := c.request(ctx, "load "+c.cfg.EmbeddedKey, http.MethodGet, address, func() (traced, error) {
		resp, err := c.transport.Get(ctx, address)
		return traced{resp: resp}, err
	})
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", c.cfg.Name, err)
	}

	items, err := hal.Embedded(res.resp.Data, c.cfg.EmbeddedKey)
	if err != nil {
		c.setStatus("load FAILED", errInfo(err))
		return fmt.Errorf("failed to load %s: %w", c.cfg.Name, err)
	}

	c.mu.Lock()
	c.items = items
	c.status = fmt.Sprintf("loaded %d", len(items))
	c.mu.Unlock()
	c.changed()

	c.logger.Debug("loaded items", "url", address, "count", len(items))
	return nil
}

// Search loads the search results for the current query, or the whole
// collection when the query is blank. Filtering is always done by the server.
func (c *Client) Search(ctx context.Context) error {
	return c.Load(ctx, c.SearchAddress())
}

// Create posts the create form when it is complete, then clears the form and reloads.
// An incomplete form is a no-op.
func (c *Client) Create(ctx context.Context) error {
	c.mu.RLock()
	ready := c.form.Complete(c.cfg.Required())
	payload := BuildPayload(c.cfg.Fields, c.form.Values())
	c.mu.RUnlock()
	if !ready {
		return nil
	}

	label := "create " + c.cfg.Label()
	_, err := c.request(ctx, label, http.MethodPost, c.cfg.CollectionURL, func() (traced, error) {
		resp, err := c.transport.Post(ctx, c.cfg.CollectionURL, payload)
		return traced{resp: resp}, err
	})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", c.cfg.Label(), err)
	}

	c.mu.Lock()
	c.form.Reset()
	c.mu.Unlock()
	c.changed()

	c.logger.Info("created item", "label", c.cfg.Label())
	return c.Load(ctx, c.cfg.CollectionURL)
}

// OpenEdit opens an edit session on the current representation of e.
//
// Without a self link the session stays closed and OutcomeSkipped is returned.
// When the entity is already gone the user is alerted, the list is refreshed and
// OutcomeGone is returned.
func (c *Client) OpenEdit(ctx context.Context, e hal.Entity) (Outcome, error) {
	href := e.SelfHref()
	if href == "" {
		c.setStatusOnly("edit canceled: invalid self link")
		return OutcomeSkipped, nil
	}

	fresh, err := c.transport.FetchFresh(ctx, href)
	if err != nil {
		c.setStatus("open edit FAILED", errInfo(err))
		return OutcomeFailed, fmt.Errorf("failed to open %s for edit: %w", href, err)
	}
	if fresh == nil {
		return OutcomeGone, c.recoverFrom(ctx, c.messages.EditGone, c.CloseEdit)
	}

	form := NewForm(c.cfg.Fields)
	for _, key := range form.Keys() {
		form.values[key] = fresh.Entity.Attr(key)
	}

	c.mu.Lock()
	c.edit = editSession{open: true, url: href, etag: fresh.ETag, form: form}
	c.mu.Unlock()
	c.changed()

	c.logger.Debug("edit opened", "url", href, "etag", fresh.ETag)
	return OutcomeApplied, nil
}

// CloseEdit discards the edit session. Calling it on a closed session is harmless.
func (c *Client) CloseEdit() {
	c.mu.Lock()
	c.edit = editSession{form: NewForm(c.cfg.Fields)}
	c.mu.Unlock()
	c.changed()
}

// closeEditIfTargets closes the edit session when it is open on href
func (c *Client) closeEditIfTargets(href string) {
	c.mu.RLock()
	match := c.edit.url == href
	c.mu.RUnlock()
	if match {
		c.CloseEdit()
	}
}

// SaveEdit writes the edit form back with optimistic concurrency control.
//
// The entity is re-fetched first; its current ETag, or the one captured when
// the session opened, is sent as If-Match. A vanished entity or a rejected
// precondition closes the session, alerts the user and refreshes the list. Any
// other failure leaves the session open and is returned.
func (c *Client) SaveEdit(ctx context.Context) (Outcome, error) {
	c.mu.RLock()
	ready := c.canSaveEditLocked()
	session := editSession{open: c.edit.open, url: c.edit.url, etag: c.edit.etag, form: c.edit.form.clone()}
	c.mu.RUnlock()
	if !ready || session.url == "" {
		return OutcomeSkipped, nil
	}

	payload := BuildPayload(c.cfg.Fields, session.form.Values())
	label := "update " + c.cfg.Label()

	outcome, err := c.conditionalWrite(ctx, label, http.MethodPatch, session.url, session.etag,
		func(headers map[string]string) (*executor.Response, error) {
			return c.transport.WriteWithFallback(ctx, session.url, payload, headers)
		})

	switch outcome {
	case OutcomeApplied:
		c.logger.Info("item saved", "url", session.url)
		c.CloseEdit()
		return outcome, c.Search(ctx)
	case OutcomeGone:
		return outcome, c.recoverFrom(ctx, c.messages.SaveGone, c.CloseEdit)
	case OutcomeConflict:
		return outcome, c.recoverFrom(ctx, c.messages.SaveConflict, c.CloseEdit)
	default:
		c.logger.Warn("save failed", "url", session.url, "error", err)
		return OutcomeFailed, fmt.Errorf("failed to save %s: %w", c.cfg.Label(), err)
	}
}

// Remove deletes e after the user confirms, with the same concurrency
// protocol as SaveEdit. An edit session open on e is closed when the entity
// is deleted or found to be gone or changed.
func (c *Client) Remove(ctx context.Context, e hal.Entity) (Outcome, error) {
	ok, err := c.prompter.Confirm(ctx, c.confirmDeleteMessage())
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("failed to confirm delete: %w", err)
	}
	if !ok {
		return OutcomeSkipped, nil
	}

	href := e.SelfHref()
	if href == "" {
		return OutcomeSkipped, nil
	}

	label := "delete " + c.cfg.Label()
	outcome, err := c.conditionalWrite(ctx, label, http.MethodDelete, href, "",
		func(headers map[string]string) (*executor.Response, error) {
			return c.transport.Delete(ctx, href, headers)
		})

	closeIfMatching := func() { c.closeEditIfTargets(href) }

	switch outcome {
	case OutcomeApplied:
		c.logger.Info("item deleted", "url", href)
		closeIfMatching()
		return outcome, c.Search(ctx)
	case OutcomeGone:
		return outcome, c.recoverFrom(ctx, c.messages.DeleteGone, closeIfMatching)
	case OutcomeConflict:
		return outcome, c.recoverFrom(ctx, c.messages.DeleteConflict, closeIfMatching)
	default:
		c.logger.Warn("delete failed", "url", href, "error", err)
		return OutcomeFailed, fmt.Errorf("failed to delete %s: %w", c.cfg.Label(), err)
	}
}

func (c *Client) confirmDeleteMessage() string {
	if strings.Contains(c.messages.ConfirmDelete, "%s") {
		return fmt.Sprintf(c.messages.ConfirmDelete, c.cfg.Label())
	}
	return c.messages.ConfirmDelete
}

// conditionalWrite re-fetches address, attaches its version tag as If-Match
// (fallbackTag when the server sent none) and runs write under the tracer.
// A vanished entity short-circuits to OutcomeGone without calling write.
func (c *Client) conditionalWrite(ctx context.Context, label, method, address, fallbackTag string,
	write func(headers map[string]string) (*executor.Response, error)) (Outcome, error) {
	gone := false

	_, err := c.request(ctx, label, method, address, func() (traced, error) {
		fresh, err := c.transport.FetchFresh(ctx, address)
		if err != nil {
			return traced{}, err
		}
		if fresh == nil {
			gone = true
			return traced{failure: goneInfo}, nil
		}

		headers := map[string]string{}
		tag := fresh.ETag
		if tag == "" {
			tag = fallbackTag
		}
		if tag != "" {
			headers[executor.HeaderIfMatch] = tag
		}

		resp, err := write(headers)
		return traced{resp: resp}, err
	})

	if err != nil {
		return classify(err), err
	}
	if gone {
		return OutcomeGone, nil
	}
	return OutcomeApplied, nil
}

// recoverFrom alerts the user, closes the session through closeEdit and refreshes the list
func (c *Client) recoverFrom(ctx context.Context, message string, closeEdit func()) error {
	c.logger.Info("recovering from stale state", "message", message)
	c.prompter.Alert(ctx, message)
	closeEdit()
	return c.Search(ctx)
}

// traced is what a traced operation hands back to the tracer
type traced struct {
	resp *executor.Response
	// failure marks a failure that was handled without an error
	failure *ErrorInfo
}

// request runs fn with the loading flag set and records the result in status
// and debug. loading is cleared on every exit path.
func (c *Client) request(ctx context.Context, label, method, address string, fn func() (traced, error)) (traced, error) {
	start := time.Now()

	c.mu.Lock()
	c.loading = true
	c.status = label
	c.mu.Unlock()
	c.changed()

	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
		c.changed()
	}()

	res, err := fn()

	entry := types.HistoryEntry{
		Timestamp:  start,
		Resource:   c.cfg.Name,
		Label:      label,
		Method:     method,
		URL:        address,
		DurationMs: time.Since(start).Milliseconds(),
	}

	switch {
	case err != nil:
		c.setStatus(label+" FAILED", errInfo(err))
		entry.Outcome = classify(err).String()
		entry.Status = executor.StatusOf(err)
		entry.Error = err.Error()
	case res.failure != nil:
		c.setStatus(label+" FAILED", res.failure)
		entry.Outcome = OutcomeGone.String()
		entry.Status = res.failure.Status
		entry.Error = res.failure.Message
	default:
		c.setStatus(label+" OK", res.resp.Payload())
		entry.Outcome = "ok"
		if res.resp != nil {
			entry.Method = res.resp.Method
			entry.Status = res.resp.Status
		}
	}

	if c.recorder != nil {
		if recErr := c.recorder.Record(ctx, entry); recErr != nil {
			c.logger.Warn("failed to record history", "error", recErr)
		}
	}

	return res, err
}

// setStatus sets the status line and the debug payload
func (c *Client) setStatus(msg string, obj interface{}) {
	c.mu.Lock()
	c.status = msg
	c.debug = debugText(obj)
	c.mu.Unlock()
	c.changed()
}

// setStatusOnly sets the status line and leaves debug alone
func (c *Client) setStatusOnly(msg string) {
	c.mu.Lock()
	c.status = msg
	c.mu.Unlock()
	c.changed()
}

func debugText(obj interface{}) string {
	out, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Sprint(obj)
	}
	return string(out)
}
