package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/studiowebux/halcrud/internal/logging"
)

const maxLogs = 1000

// Server is an in-memory HAL+JSON API with optimistic concurrency.
//
// Each collection is served at /<name>:
//
//	GET    /<name>              list
//	GET    /<name>/search?q=    case-insensitive substring search
//	POST   /<name>              create
//	GET    /<name>/<id>         read, with ETag
//	PATCH  /<name>/<id>         merge attributes (405 when NoPatch is set)
//	PUT    /<name>/<id>         replace attributes
//	DELETE /<name>/<id>         delete
//
// Writes honor If-Match and answer 412 when the tag is stale.
type Server struct {
	config     *Config
	httpServer *http.Server
	logger     *slog.Logger

	mu          sync.Mutex
	collections map[string]*collection

	logs      []RequestLog
	logSeq    uint64
	logsMutex sync.RWMutex
	notifyCh  chan struct{} // Channel to notify when new log arrives
}

type collection struct {
	name         string
	embeddedKey  string
	searchFields []string
	nextID       int
	items        map[string]*item
}

type item struct {
	id      string
	version int
	attrs   map[string]interface{}
}

// NewServer creates a mock server seeded from config
func NewServer(config *Config, logger *slog.Logger) *Server {
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Host == "" {
		config.Host = "localhost"
	}
	if logger == nil {
		logger = logging.Nop()
	}

	s := &Server{
		config:      config,
		logger:      logger,
		collections: make(map[string]*collection),
		logs:        make([]RequestLog, 0),
		notifyCh:    make(chan struct{}, 100),
	}

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	for _, c := range config.Collections {
		col := &collection{
			name:         c.Name,
			embeddedKey:  c.EmbeddedKey,
			searchFields: c.SearchFields,
			items:        make(map[string]*item),
		}
		if col.embeddedKey == "" {
			col.embeddedKey = c.Name
		}
		for _, attrs := range c.Items {
			col.insert(attrs)
		}
		s.collections[c.Name] = col
	}

	return s
}

// ListenAndServe serves until Stop is called
func (s *Server) ListenAndServe() error {
	s.logger.Info("mock server started", "address", s.GetAddress())
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the mock server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// GetAddress returns the server address
func (s *Server) GetAddress() string {
	return "http://" + s.httpServer.Addr
}

// Handler returns the HTTP handler, for use with httptest
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleRequest)
}

// Modify merges attrs into an item as if another client had written it, and
// returns the new tag. It reports false when the item does not exist.
func (s *Server) Modify(name, id string, attrs map[string]interface{}) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[name]
	if !ok {
		return "", false
	}
	it, ok := col.items[id]
	if !ok {
		return "", false
	}
	for k, v := range attrs {
		it.attrs[k] = v
	}
	it.version++
	return it.etag(), true
}

// Remove deletes an item as if another client had deleted it
func (s *Server) Remove(name, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[name]
	if !ok {
		return false
	}
	if _, ok := col.items[id]; !ok {
		return false
	}
	delete(col.items, id)
	return true
}

// Item returns a copy of an item's attributes and its current tag
func (s *Server) Item(name, id string) (map[string]interface{}, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[name]
	if !ok {
		return nil, "", false
	}
	it, ok := col.items[id]
	if !ok {
		return nil, "", false
	}
	attrs := make(map[string]interface{}, len(it.attrs))
	for k, v := range it.attrs {
		attrs[k] = v
	}
	return attrs, it.etag(), true
}

// handleRequest handles incoming HTTP requests
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	bodyBytes, _ := io.ReadAll(r.Body)
	r.Body.Close()

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.route(rec, r, bodyBytes)

	if s.config.Logging {
		s.logRequest(RequestLog{
			Timestamp: start,
			Method:    r.Method,
			Path:      r.URL.RequestURI(),
			Headers:   flattenHeaders(r.Header),
			Body:      string(bodyBytes),
			Status:    rec.status,
			Duration:  time.Since(start),
		})
	}
}

func (s *Server) route(w http.ResponseWriter, r *http.Request, body []byte) {
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[segments[0]]
	if !ok || len(segments) > 2 {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
		return
	}

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, col.envelope("/"+col.name, col.sorted()))
		case http.MethodPost:
			s.create(w, col, body)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed on a collection")
		}
		return
	}

	id := segments[1]
	if id == "search" && r.Method == http.MethodGet {
		q := r.URL.Query().Get("q")
		writeJSON(w, http.StatusOK, col.envelope(r.URL.RequestURI(), col.search(q)))
		return
	}

	it, ok := col.items[id]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("%s/%s does not exist", col.name, id))
		return
	}

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("ETag", it.etag())
		writeJSON(w, http.StatusOK, col.represent(it))
	case http.MethodPatch, http.MethodPut:
		if r.Method == http.MethodPatch && s.config.NoPatch {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "PATCH is disabled, use PUT")
			return
		}
		if !preconditionHolds(r, it) {
			writeError(w, http.StatusPreconditionFailed, "precondition_failed", "If-Match does not match the current version")
			return
		}
		var attrs map[string]interface{}
		if err := json.Unmarshal(body, &attrs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
		if r.Method == http.MethodPut {
			it.attrs = make(map[string]interface{})
		}
		for k, v := range stripLinks(attrs) {
			it.attrs[k] = v
		}
		it.version++
		w.Header().Set("ETag", it.etag())
		writeJSON(w, http.StatusOK, col.represent(it))
	case http.MethodDelete:
		if !preconditionHolds(r, it) {
			writeError(w, http.StatusPreconditionFailed, "precondition_failed", "If-Match does not match the current version")
			return
		}
		delete(col.items, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed on an item")
	}
}

func (s *Server) create(w http.ResponseWriter, col *collection, body []byte) {
	var attrs map[string]interface{}
	if err := json.Unmarshal(body, &attrs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	it := col.insert(stripLinks(attrs))
	w.Header().Set("ETag", it.etag())
	w.Header().Set("Location", col.href(it))
	writeJSON(w, http.StatusCreated, col.represent(it))
}

// preconditionHolds checks If-Match; a request without one is unconditional
func preconditionHolds(r *http.Request, it *item) bool {
	match := r.Header.Get("If-Match")
	if match == "" || match == "*" {
		return true
	}
	for _, tag := range strings.Split(match, ",") {
		if strings.TrimSpace(tag) == it.etag() {
			return true
		}
	}
	return false
}

func (c *collection) insert(attrs map[string]interface{}) *item {
	c.nextID++
	it := &item{id: strconv.Itoa(c.nextID), version: 1, attrs: make(map[string]interface{}, len(attrs))}
	for k, v := range attrs {
		it.attrs[k] = v
	}
	c.items[it.id] = it
	return it
}

func (c *collection) href(it *item) string {
	return "/" + c.name + "/" + it.id
}

func (c *collection) represent(it *item) map[string]interface{} {
	out := make(map[string]interface{}, len(it.attrs)+1)
	for k, v := range it.attrs {
		out[k] = v
	}
	out["_links"] = map[string]interface{}{
		"self": map[string]interface{}{"href": c.href(it)},
	}
	return out
}

func (c *collection) envelope(self string, items []*item) map[string]interface{} {
	list := make([]interface{}, 0, len(items))
	for _, it := range items {
		list = append(list, c.represent(it))
	}
	return map[string]interface{}{
		"_embedded": map[string]interface{}{c.embeddedKey: list},
		"_links": map[string]interface{}{
			"self": map[string]interface{}{"href": self},
		},
	}
}

// sorted returns the items in id order
func (c *collection) sorted() []*item {
	out := make([]*item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].id)
		b, _ := strconv.Atoi(out[j].id)
		return a < b
	})
	return out
}

func (c *collection) search(q string) []*item {
	needle := strings.ToLower(strings.TrimSpace(q))
	var out []*item
	for _, it := range c.sorted() {
		if needle == "" || c.matches(it, needle) {
			out = append(out, it)
		}
	}
	return out
}

func (c *collection) matches(it *item, needle string) bool {
	fields := c.searchFields
	if len(fields) == 0 {
		for k := range it.attrs {
			fields = append(fields, k)
		}
	}
	for _, f := range fields {
		if s, ok := it.attrs[f].(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func (it *item) etag() string {
	return fmt.Sprintf(`"%d"`, it.version)
}

func stripLinks(attrs map[string]interface{}) map[string]interface{} {
	delete(attrs, "_links")
	delete(attrs, "_embedded")
	return attrs
}

// logRequest adds a request to the log
func (s *Server) logRequest(log RequestLog) {
	s.logsMutex.Lock()
	defer s.logsMutex.Unlock()

	s.logSeq++
	log.Seq = s.logSeq
	s.logs = append(s.logs, log)

	if len(s.logs) > maxLogs {
		s.logs = s.logs[len(s.logs)-maxLogs:]
	}

	// Notify listeners (non-blocking)
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// NotifyChannel returns the notification channel
func (s *Server) NotifyChannel() <-chan struct{} {
	return s.notifyCh
}

// GetLogs returns all logged requests
func (s *Server) GetLogs() []RequestLog {
	s.logsMutex.RLock()
	defer s.logsMutex.RUnlock()

	logs := make([]RequestLog, len(s.logs))
	copy(logs, s.logs)
	return logs
}

// LogsSince returns the logged requests with a sequence number above seq, oldest
// first. Entries already dropped from the ring are not returned.
func (s *Server) LogsSince(seq uint64) []RequestLog {
	s.logsMutex.RLock()
	defer s.logsMutex.RUnlock()

	i := sort.Search(len(s.logs), func(i int) bool { return s.logs[i].Seq > seq })
	logs := make([]RequestLog, len(s.logs)-i)
	copy(logs, s.logs[i:])
	return logs
}

// ClearLogs clears all logged requests. Sequence numbers keep increasing.
func (s *Server) ClearLogs() {
	s.logsMutex.Lock()
	defer s.logsMutex.Unlock()

	s.logs = make([]RequestLog, 0)
}

// flattenHeaders converts http.Header to map[string]string (first value only)
func flattenHeaders(headers http.Header) map[string]string {
	result := make(map[string]string)
	for key, values := range headers {
		if len(values) > 0 {
			result[key] = values[0]
		}
	}
	return result
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/hal+json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, errCode, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errCode,
		"message": message,
	})
}
