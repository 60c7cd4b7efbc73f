// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package zoterotest runs an in-memory Zotero Web API for tests. It covers
// the endpoints the zotero client uses and validates item fields against a
// small schema, so mapping mistakes surface the way the real API reports
// them.
package zoterotest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// APIKey is the key the server accepts.
const APIKey = "test-api-key"

var common = []string{"itemType", "tags", "collections", "relations"}

// schema lists the fields each supported item type accepts.
var schema = map[string][]string{
	"preprint": {"title", "creators", "abstractNote", "genre", "repository", "archiveID", "place",
		"date", "series", "seriesNumber", "DOI", "citationKey", "url", "accessDate", "archive",
		"archiveLocation", "shortTitle", "language", "libraryCatalog", "callNumber", "rights", "extra"},
	"journalArticle": {"title", "creators", "abstractNote", "publicationTitle", "volume", "issue",
		"pages", "date", "series", "seriesTitle", "seriesText", "journalAbbreviation", "language",
		"DOI", "ISSN", "shortTitle", "url", "accessDate", "archive", "archiveLocation",
		"libraryCatalog", "callNumber", "rights", "extra"},
	"attachment": {"parentItem", "linkMode", "title", "accessDate", "url", "note", "contentType",
		"charset", "filename", "md5", "mtime"},
	"note": {"parentItem", "note"},
}

// Item is a stored library object.
type Item struct {
	Key  string
	Data map[string]any
}

// Server is a fake Zotero API rooted at /users/{LibraryID}.
type Server struct {
	*httptest.Server

	LibraryID string

	// Latency is added to every library request.
	Latency time.Duration

	// QuotaExceeded makes upload authorization answer 413.
	QuotaExceeded bool

	// FailCreates makes every item POST answer this status when non-zero.
	FailCreates int

	// FailStorage makes this many storage uploads answer 503 before
	// uploads succeed again.
	FailStorage int32

	mu          sync.Mutex
	items       map[string]Item
	order       []string
	collections map[string]bool
	pending     map[string]pendingUpload
	files       map[string][]byte
	nextKey     int

	inFlight int32
	peak     int32
	creates  int32
	storage  int32
}

type pendingUpload struct {
	itemKey string
	content []byte
}

// NewServer starts a fake API for the given library ID.
func NewServer(libraryID string) *Server {
	s := &Server{
		LibraryID:   libraryID,
		items:       make(map[string]Item),
		collections: make(map[string]bool),
		pending:     make(map[string]pendingUpload),
		files:       make(map[string][]byte),
	}
	lib := "/users/" + libraryID
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/new", s.handleTemplate)
	mux.HandleFunc("GET "+lib+"/items/top", s.library(s.handleSearch))
	mux.HandleFunc("POST "+lib+"/items", s.library(s.handleCreate))
	mux.HandleFunc("POST "+lib+"/items/{key}/file", s.library(s.handleFile))
	mux.HandleFunc("GET "+lib+"/collections/{key}", s.library(s.handleCollection))
	mux.HandleFunc("POST /storage/{uploadKey}", s.handleStorage)
	s.Server = httptest.NewServer(mux)
	return s
}

// AddCollection registers a collection key.
func (s *Server) AddCollection(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[key] = true
}

// AddItem stores a top-level item directly and returns its key.
func (s *Server) AddItem(data map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(data)
}

// TopLevel returns stored items without a parent, in creation order.
func (s *Server) TopLevel() []Item {
	return s.filter(func(it Item) bool { return it.Data["parentItem"] == nil })
}

// Children returns the child items of parentKey, in creation order.
func (s *Server) Children(parentKey string) []Item {
	return s.filter(func(it Item) bool { return it.Data["parentItem"] == parentKey })
}

// File returns uploaded content of an attachment, if registered.
func (s *Server) File(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[key]
	return b, ok
}

// PeakInFlight is the highest number of concurrent library requests seen.
func (s *Server) PeakInFlight() int {
	return int(atomic.LoadInt32(&s.peak))
}

// CreateRequests counts item POSTs received.
func (s *Server) CreateRequests() int {
	return int(atomic.LoadInt32(&s.creates))
}

// StorageRequests counts uploads received by the storage host.
func (s *Server) StorageRequests() int {
	return int(atomic.LoadInt32(&s.storage))
}

func (s *Server) filter(keep func(Item) bool) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for _, k := range s.order {
		if it := s.items[k]; keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// store must be called with mu held.
func (s *Server) store(data map[string]any) string {
	s.nextKey++
	key := fmt.Sprintf("ITEM%04d", s.nextKey)
	s.items[key] = Item{Key: key, Data: data}
	s.order = append(s.order, key)
	return key
}

// library wraps a handler with API key checks and in-flight accounting.
func (s *Server) library(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&s.inFlight, 1)
		defer atomic.AddInt32(&s.inFlight, -1)
		for {
			p := atomic.LoadInt32(&s.peak)
			if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
				break
			}
		}
		if s.Latency > 0 {
			time.Sleep(s.Latency)
		}
		if r.Header.Get("Zotero-API-Key") != APIKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if r.Header.Get("Zotero-API-Version") != "3" {
			http.Error(w, "API version 3 required", http.StatusBadRequest)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	itemType := r.URL.Query().Get("itemType")
	fields, ok := schema[itemType]
	if !ok || itemType == "attachment" || itemType == "note" {
		http.Error(w, "'itemType' is not a valid item type", http.StatusBadRequest)
		return
	}
	tmpl := map[string]any{
		"itemType":    itemType,
		"tags":        []any{},
		"collections": []any{},
		"relations":   map[string]any{},
	}
	for _, f := range fields {
		tmpl[f] = ""
	}
	tmpl["creators"] = []any{map[string]any{"creatorType": "author", "firstName": "", "lastName": ""}}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("q"))
	type envelope struct {
		Key     string         `json:"key"`
		Version int            `json:"version"`
		Data    map[string]any `json:"data"`
	}
	out := []envelope{}
	for _, it := range s.TopLevel() {
		if q == "" || containsValue(it.Data, q) {
			out = append(out, envelope{Key: it.Key, Version: 1, Data: it.Data})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func containsValue(data map[string]any, q string) bool {
	for _, v := range data {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

type failure struct {
	Key     string `json:"key,omitempty"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.creates, 1)
	if s.FailCreates != 0 {
		http.Error(w, "injected failure", s.FailCreates)
		return
	}
	var objects []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&objects); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp := map[string]any{
		"successful": map[string]any{},
		"success":    map[string]string{},
		"unchanged":  map[string]string{},
		"failed":     map[string]failure{},
	}
	for i, obj := range objects {
		idx := fmt.Sprint(i)
		if f := s.validate(obj); f != nil {
			resp["failed"].(map[string]failure)[idx] = *f
			continue
		}
		key := s.store(obj)
		resp["successful"].(map[string]any)[idx] = map[string]any{"key": key, "version": 1, "data": obj}
		resp["success"].(map[string]string)[idx] = key
	}
	writeJSON(w, http.StatusOK, resp)
}

// validate must be called with mu held.
func (s *Server) validate(obj map[string]any) *failure {
	itemType, _ := obj["itemType"].(string)
	fields, ok := schema[itemType]
	if !ok {
		return &failure{Code: 400, Message: fmt.Sprintf("'%s' is not a valid itemType", itemType)}
	}
	for k := range obj {
		if !slices.Contains(fields, k) && !slices.Contains(common, k) {
			return &failure{Code: 400, Message: fmt.Sprintf("'%s' is not a valid field for type '%s'", k, itemType)}
		}
	}

	parent, _ := obj["parentItem"].(string)
	cols, _ := obj["collections"].([]any)
	if parent != "" {
		if _, ok := s.items[parent]; !ok {
			return &failure{Code: 400, Message: fmt.Sprintf("Parent item %s not found", parent)}
		}
		if len(cols) > 0 {
			return &failure{Code: 400, Message: "Child items cannot be assigned to collections"}
		}
	} else if itemType == "attachment" || itemType == "note" {
		return &failure{Code: 400, Message: "fixture requires child " + itemType + "s"}
	}
	for _, c := range cols {
		if key, _ := c.(string); !s.collections[key] {
			return &failure{Code: 409, Message: fmt.Sprintf("Collection %v doesn't exist", c)}
		}
	}
	return nil
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.Header.Get("If-None-Match") != "*" {
		http.Error(w, "If-Match or If-None-Match header not provided", http.StatusPreconditionRequired)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok || it.Data["itemType"] != "attachment" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	if uploadKey := r.PostForm.Get("upload"); uploadKey != "" {
		p, ok := s.pending[uploadKey]
		if !ok || p.itemKey != key {
			http.Error(w, "Upload key not found", http.StatusBadRequest)
			return
		}
		delete(s.pending, uploadKey)
		s.files[key] = p.content
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if s.QuotaExceeded {
		http.Error(w, "File would exceed quota", http.StatusRequestEntityTooLarge)
		return
	}
	for _, v := range []string{"md5", "filename", "filesize", "mtime"} {
		if r.PostForm.Get(v) == "" {
			http.Error(w, v+" not provided", http.StatusBadRequest)
			return
		}
	}
	uploadKey := fmt.Sprintf("up-%s-%d", key, len(s.pending)+len(s.files))
	s.pending[uploadKey] = pendingUpload{itemKey: key}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":         s.URL + "/storage/" + uploadKey,
		"contentType": "multipart/form-data; boundary=fixture",
		"prefix":      "--fixture\r\n",
		"suffix":      "\r\n--fixture--",
		"uploadKey":   uploadKey,
	})
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	n := atomic.AddInt32(&s.storage, 1)
	if n <= atomic.LoadInt32(&s.FailStorage) {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	if r.Header.Get("Zotero-API-Key") != "" {
		http.Error(w, "storage host got a Zotero API key", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	uploadKey := r.PathValue("uploadKey")

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[uploadKey]
	if !ok {
		http.Error(w, "no such upload", http.StatusNotFound)
		return
	}
	content := strings.TrimSuffix(strings.TrimPrefix(string(body), "--fixture\r\n"), "\r\n--fixture--")
	p.content = []byte(content)
	s.pending[uploadKey] = p
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ok := s.collections[r.PathValue("key")]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Collection not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": r.PathValue("key"), "data": map[string]any{"name": "Papers"}})
}
