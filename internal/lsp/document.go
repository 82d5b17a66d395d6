package lsp

import (
	"slices"
	"sync"
)

// Document is an immutable snapshot of an open document.
type Document struct {
	URI     DocumentURI
	Text    string
	Version int
}

// DocumentStore tracks open documents. Changes replace the whole snapshot,
// so readers never observe a partially applied change.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[DocumentURI]Document
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[DocumentURI]Document)}
}

// Open records a newly opened document.
func (s *DocumentStore) Open(uri DocumentURI, text string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[uri]; exists {
		return ErrDocumentAlreadyOpen
	}
	s.docs[uri] = Document{URI: uri, Text: text, Version: version}
	return nil
}

// Replace swaps in the full new text. The version must increase.
func (s *DocumentStore) Replace(uri DocumentURI, text string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[uri]
	if !exists {
		return ErrDocumentNotOpen
	}
	if version <= doc.Version {
		return ErrStaleVersion
	}
	s.docs[uri] = Document{URI: uri, Text: text, Version: version}
	return nil
}

// SetText swaps in text the client reported without a version, such as
// the content of a save. The stored version is kept so the client's next
// versioned change still applies.
func (s *DocumentStore) SetText(uri DocumentURI, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[uri]
	if !exists {
		return ErrDocumentNotOpen
	}
	doc.Text = text
	s.docs[uri] = doc
	return nil
}

// Close forgets a document.
func (s *DocumentStore) Close(uri DocumentURI) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[uri]; !exists {
		return ErrDocumentNotOpen
	}
	delete(s.docs, uri)
	return nil
}

// Get returns the current snapshot for uri.
func (s *DocumentStore) Get(uri DocumentURI) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[uri]
	return doc, ok
}

// IsOpen reports whether uri is open.
func (s *DocumentStore) IsOpen(uri DocumentURI) bool {
	_, ok := s.Get(uri)
	return ok
}

// URIs returns the open document URIs in sorted order.
func (s *DocumentStore) URIs() []DocumentURI {
	s.mu.RLock()
	uris := make([]DocumentURI, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	s.mu.RUnlock()

	slices.Sort(uris)
	return uris
}
