package export

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const blobScheme = "blob:"

type blob struct {
	data        []byte
	contentType string
}

// BlobStore holds temporary in-memory download objects addressed by
// blob:<uuid> references.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

// NewBlobStore creates an empty store
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: map[string]blob{}}
}

// Create stores data and returns its reference
func (s *BlobStore) Create(data []byte, contentType string) string {
	ref := blobScheme + uuid.New().String()
	s.mu.Lock()
	s.blobs[ref] = blob{data: data, contentType: contentType}
	s.mu.Unlock()
	return ref
}

// Get returns the data behind a reference
func (s *BlobStore) Get(ref string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[ref]
	return b.data, b.contentType, ok
}

// Revoke releases a reference immediately
func (s *BlobStore) Revoke(ref string) {
	s.mu.Lock()
	delete(s.blobs, ref)
	s.mu.Unlock()
}

// RevokeAfter releases a reference once the delay has passed
func (s *BlobStore) RevokeAfter(ref string, delay time.Duration) {
	if delay <= 0 {
		s.Revoke(ref)
		return
	}
	time.AfterFunc(delay, func() { s.Revoke(ref) })
}

// Len returns the number of live references
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

func isBlobRef(href string) bool {
	return strings.HasPrefix(href, blobScheme)
}
