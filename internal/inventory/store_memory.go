package inventory

import (
	"context"
	"sync"
)

// MemStore keeps the encoded document in memory. It goes through the same
// codec as the persistent stores.
type MemStore struct {
	mu    sync.RWMutex
	raw   []byte
	saves int
}

func NewMemStore(initial Collection) *MemStore {
	raw, _ := encodeDocument(Document{Products: initial})
	return &MemStore{raw: raw}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Load(ctx context.Context) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, _ := decodeDocument(s.raw)
	return doc, nil
}

func (s *MemStore) Save(ctx context.Context, doc Document) error {
	raw, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.raw = raw
	s.saves++
	return nil
}

// Raw returns a copy of the encoded document.
func (s *MemStore) Raw() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.raw...)
}

func (s *MemStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
