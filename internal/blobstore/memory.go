package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryBlob struct {
	meta Object
	data []byte
}

// MemoryStore is a thread-safe in-process Store for tests and development.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*memoryBlob
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string]*memoryBlob),
		now:   time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, contentType string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}

	meta := Object{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentTypeFor(key, contentType),
		ModTime:     s.now().UTC(),
	}

	s.mu.Lock()
	s.blobs[key] = &memoryBlob{meta: meta, data: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	b, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	meta := b.meta
	return io.NopCloser(bytes.NewReader(b.data)), &meta, nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Object
	for k, b := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			meta := b.meta
			out = append(out, &meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	if err := ValidateKey(prefix); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			delete(s.blobs, k)
			n++
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
