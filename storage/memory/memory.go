// Package memory keeps chunks in process memory. It is meant for tests and
// single process deployments that do not need persistence.
package memory

import (
	"bytes"
	"cmp"
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/opengs/xmlsplit/query"
	"github.com/opengs/xmlsplit/splitter"
	"github.com/opengs/xmlsplit/storage"
)

type entry struct {
	seq  uint64
	item storage.Item
	data []byte
}

type Store struct {
	mu     sync.RWMutex
	seq    uint64
	chunks map[string]entry
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{chunks: make(map[string]entry)}
}

func (s *Store) Add(ctx context.Context, chunk []byte, meta splitter.ChunkMeta, layer string, correlationID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	layer = storage.NormalizeLayer(layer)
	path := storage.NewChunkPath(layer, correlationID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.chunks[path] = entry{
		seq: s.seq,
		item: storage.Item{
			Path:          path,
			Layer:         layer,
			CorrelationID: correlationID,
			Meta:          meta,
			ImportedAt:    time.Now(),
		},
		data: bytes.Clone(chunk),
	}
	return path, nil
}

func (s *Store) GetOne(ctx context.Context, path string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.chunks[path]
	if !ok {
		return nil, storage.ErrChunkNotFound
	}
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

// Get selects matching chunks in the order they were added.
func (s *Store) Get(ctx context.Context, search string, layer string) (storage.Cursor, error) {
	items, err := s.selectItems(search, layer)
	if err != nil {
		return nil, err
	}
	return storage.NewSliceCursor(items), nil
}

func (s *Store) Delete(ctx context.Context, search string, layer string) (int, error) {
	items, err := s.selectItems(search, layer)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, item := range items {
		if _, ok := s.chunks[item.Path]; ok {
			delete(s.chunks, item.Path)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) selectItems(search string, layer string) ([]storage.Item, error) {
	matcher, err := query.Compile(search)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var selected []entry
	for path, e := range s.chunks {
		if !storage.InLayer(path, layer) {
			continue
		}
		ok, err := matcher.Match(e.data, e.item.Meta)
		if err != nil {
			return nil, err
		}
		if ok {
			selected = append(selected, e)
		}
	}

	slices.SortFunc(selected, func(a, b entry) int {
		return cmp.Compare(a.seq, b.seq)
	})

	items := make([]storage.Item, len(selected))
	for i, e := range selected {
		items[i] = e.item
	}
	return items, nil
}
