package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opengs/xmlsplit/splitter"
)

var ErrChunkNotFound = errors.New("chunk does not exist in storage")

// Item describes a stored chunk without its contents.
type Item struct {
	// Absolute path of the chunk, starting with its layer
	Path string `json:"path"`
	// Layer the chunk was imported into, always starts and ends with "/"
	Layer string `json:"layer"`
	// Shared by all chunks imported from one document
	CorrelationID string             `json:"correlationId"`
	Meta          splitter.ChunkMeta `json:"meta"`
	ImportedAt    time.Time          `json:"importedAt"`
}

// Cursor iterates over the chunks selected by Store.Get. It is finite and
// cannot be restarted.
type Cursor interface {
	Next(ctx context.Context) bool
	Current() Item
	// Error that stopped the iteration, nil when the cursor is exhausted.
	Err() error
	Close() error
}

type Store interface {
	// Stores chunk under a new path inside layer and returns the path.
	Add(ctx context.Context, chunk []byte, meta splitter.ChunkMeta, layer string, correlationID string) (string, error)
	// Opens the contents of a chunk. Returns ErrChunkNotFound if the path is unknown.
	GetOne(ctx context.Context, path string) (io.ReadCloser, error)
	// Selects the chunks of layer and all its sub layers matching search. See
	// package query for the search syntax.
	Get(ctx context.Context, search string, layer string) (Cursor, error)
	// Deletes the chunks Get would select and returns how many were removed.
	Delete(ctx context.Context, search string, layer string) (int, error)
}

// NormalizeLayer turns a layer name into the form used by the stores: it
// always starts and ends with "/". The empty layer is the root layer "/".
func NormalizeLayer(layer string) string {
	layer = strings.TrimSpace(layer)
	if layer == "" || layer == "/" {
		return "/"
	}
	layer = path.Clean("/" + layer)
	if layer == "/" {
		return layer
	}
	return layer + "/"
}

// JoinPath joins path elements with "/", keeping a leading slash.
func JoinPath(elems ...string) string {
	return path.Join(append([]string{"/"}, elems...)...)
}

// NewChunkPath generates a unique path for a chunk of the given import. Paths
// generated by one process sort in the order they were generated.
func NewChunkPath(layer string, correlationID string) string {
	return JoinPath(NormalizeLayer(layer), correlationID+"-"+uuid.Must(uuid.NewV7()).String())
}

// InLayer reports whether a chunk path lies inside layer or one of its sub
// layers.
func InLayer(chunkPath string, layer string) bool {
	return strings.HasPrefix(chunkPath, NormalizeLayer(layer))
}

// EncodeMeta serializes chunk metadata for stores that keep it as a blob.
func EncodeMeta(meta splitter.ChunkMeta) ([]byte, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, errors.Join(errors.New("failed to encode chunk metadata"), err)
	}
	return data, nil
}

func DecodeMeta(data []byte) (splitter.ChunkMeta, error) {
	var meta splitter.ChunkMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, errors.Join(errors.New("failed to decode chunk metadata"), err)
	}
	return meta, nil
}

// SliceCursor iterates over items that were selected up front.
type SliceCursor struct {
	items []Item
	pos   int
	err   error
}

func NewSliceCursor(items []Item) *SliceCursor {
	return &SliceCursor{items: items, pos: -1}
}

func (c *SliceCursor) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos+1 >= len(c.items) {
		c.pos = len(c.items)
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) Current() Item {
	return c.items[c.pos]
}

func (c *SliceCursor) Err() error {
	return c.err
}

func (c *SliceCursor) Close() error {
	c.items = nil
	c.pos = 0
	return nil
}
