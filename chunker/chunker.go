package chunker

import (
	"context"
	"io"

	"github.com/opengs/xmlsplit/splitter"
)

// Chunk is one element of a chunk stream. Exactly one of Start, Data and End
// is set, unless Error reports a failure of the chunker itself.
type Chunk struct {
	Start *StartChunk
	Data  *DataChunk
	End   *EndChunk

	// Internal chunker error.
	Error error
}

type StartChunk struct {
	FilePath string
}

type DataChunk struct {
	FilePath string
	// Standalone XML document
	Data []byte
	Meta splitter.ChunkMeta
}

type EndChunk struct {
	FilePath string
	// Number of data chunks emitted for the file
	Chunks int
	// Not nil if the file could not be split to the end. Data chunks emitted
	// before stay valid.
	Error error
}

type ChunkIterator interface {
	Next(ctx context.Context) bool
	Current() Chunk
}

type Chunker interface {
	GenerateChunks(ctx context.Context, file io.Reader, path string) ChunkIterator
}
