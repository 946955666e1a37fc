package source

import (
	"context"
	"io"
)

type ImportStartedEvent struct {
	// Shared by all chunks of the document
	CorrelationID string
	// Path to the document in the source
	Path string
}

type ImportDoneReason string

const ImportOk ImportDoneReason = "OK"
const ImportError ImportDoneReason = "ERROR"
const ImportSkipped ImportDoneReason = "SKIPPED"

type ImportDoneEvent struct {
	CorrelationID string
	Path          string
	// Why the import finished
	Reason ImportDoneReason
	// Number of chunks stored. Chunks stored before an error stay in the store.
	Chunks int
	// Only valid if reason is ERROR
	Error error
}

// Place where documents are located
type Source interface {
	Name() string
	// Open data source for iteration
	Open() (Iterator, error)

	// Notify source that the import of a document started.
	NotifyImportStarted(ctx context.Context, event ImportStartedEvent) error
	// Notify source that the import of a document finished. Returning an error
	// stops the import of the remaining documents.
	NotifyImportDone(ctx context.Context, event ImportDoneEvent) error
}

// Opened data source
type Iterator interface {
	io.Closer

	// Get and open next document. Thread safe. If there are no documents left, returns [io.EOF] error
	Next(ctx context.Context) (File, error)
}

type File interface {
	io.ReadCloser

	// Path to the document in the data source
	Path() string
	// Size in bytes, -1 when unknown
	Size() int64
}
