package xmlsplit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/opengs/xmlsplit/chunker"
	"github.com/opengs/xmlsplit/source"
	"github.com/opengs/xmlsplit/storage"
	"github.com/rs/xid"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// ErrMimeTypeNotSupported is returned for documents that are not XML.
type ErrMimeTypeNotSupported struct {
	MimeType *mimetype.MIME
}

func (e *ErrMimeTypeNotSupported) Error() string {
	return fmt.Sprintf("mime type of the file is not supported: %s", e.MimeType)
}

type ImportResult struct {
	// Shared by all chunks of the document
	CorrelationID string
	// Number of chunks stored
	Chunks int
}

type Stats struct {
	Documents uint64
	Chunks    uint64
	Failed    uint64
	Skipped   uint64
}

type Engine struct {
	sources     []source.Source
	chunker     chunker.Chunker
	store       storage.Store
	layer       string
	parallelism int
	logger      *slog.Logger

	documents atomic.Uint64
	chunks    atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64
}

type EngineOption func(e *Engine)

func WithSources(sources ...source.Source) EngineOption {
	return func(e *Engine) {
		e.sources = append(e.sources, sources...)
	}
}

// WithLayer sets the layer documents from sources are imported into.
func WithLayer(layer string) EngineOption {
	return func(e *Engine) {
		e.layer = layer
	}
}

// WithParallelism sets the number of documents imported at the same time.
func WithParallelism(parallelism int) EngineOption {
	return func(e *Engine) {
		e.parallelism = max(parallelism, 1)
	}
}

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

func NewEngine(store storage.Store, c chunker.Chunker, options ...EngineOption) *Engine {
	e := &Engine{
		chunker:     c,
		store:       store,
		layer:       "/",
		parallelism: 1,
		logger:      slog.Default(),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

func (e *Engine) Stats() Stats {
	return Stats{
		Documents: e.documents.Load(),
		Chunks:    e.chunks.Load(),
		Failed:    e.failed.Load(),
		Skipped:   e.skipped.Load(),
	}
}

// Process imports every document of every source. A document that fails does
// not stop the others; the failures are returned together at the end.
func (e *Engine) Process(ctx context.Context) error {
	var errs []error
	for _, source := range e.sources {
		sourceIterator, err := source.Open()
		if err != nil {
			return errors.Join(errors.New("failed to open source"), err)
		}

		err = e.processSource(ctx, source, sourceIterator)
		sourceIterator.Close()

		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", source.Name(), err))
		}
	}

	return errors.Join(errs...)
}

func (e *Engine) processSource(ctx context.Context, sourceInfo source.Source, sourceIterator source.Iterator) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.parallelism)

	var failures []error
	var failuresLock sync.Mutex

	for {
		f, err := sourceIterator.Next(groupCtx)
		if err != nil {
			if err == io.EOF {
				break
			}

			groupErr := group.Wait()
			return errors.Join(errors.New("error while iterating over source files"), err, groupErr)
		}

		group.Go(func() error {
			err := e.processFile(groupCtx, sourceInfo, f)
			if closeErr := f.Close(); closeErr != nil {
				err = errors.Join(err, errors.New("error during closing processed file"), closeErr)
			}
			if err == nil {
				return nil
			}

			var notifyErr *notifyError
			if errors.As(err, &notifyErr) || groupCtx.Err() != nil {
				return err
			}
			failuresLock.Lock()
			failures = append(failures, fmt.Errorf("%s: %w", f.Path(), err))
			failuresLock.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	return errors.Join(failures...)
}

type notifyError struct {
	err error
}

func (e *notifyError) Error() string {
	return "failed to notify source: " + e.err.Error()
}

func (e *notifyError) Unwrap() error {
	return e.err
}

func (e *Engine) processFile(ctx context.Context, sourceInfo source.Source, f source.File) error {
	correlationID := xid.New().String()
	logger := e.logger.With("source", sourceInfo.Name(), "path", f.Path(), "correlationId", correlationID)

	if err := sourceInfo.NotifyImportStarted(ctx, source.ImportStartedEvent{
		CorrelationID: correlationID,
		Path:          f.Path(),
	}); err != nil {
		return &notifyError{err: err}
	}

	result, err := e.importDocument(ctx, f, f.Path(), e.layer, correlationID)

	event := source.ImportDoneEvent{
		CorrelationID: correlationID,
		Path:          f.Path(),
		Reason:        source.ImportOk,
		Chunks:        result.Chunks,
	}
	var mimeErr *ErrMimeTypeNotSupported
	switch {
	case errors.As(err, &mimeErr):
		logger.Debug("document skipped", "mimeType", mimeErr.MimeType.String())
		event.Reason = source.ImportSkipped
		err = nil
	case err != nil:
		logger.Error("document import failed", "chunks", result.Chunks, "error", err)
		event.Reason = source.ImportError
		event.Error = err
	default:
		logger.Info("document imported", "chunks", result.Chunks)
	}

	if notifyErr := sourceInfo.NotifyImportDone(ctx, event); notifyErr != nil {
		return &notifyError{err: errors.Join(notifyErr, err)}
	}
	return err
}

// Import splits one document and stores its chunks in layer.
func (e *Engine) Import(ctx context.Context, document io.Reader, path string, layer string) (ImportResult, error) {
	return e.importDocument(ctx, document, path, layer, xid.New().String())
}

func (e *Engine) importDocument(ctx context.Context, document io.Reader, path string, layer string, correlationID string) (ImportResult, error) {
	result := ImportResult{CorrelationID: correlationID}

	mimeBlock := make([]byte, 1024)
	readed, err := io.ReadFull(document, mimeBlock)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return result, errors.Join(errors.New("failed to read file to determine mime type"), err)
	}
	mimeBlock = mimeBlock[:readed]

	if mime := mimetype.Detect(mimeBlock); !isXML(mime, mimeBlock) {
		e.skipped.Inc()
		return result, &ErrMimeTypeNotSupported{MimeType: mime}
	}

	chunks := e.chunker.GenerateChunks(ctx, io.MultiReader(bytes.NewReader(mimeBlock), document), path)
	for chunks.Next(ctx) {
		chunk := chunks.Current()
		if chunk.Error != nil {
			e.failed.Inc()
			return result, chunk.Error
		}

		if chunk.Data != nil {
			if _, err := e.store.Add(ctx, chunk.Data.Data, chunk.Data.Meta, layer, correlationID); err != nil {
				e.failed.Inc()
				return result, errors.Join(errors.New("failed to store chunk"), err)
			}
			result.Chunks++
			e.chunks.Inc()
		}

		if chunk.End != nil && chunk.End.Error != nil {
			e.failed.Inc()
			return result, errors.Join(errors.New("failed to split document"), chunk.End.Error)
		}
	}

	e.documents.Inc()
	return result, nil
}

// isXML accepts every XML based type and plain text that starts with markup,
// since documents without an XML declaration are detected as text.
func isXML(mime *mimetype.MIME, head []byte) bool {
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/xml") || m.Is("application/xml") {
			return true
		}
	}
	if mime.Is("text/plain") {
		trimmed := bytes.TrimLeft(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")), " \t\r\n")
		return len(trimmed) > 0 && trimmed[0] == '<'
	}
	return false
}
