// Package xmlsplit imports XML documents into a chunk store.
//
// Documents are split by a streaming splitter into chunks that are complete
// XML documents of their own. The chunks are kept in a storage.Store from
// which they can be selected and merged back into one document.
package xmlsplit

import (
	"errors"
	"log/slog"

	"github.com/opengs/xmlsplit/chunker/xmlchunk"
	"github.com/opengs/xmlsplit/config"
	"github.com/opengs/xmlsplit/source"
	"github.com/opengs/xmlsplit/storage"
	"github.com/opengs/xmlsplit/xmlevent"
)

// New assembles an engine from the configuration.
func New(cfg config.Config, store storage.Store, logger *slog.Logger, sources ...source.Source) (*Engine, error) {
	factory, err := cfg.Split.PolicyFactory()
	if err != nil {
		return nil, errors.Join(errors.New("failed to create split policy"), err)
	}

	var chunkerOptions []xmlchunk.Option
	if cfg.Split.BufferSize > 0 {
		chunkerOptions = append(chunkerOptions, xmlchunk.WithReaderOptions(xmlevent.WithBufferSize(cfg.Split.BufferSize)))
	}

	return NewEngine(store, xmlchunk.New(factory, chunkerOptions...),
		WithSources(sources...),
		WithLayer(cfg.Import.Layer),
		WithParallelism(cfg.Import.Parallelism),
		WithLogger(logger),
	), nil
}
