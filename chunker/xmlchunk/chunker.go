// Package xmlchunk splits XML documents into standalone chunks.
package xmlchunk

import (
	"context"
	"io"

	"github.com/opengs/xmlsplit/chunker"
	"github.com/opengs/xmlsplit/policy"
	"github.com/opengs/xmlsplit/splitter"
	"github.com/opengs/xmlsplit/window"
	"github.com/opengs/xmlsplit/xmlevent"
)

type Chunker struct {
	policy        policy.Factory
	readerOptions []xmlevent.Option
}

type Option func(*Chunker)

// WithReaderOptions configures the event reader created for every document.
func WithReaderOptions(options ...xmlevent.Option) Option {
	return func(c *Chunker) {
		c.readerOptions = append(c.readerOptions, options...)
	}
}

// New creates a chunker that creates one policy per document with factory.
func New(factory policy.Factory, options ...Option) *Chunker {
	c := &Chunker{policy: factory}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Chunker) GenerateChunks(ctx context.Context, file io.Reader, path string) chunker.ChunkIterator {
	w := window.New()
	return &chunkIterator{
		path:     path,
		window:   w,
		reader:   xmlevent.NewReader(file, w, c.readerOptions...),
		splitter: splitter.New(w, c.policy()),
	}
}

type iteratorStage uint8

const (
	stageStart iteratorStage = iota
	stageData
	stageDone
)

// chunkIterator pulls events only when the next chunk is requested, so at most
// one chunk worth of input is held in memory.
type chunkIterator struct {
	path     string
	window   *window.Window
	reader   *xmlevent.Reader
	splitter *splitter.Splitter

	stage   iteratorStage
	chunks  int
	current chunker.Chunk
}

func (i *chunkIterator) Next(ctx context.Context) bool {
	switch i.stage {
	case stageStart:
		i.stage = stageData
		i.current = chunker.Chunk{Start: &chunker.StartChunk{FilePath: i.path}}
		return true
	case stageDone:
		return false
	}

	for {
		if ctx.Err() != nil {
			i.end(ctx.Err())
			return true
		}

		ev, err := i.reader.Next()
		if err != nil {
			i.end(i.splitter.Finish(err))
			return true
		}

		chunk, err := i.splitter.OnEvent(ev)
		if err != nil {
			i.end(err)
			return true
		}
		if chunk != nil {
			i.chunks++
			i.current = chunker.Chunk{Data: &chunker.DataChunk{
				FilePath: i.path,
				Data:     chunk.Data,
				Meta:     chunk.Meta,
			}}
			return true
		}
	}
}

func (i *chunkIterator) end(err error) {
	i.stage = stageDone
	i.window.Release()
	i.current = chunker.Chunk{End: &chunker.EndChunk{
		FilePath: i.path,
		Chunks:   i.chunks,
		Error:    err,
	}}
}

func (i *chunkIterator) Current() chunker.Chunk {
	return i.current
}
