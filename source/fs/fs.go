package fs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"sync"

	"github.com/opengs/xmlsplit/source"
)

type FS struct {
	fs       fs.FS
	root     string
	name     string
	patterns []string
	onDone   func(source.ImportDoneEvent)
}

type Option func(*FS)

// WithPatterns only yields files whose name or path matches one of the glob
// patterns (path.Match syntax).
func WithPatterns(patterns ...string) Option {
	return func(f *FS) {
		f.patterns = append(f.patterns, patterns...)
	}
}

// WithDoneHandler calls handler after every imported document.
func WithDoneHandler(handler func(source.ImportDoneEvent)) Option {
	return func(f *FS) {
		f.onDone = handler
	}
}

func New(fsys fs.FS, root string, name string, options ...Option) (*FS, error) {
	f := &FS{
		fs:   fsys,
		root: root,
		name: name,
	}
	for _, option := range options {
		option(f)
	}

	for _, pattern := range f.patterns {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, errors.Join(errors.New("invalid file pattern "+pattern), err)
		}
	}

	return f, nil
}

func (f *FS) Name() string {
	return f.name
}

func (f *FS) Open() (source.Iterator, error) {
	return &fsIterator{
		source: f,
		walker: newWalker(f.fs, f.root),
	}, nil
}

func (f *FS) NotifyImportStarted(ctx context.Context, event source.ImportStartedEvent) error {
	return nil
}

func (f *FS) NotifyImportDone(ctx context.Context, event source.ImportDoneEvent) error {
	if f.onDone != nil {
		f.onDone(event)
	}
	return nil
}

func (f *FS) matches(p string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	for _, pattern := range f.patterns {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
		if ok, _ := path.Match(pattern, path.Base(p)); ok {
			return true
		}
	}
	return false
}

type fsIterator struct {
	source *FS
	walker *walker
	locker sync.Mutex
}

func (i *fsIterator) Next(ctx context.Context) (source.File, error) {
	i.locker.Lock()
	defer i.locker.Unlock()

	for i.walker.Next() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !i.source.matches(i.walker.Path()) {
			continue
		}

		size := int64(-1)
		if fileInfo, err := i.walker.Entry().Info(); err == nil {
			size = fileInfo.Size()
		}

		return &fsFile{
			fs:   i.source.fs,
			path: i.walker.Path(),
			size: size,
		}, nil
	}

	if i.walker.Err() != nil {
		return nil, errors.Join(errors.New("error while walking the file system"), i.walker.Err())
	}

	return nil, io.EOF
}

func (i *fsIterator) Close() error {
	return nil
}

// fsFile opens the underlying file on first read.
type fsFile struct {
	fs   fs.FS
	fp   fs.File
	path string
	size int64
}

func (h *fsFile) Path() string {
	return h.path
}

func (h *fsFile) Size() int64 {
	return h.size
}

func (h *fsFile) Close() error {
	if h.fp != nil {
		return h.fp.Close()
	}
	return nil
}

func (h *fsFile) Read(p []byte) (n int, err error) {
	if h.fp == nil {
		fp, err := h.fs.Open(h.path)
		if err != nil {
			return 0, errors.Join(errors.New("failed to open file for reading"), err)
		}
		h.fp = fp
	}

	return h.fp.Read(p)
}
