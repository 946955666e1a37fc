package fs

import (
	"io/fs"
	"path"
	"strings"
)

// walker visits the files below root in lexical order without holding more
// than one directory listing per level. Hidden directories are not entered.
type walker struct {
	fsys    fs.FS
	pending []entry
	cur     entry
	err     error
}

type entry struct {
	path string
	info fs.DirEntry
}

func newWalker(fsys fs.FS, root string) *walker {
	w := &walker{fsys: fsys}

	info, err := fs.Stat(fsys, root)
	if err != nil {
		w.err = err
		return w
	}
	w.pending = []entry{{path: root, info: fs.FileInfoToDirEntry(info)}}
	return w
}

// Next moves to the next regular file. It returns false at the end of the
// tree or on the first error, which is then reported by Err.
func (w *walker) Next() bool {
	for w.err == nil && len(w.pending) > 0 {
		last := len(w.pending) - 1
		w.cur = w.pending[last]
		w.pending = w.pending[:last]

		if !w.cur.info.IsDir() {
			if w.cur.info.Type().IsRegular() {
				return true
			}
			continue
		}
		if isHidden(w.cur.path) {
			continue
		}

		children, err := fs.ReadDir(w.fsys, w.cur.path)
		if err != nil {
			w.err = err
			return false
		}
		// pushed in reverse so the first name is visited first
		for i := len(children) - 1; i >= 0; i-- {
			w.pending = append(w.pending, entry{path: path.Join(w.cur.path, children[i].Name()), info: children[i]})
		}
	}
	return false
}

func (w *walker) Path() string {
	return w.cur.path
}

func (w *walker) Entry() fs.DirEntry {
	return w.cur.info
}

func (w *walker) Err() error {
	return w.err
}

func isHidden(p string) bool {
	name := path.Base(p)
	return len(name) > 1 && strings.HasPrefix(name, ".") && name != ".."
}
