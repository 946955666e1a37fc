// Package testlib contains the behaviour every storage.Store must show. Store
// implementations run TestStore from their own tests.
package testlib

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"slices"
	"testing"

	"github.com/opengs/xmlsplit/splitter"
	"github.com/opengs/xmlsplit/storage"
)

func RandString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz" + "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

func RandSchemaName(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz"

	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

var testRoot = splitter.StartElement{
	LocalName:  "root",
	Namespaces: []splitter.Namespace{{Prefix: "gml", URI: "http://www.opengis.net/gml"}},
	Attributes: []splitter.Attribute{{LocalName: "version", Value: "1"}},
}

// Chunk builds a chunk with a single ancestor around content, the way the
// splitter would.
func Chunk(content string) ([]byte, splitter.ChunkMeta) {
	head := splitter.Prolog + testRoot.OpenTag()
	return []byte(head + content + testRoot.CloseTag()), splitter.ChunkMeta{
		Parents: []splitter.StartElement{testRoot},
		Start:   len(head),
		End:     len(head) + len(content),
	}
}

func add(t *testing.T, s storage.Store, content string, layer string, correlationID string) string {
	t.Helper()

	data, meta := Chunk(content)
	path, err := s.Add(t.Context(), data, meta, layer, correlationID)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func collect(t *testing.T, s storage.Store, search string, layer string) []storage.Item {
	t.Helper()

	cursor, err := s.Get(t.Context(), search, layer)
	if err != nil {
		t.Fatal(err)
	}
	defer cursor.Close()

	var items []storage.Item
	for cursor.Next(t.Context()) {
		items = append(items, cursor.Current())
	}
	if err := cursor.Err(); err != nil {
		t.Fatal(err)
	}
	return items
}

func paths(items []storage.Item) []string {
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = item.Path
	}
	return result
}

func TestStore(t *testing.T, s storage.Store) {
	t.Run("AddGetOne", func(t *testing.T) {
		layer := "/" + RandString(16)
		data, meta := Chunk(`<item id="1">one</item>`)

		path, err := s.Add(t.Context(), data, meta, layer, "corr1")
		if err != nil {
			t.Fatal(err)
		}
		if !storage.InLayer(path, layer) {
			t.Errorf("path %q is not inside layer %q", path, layer)
		}

		reader, err := s.GetOne(t.Context(), path)
		if err != nil {
			t.Fatal(err)
		}
		defer reader.Close()

		stored, err := io.ReadAll(reader)
		if err != nil {
			t.Fatal(err)
		}
		if string(stored) != string(data) {
			t.Errorf("expected %q, got %q", data, stored)
		}

		items := collect(t, s, "", layer)
		if len(items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(items))
		}
		item := items[0]
		if item.Path != path || item.Layer != storage.NormalizeLayer(layer) || item.CorrelationID != "corr1" {
			t.Errorf("unexpected item %+v", item)
		}
		if item.Meta.Start != meta.Start || item.Meta.End != meta.End || len(item.Meta.Parents) != 1 || item.Meta.Parents[0].OpenTag() != testRoot.OpenTag() {
			t.Errorf("metadata was not preserved: %+v", item.Meta)
		}
	})

	t.Run("GetOneUnknown", func(t *testing.T) {
		_, err := s.GetOne(t.Context(), "/"+RandString(16)+"/missing")
		if !errors.Is(err, storage.ErrChunkNotFound) {
			t.Errorf("expected ErrChunkNotFound, got %v", err)
		}
	})

	t.Run("Layers", func(t *testing.T) {
		base := "/" + RandString(16)
		a := add(t, s, "<a/>", base+"/a", "corr")
		ab := add(t, s, "<ab/>", base+"/a/b", "corr")
		c := add(t, s, "<c/>", base+"/c", "corr")
		add(t, s, "<other/>", base+"x/a", "corr")

		tests := []struct {
			layer string
			want  []string
		}{
			{layer: base, want: []string{a, ab, c}},
			{layer: base + "/a", want: []string{a, ab}},
			{layer: base + "/a/b/", want: []string{ab}},
			{layer: base + "/missing", want: nil},
		}
		for _, tt := range tests {
			got := paths(collect(t, s, "", tt.layer))
			slices.Sort(got)
			want := slices.Clone(tt.want)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Errorf("layer %s: expected %v, got %v", tt.layer, want, got)
			}
		}
	})

	t.Run("ImportOrder", func(t *testing.T) {
		layer := "/" + RandString(16)
		var want []string
		for i := range 10 {
			want = append(want, add(t, s, fmt.Sprintf("<item>%d</item>", i), layer, "corr"))
		}

		got := paths(collect(t, s, "", layer))
		if !slices.Equal(got, want) {
			t.Errorf("expected chunks in import order %v, got %v", want, got)
		}
	})

	t.Run("Search", func(t *testing.T) {
		layer := "/" + RandString(16)
		school := add(t, s, `<building kind="school">Elm street</building>`, layer, "corr")
		hall := add(t, s, `<building kind="hall">Oak street</building>`, layer, "corr")
		add(t, s, `<tree>Oak</tree>`, layer, "corr")

		tests := []struct {
			search string
			want   []string
		}{
			{search: "Elm", want: []string{school}},
			{search: "street missing", want: []string{school, hall}},
			{search: "//building[@kind='hall']", want: []string{hall}},
			{search: "xpath:/root/building", want: []string{school, hall}},
			{search: "version", want: nil},
		}
		for _, tt := range tests {
			got := paths(collect(t, s, tt.search, layer))
			if !slices.Equal(got, tt.want) {
				t.Errorf("search %q: expected %v, got %v", tt.search, tt.want, got)
			}
		}

		if _, err := s.Get(t.Context(), "//building[", layer); err == nil {
			t.Error("expected an error for an invalid query")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		layer := "/" + RandString(16)
		keep := add(t, s, "<keep/>", layer, "corr")
		drop := add(t, s, "<drop/>", layer+"/sub", "corr")
		add(t, s, "<drop/>", layer, "corr")

		deleted, err := s.Delete(t.Context(), "drop", layer)
		if err != nil {
			t.Fatal(err)
		}
		if deleted != 2 {
			t.Errorf("expected 2 deleted chunks, got %d", deleted)
		}

		if got := paths(collect(t, s, "", layer)); !slices.Equal(got, []string{keep}) {
			t.Errorf("expected only %s to remain, got %v", keep, got)
		}
		if _, err := s.GetOne(t.Context(), drop); !errors.Is(err, storage.ErrChunkNotFound) {
			t.Errorf("expected deleted chunk to be gone, got %v", err)
		}

		deleted, err = s.Delete(t.Context(), "", layer)
		if err != nil {
			t.Fatal(err)
		}
		if deleted != 1 {
			t.Errorf("expected 1 deleted chunk, got %d", deleted)
		}
	})
}
