package xmlchunk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/opengs/xmlsplit/chunker"
	"github.com/opengs/xmlsplit/policy"
	"github.com/opengs/xmlsplit/splitter"
)

func collect(ctx context.Context, it chunker.ChunkIterator) []chunker.Chunk {
	var chunks []chunker.Chunk
	for it.Next(ctx) {
		chunks = append(chunks, it.Current())
	}
	return chunks
}

func TestGenerateChunks(t *testing.T) {
	c := New(func() splitter.Policy { return policy.NewFirstLevel() })
	doc := `<?xml version="1.0"?><root xmlns:x="urn:x"><x:a>1</x:a><b/></root>`

	chunks := collect(t.Context(), c.GenerateChunks(t.Context(), strings.NewReader(doc), "doc.xml"))
	if len(chunks) != 4 {
		t.Fatalf("expected start, 2 data and end chunks, got %d", len(chunks))
	}

	if chunks[0].Start == nil || chunks[0].Start.FilePath != "doc.xml" {
		t.Errorf("first chunk must be the start chunk, got %+v", chunks[0])
	}

	want := []string{
		splitter.Prolog + `<root xmlns:x="urn:x"><x:a>1</x:a></root>`,
		splitter.Prolog + `<root xmlns:x="urn:x"><b/></root>`,
	}
	for i, w := range want {
		data := chunks[i+1].Data
		if data == nil {
			t.Fatalf("chunk %d is not a data chunk", i+1)
		}
		if string(data.Data) != w {
			t.Errorf("chunk %d: expected %q, got %q", i+1, w, data.Data)
		}
		if len(data.Meta.Parents) != 1 || data.Meta.Parents[0].Name() != "root" {
			t.Errorf("chunk %d: unexpected parents %+v", i+1, data.Meta.Parents)
		}
	}

	end := chunks[3].End
	if end == nil || end.Error != nil || end.Chunks != 2 {
		t.Errorf("unexpected end chunk %+v", end)
	}
}

func TestGenerateChunksTruncated(t *testing.T) {
	c := New(func() splitter.Policy { return policy.NewElementName("item") })
	doc := `<root><item>1</item><item>2`

	chunks := collect(t.Context(), c.GenerateChunks(t.Context(), strings.NewReader(doc), "broken.xml"))
	if len(chunks) != 3 {
		t.Fatalf("expected start, data and end chunks, got %d", len(chunks))
	}

	end := chunks[2].End
	if end == nil {
		t.Fatal("last chunk must be the end chunk")
	}
	var unterminated *splitter.UnterminatedChunkError
	if !errors.As(end.Error, &unterminated) {
		t.Errorf("expected an unterminated chunk error, got %v", end.Error)
	}
	if end.Chunks != 1 {
		t.Errorf("expected 1 emitted chunk, got %d", end.Chunks)
	}
}

func TestGenerateChunksCanceled(t *testing.T) {
	c := New(func() splitter.Policy { return policy.NewFirstLevel() })
	ctx, cancel := context.WithCancel(t.Context())

	it := c.GenerateChunks(ctx, strings.NewReader(`<root><a/><b/></root>`), "doc.xml")
	if !it.Next(ctx) || it.Current().Start == nil {
		t.Fatal("expected the start chunk")
	}
	cancel()

	if !it.Next(ctx) {
		t.Fatal("expected the end chunk")
	}
	if end := it.Current().End; end == nil || !errors.Is(end.Error, context.Canceled) {
		t.Errorf("expected a canceled end chunk, got %+v", it.Current())
	}
	if it.Next(ctx) {
		t.Error("iterator must stop after the end chunk")
	}
}

// itemStream produces a large document without holding it in memory.
func itemStream(items int) io.Reader {
	readers := []io.Reader{strings.NewReader(`<root>`)}
	for i := range items {
		readers = append(readers, strings.NewReader(fmt.Sprintf(`<item n="%d">%s</item>`, i, strings.Repeat("x", 64))))
	}
	readers = append(readers, strings.NewReader(`</root>`))
	return io.MultiReader(readers...)
}

func TestGenerateChunksRetainsBoundedMemory(t *testing.T) {
	const items = 20000
	c := New(func() splitter.Policy { return policy.NewFirstLevel() })

	it := c.GenerateChunks(t.Context(), itemStream(items), "large.xml").(*chunkIterator)
	count := 0
	maxRetained := 0
	for it.Next(t.Context()) {
		if chunk := it.Current(); chunk.Data != nil {
			count++
		} else if chunk.End != nil && chunk.End.Error != nil {
			t.Fatal(chunk.End.Error)
		}
		maxRetained = max(maxRetained, it.window.Retained())
	}

	if count != items {
		t.Errorf("expected %d chunks, got %d", items, count)
	}
	if maxRetained > 1024 {
		t.Errorf("window retained %d bytes, expected at most one chunk", maxRetained)
	}
}
