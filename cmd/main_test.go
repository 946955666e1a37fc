package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opengs/xmlsplit/splitter"
)

// Commands are package globals and keep their flag values between runs, so
// every test sets the flags it depends on.
func TestSplitCommand(t *testing.T) {
	dir := t.TempDir()
	document := filepath.Join(dir, "doc.xml")
	if err := os.WriteFile(document, []byte(`<root><a/><b x="1">text</b></root>`), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	mainCMD.SetOut(&out)
	mainCMD.SetErr(&out)
	mainCMD.SetArgs([]string{"split", document, "--out=", "--config="})
	if err := mainCMD.Execute(); err != nil {
		t.Fatal(err)
	}

	want := splitter.Prolog + "<root><a/></root>\n" + splitter.Prolog + `<root><b x="1">text</b></root>` + "\n"
	if out.String() != want {
		t.Errorf("expected\n%s\ngot\n%s", want, out.String())
	}
}

func TestSplitCommandToDirectory(t *testing.T) {
	dir := t.TempDir()
	document := filepath.Join(dir, "doc.xml")
	if err := os.WriteFile(document, []byte(`<root><item>1</item><item>2</item><other/></root>`), 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "chunks")
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("split:\n  policy: element\n  elements: [item]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	mainCMD.SetOut(&out)
	mainCMD.SetErr(&out)
	mainCMD.SetArgs([]string{"split", document, "--out", outDir, "--config", configPath})
	if err := mainCMD.Execute(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 chunk files, got %d", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(outDir, "000002.xml"))
	if err != nil {
		t.Fatal(err)
	}
	if want := splitter.Prolog + "<root><item>2</item></root>"; string(data) != want {
		t.Errorf("expected %q, got %q", want, data)
	}
	if !strings.Contains(out.String(), "2 chunks written") {
		t.Errorf("unexpected summary %q", out.String())
	}
}

func TestSplitCommandFailsOnTruncatedDocument(t *testing.T) {
	dir := t.TempDir()
	document := filepath.Join(dir, "doc.xml")
	if err := os.WriteFile(document, []byte(`<root><a/><b>`), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	mainCMD.SetOut(&out)
	mainCMD.SetErr(&out)
	mainCMD.SetArgs([]string{"split", document, "--out=", "--config="})
	if err := mainCMD.Execute(); err == nil {
		t.Fatal("expected an error for a truncated document")
	}
}

func TestLayerArg(t *testing.T) {
	if got := layerArg(nil); got != "/" {
		t.Errorf("expected the root layer, got %q", got)
	}
	if got := layerArg([]string{"a/b"}); got != "a/b" {
		t.Errorf("expected a/b, got %q", got)
	}
}
