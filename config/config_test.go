package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}

	factory, err := Default().Split.PolicyFactory()
	if err != nil || factory == nil {
		t.Fatalf("default split policy cannot be resolved: %v", err)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  port: 8080
  shutdownTimeout: 3s
store:
  driver: postgres
  postgres:
    url: postgres://localhost/xmlsplit
split:
  policy: element
  elements: [featureMember, "gml:featureMember"]
import:
  parallelism: 8
log:
  level: debug
  format: json
`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr() != "127.0.0.1:8080" || cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Store.Postgres.Prefix != "xmlsplit_" {
		t.Errorf("defaults must survive partial files, got prefix %q", cfg.Store.Postgres.Prefix)
	}
	if len(cfg.Split.Elements) != 2 || cfg.Import.Parallelism != 8 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if _, err := cfg.Split.PolicyFactory(); err != nil {
		t.Error(err)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "Unknown field", yaml: "server:\n  hots: x\n"},
		{name: "Port", yaml: "server:\n  port: 70000\n"},
		{name: "Driver", yaml: "store:\n  driver: mongo\n"},
		{name: "Postgres without url", yaml: "store:\n  driver: postgres\n"},
		{name: "S3 without bucket", yaml: "store:\n  driver: s3\n"},
		{name: "Element policy without names", yaml: "split:\n  policy: element\n"},
		{name: "First level with names", yaml: "split:\n  elements: [a]\n"},
		{name: "Parallelism", yaml: "import:\n  parallelism: 0\n"},
		{name: "Log format", yaml: "log:\n  format: xml\n"},
		{name: "Syntax", yaml: "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Errorf("expected an error for %q", tt.yaml)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("unexpected default driver %q", cfg.Store.Driver)
	}

	path := filepath.Join(t.TempDir(), "xmlsplit.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected level warn, got %q", cfg.Log.Level)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Log{Level: "warn", Format: "json"}.Logger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "chunks", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info must be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"chunks":3`) {
		t.Errorf("unexpected json log line: %s", out)
	}
}
