// Package config loads the configuration of the xmlsplit binary.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/opengs/xmlsplit/policy"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

type Config struct {
	Server Server `yaml:"server"`
	Store  Store  `yaml:"store"`
	Split  Split  `yaml:"split"`
	Import Import `yaml:"import"`
	Log    Log    `yaml:"log"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
	// Time given to running requests on shutdown
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Store struct {
	Driver   string   `yaml:"driver" validate:"oneof=memory postgres s3"`
	Postgres Postgres `yaml:"postgres"`
	S3       S3       `yaml:"s3"`
}

type Postgres struct {
	URL    string `yaml:"url"`
	Schema string `yaml:"schema" validate:"omitempty,alphanum"`
	Prefix string `yaml:"prefix" validate:"omitempty,printascii"`
}

type S3 struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	// Custom endpoint, for example a local MinIO
	Endpoint     string `yaml:"endpoint" validate:"omitempty,url"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

type Split struct {
	Policy   string   `yaml:"policy" validate:"oneof=firstlevel element"`
	Elements []string `yaml:"elements" validate:"dive,required"`
	// Read buffer of the XML decoder in bytes, 0 for the default
	BufferSize int `yaml:"bufferSize" validate:"min=0"`
}

// PolicyFactory resolves the configured split policy.
func (s Split) PolicyFactory() (policy.Factory, error) {
	return policy.ByName(s.Policy, s.Elements)
}

type Import struct {
	// Number of documents imported at the same time
	Parallelism int `yaml:"parallelism" validate:"min=1,max=256"`
	// Glob patterns selecting the files of a directory import
	Patterns []string `yaml:"patterns"`
	Layer    string   `yaml:"layer"`
}

type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Logger builds the structured logger described by the configuration.
func (l Log) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	options := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

func Default() Config {
	return Config{
		Server: Server{
			Host:            "127.0.0.1",
			Port:            63020,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: Store{
			Driver: DriverMemory,
			Postgres: Postgres{
				Schema: "public",
				Prefix: "xmlsplit_",
			},
		},
		Split: Split{
			Policy: policy.NameFirstLevel,
		},
		Import: Import{
			Parallelism: 4,
			Patterns:    []string{"*.xml", "*.gml"},
			Layer:       "/",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML configuration file on top of the defaults and validates
// the result. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Join(errors.New("failed to read configuration file"), err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Join(errors.New("failed to parse configuration"), err)
	}

	return cfg, cfg.Validate()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateStore, Store{})
	v.RegisterStructValidation(validateSplit, Split{})
	return v
}

func validateStore(sl validator.StructLevel) {
	store := sl.Current().Interface().(Store)
	switch store.Driver {
	case DriverPostgres:
		if store.Postgres.URL == "" {
			sl.ReportError(store.Postgres.URL, "Postgres.URL", "url", "required_for_driver", DriverPostgres)
		}
	case DriverS3:
		if store.S3.Bucket == "" {
			sl.ReportError(store.S3.Bucket, "S3.Bucket", "bucket", "required_for_driver", DriverS3)
		}
	}
}

func validateSplit(sl validator.StructLevel) {
	split := sl.Current().Interface().(Split)
	if split.Policy == policy.NameElement && len(split.Elements) == 0 {
		sl.ReportError(split.Elements, "Elements", "elements", "required_for_policy", policy.NameElement)
	}
	if split.Policy == policy.NameFirstLevel && len(split.Elements) > 0 {
		sl.ReportError(split.Elements, "Elements", "elements", "excluded_for_policy", policy.NameFirstLevel)
	}
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Join(errors.New("invalid configuration"), err)
	}
	return nil
}
