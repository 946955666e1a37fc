package migrations

import (
	"embed"
	"errors"
	"io"
	"io/fs"
	"strings"

	"github.com/psanford/memfs"
)

//go:embed *.sql
var migrations embed.FS

// PrepareMigrations renders the embedded migrations for the given schema and
// table prefix.
func PrepareMigrations(schema string, prefix string) (fs.FS, error) {
	rootFS := memfs.New()

	entries, err := migrations.ReadDir(".")
	if err != nil {
		return nil, errors.Join(errors.New("failed to read migrations directory"), err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		fileData, err := readMigration(entry.Name())
		if err != nil {
			return nil, errors.Join(errors.New("failed to read migration "+entry.Name()), err)
		}

		replacer := strings.NewReplacer("SCHEMA_NAME", schema, "DATABASE_PREFIX_", prefix)
		if err := rootFS.WriteFile(entry.Name(), []byte(replacer.Replace(string(fileData))), 0755); err != nil {
			return nil, err
		}
	}

	return rootFS, nil
}

func readMigration(name string) ([]byte, error) {
	file, err := migrations.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}
