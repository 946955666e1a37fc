package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/opengs/xmlsplit"
	"github.com/opengs/xmlsplit/client"
	"github.com/opengs/xmlsplit/source"
	"github.com/opengs/xmlsplit/source/fs"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"
)

var importCMD = &cobra.Command{
	Use:   "import <file or directory>...",
	Short: "Import XML documents",
	Long: "Split XML documents and store their chunks. Directories are walked recursively and filtered by the import patterns. " +
		"With --url the documents are uploaded to a running server, otherwise they are written to the configured store directly.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := cfg.Log.Logger(os.Stderr)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var failed atomic.Int64
		onDone := func(ev source.ImportDoneEvent) {
			switch ev.Reason {
			case source.ImportOk:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks (%s)\n", ev.Path, ev.Chunks, ev.CorrelationID)
			case source.ImportSkipped:
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: skipped, not an XML document\n", ev.Path)
			default:
				failed.Inc()
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", ev.Path, ev.Error)
			}
		}

		var sources []source.Source
		for _, arg := range args {
			src, err := pathSource(arg, cfg.Import.Patterns, onDone)
			if err != nil {
				return err
			}
			sources = append(sources, src)
		}

		storeURL, _ := cmd.Flags().GetString("url")
		if storeURL != "" {
			c, err := client.New(storeURL)
			if err != nil {
				return err
			}
			for _, src := range sources {
				if err := upload(ctx, c, src, cfg.Import.Layer); err != nil {
					return err
				}
			}
		} else {
			store, closeStore, err := openStore(ctx, cfg.Store, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			engine, err := xmlsplit.New(cfg, store, logger, sources...)
			if err != nil {
				return err
			}
			// per document failures are reported through onDone
			if err := engine.Process(ctx); err != nil && failed.Load() == 0 {
				return err
			}
			stats := engine.Stats()
			logger.Info("import finished", "documents", stats.Documents, "chunks", stats.Chunks, "failed", stats.Failed, "skipped", stats.Skipped)
		}

		if n := failed.Load(); n > 0 {
			return fmt.Errorf("%d documents failed to import", n)
		}
		return nil
	},
}

func init() {
	importCMD.Flags().String("url", "", "Base URL of a running xmlsplit server")
	importCMD.Flags().String("layer", "", "Layer the chunks are stored in")
	importCMD.Flags().Int("parallelism", 0, "Number of documents imported at the same time")
	importCMD.Flags().StringSlice("pattern", nil, "Glob patterns selecting files in directories")
	importCMD.Flags().String("store", "", "Store driver: memory, postgres or s3")
	addSplitFlags(importCMD)
}

// pathSource turns a command line argument into a source. A single file is
// always imported, patterns only filter directories.
func pathSource(arg string, patterns []string, onDone func(source.ImportDoneEvent)) (source.Source, error) {
	info, err := os.Stat(arg)
	if err != nil {
		return nil, errors.Join(errors.New("failed to open import path"), err)
	}

	dir, root := arg, "."
	options := []fs.Option{fs.WithDoneHandler(onDone)}
	if info.IsDir() {
		options = append(options, fs.WithPatterns(patterns...))
	} else {
		dir, root = filepath.Dir(arg), filepath.Base(arg)
	}

	src, err := fs.New(os.DirFS(dir), root, arg, options...)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// upload sends every document of src to the server one after another.
func upload(ctx context.Context, c *client.Client, src source.Source, layer string) error {
	iterator, err := src.Open()
	if err != nil {
		return err
	}
	defer iterator.Close()

	for {
		f, err := iterator.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		result, err := c.Import(ctx, f, f.Path(), layer)
		f.Close()

		ev := source.ImportDoneEvent{Path: f.Path(), CorrelationID: result.CorrelationID, Chunks: result.Chunks, Reason: source.ImportOk}
		var storeErr *client.Error
		switch {
		case errors.As(err, &storeErr) && storeErr.StatusCode == http.StatusUnsupportedMediaType:
			ev.Reason = source.ImportSkipped
		case err != nil:
			ev.Reason, ev.Error = source.ImportError, err
		}
		if err := src.NotifyImportDone(ctx, ev); err != nil {
			return err
		}
	}
}
