package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opengs/xmlsplit/chunker/xmlchunk"
	"github.com/opengs/xmlsplit/xmlevent"
	"github.com/spf13/cobra"
)

var splitCMD = &cobra.Command{
	Use:   "split <file>",
	Short: "Split a document without storing it",
	Long:  "Split an XML document and write every chunk to its own file in the output directory, or to stdout separated by new lines.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		factory, err := cfg.Split.PolicyFactory()
		if err != nil {
			return err
		}

		var options []xmlchunk.Option
		if cfg.Split.BufferSize > 0 {
			options = append(options, xmlchunk.WithReaderOptions(xmlevent.WithBufferSize(cfg.Split.BufferSize)))
		}

		document, err := os.Open(args[0])
		if err != nil {
			return errors.Join(errors.New("failed to open document"), err)
		}
		defer document.Close()

		outDir, _ := cmd.Flags().GetString("out")
		if outDir != "" {
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return errors.Join(errors.New("failed to create output directory"), err)
			}
		}

		ctx := cmd.Context()
		chunks := xmlchunk.New(factory, options...).GenerateChunks(ctx, document, args[0])
		written := 0
		for chunks.Next(ctx) {
			chunk := chunks.Current()
			if chunk.Error != nil {
				return chunk.Error
			}
			if chunk.End != nil && chunk.End.Error != nil {
				return errors.Join(fmt.Errorf("document split after %d chunks", chunk.End.Chunks), chunk.End.Error)
			}
			if chunk.Data == nil {
				continue
			}

			written++
			if outDir == "" {
				out := cmd.OutOrStdout()
				if _, err := out.Write(chunk.Data.Data); err != nil {
					return err
				}
				if _, err := out.Write([]byte("\n")); err != nil {
					return err
				}
				continue
			}

			name := filepath.Join(outDir, fmt.Sprintf("%06d.xml", written))
			if err := os.WriteFile(name, chunk.Data.Data, 0o644); err != nil {
				return errors.Join(errors.New("failed to write chunk"), err)
			}
		}

		if outDir != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d chunks written to %s\n", written, outDir)
		}
		return nil
	},
}

func init() {
	splitCMD.Flags().StringP("out", "o", "", "Directory the chunks are written to, stdout when empty")
	addSplitFlags(splitCMD)
}
