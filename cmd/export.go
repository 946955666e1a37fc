package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/opengs/xmlsplit/client"
	"github.com/spf13/cobra"
)

const defaultServerURL = "http://127.0.0.1:63020"

var exportCMD = &cobra.Command{
	Use:   "export [layer]",
	Short: "Export chunks as one XML document",
	Long:  "Request the chunks of a layer that match the query from a running server and write the merged document to stdout.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := newClient(cmd)
		if err != nil {
			return err
		}

		search, _ := cmd.Flags().GetString("query")
		stream, err := c.Export(ctx, search, layerArg(args))
		if err != nil {
			return err
		}
		defer stream.Close()

		_, err = stream.WriteTo(cmd.OutOrStdout())
		return err
	},
}

func init() {
	addClientFlags(exportCMD)
}

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", defaultServerURL, "Base URL of the xmlsplit server")
	cmd.Flags().StringP("query", "q", "", "Search terms or an XPath expression prefixed with xpath:")
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	url, _ := cmd.Flags().GetString("url")
	return client.New(url)
}

func layerArg(args []string) string {
	if len(args) == 0 {
		return "/"
	}
	return args[0]
}
