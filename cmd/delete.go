package main

import (
	"github.com/spf13/cobra"
)

var deleteCMD = &cobra.Command{
	Use:   "delete [layer]",
	Short: "Delete chunks",
	Long:  "Delete the chunks of a layer that match the query. Without a query the whole layer is removed.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}

		search, _ := cmd.Flags().GetString("query")
		return c.Delete(cmd.Context(), search, layerArg(args))
	},
}

func init() {
	addClientFlags(deleteCMD)
}
