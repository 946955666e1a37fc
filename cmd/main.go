package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var mainCMD = &cobra.Command{
	Use:   "xmlsplit",
	Short: "Split XML documents into chunks",
	Long:  "Splits large XML documents into self-contained chunks, stores them and merges selected chunks back into one document.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	mainCMD.PersistentFlags().String("config", "", "Path to the YAML configuration file")
	mainCMD.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	mainCMD.PersistentFlags().String("log-format", "", "Log format: text or json")

	mainCMD.AddCommand(serveCMD)
	mainCMD.AddCommand(importCMD)
	mainCMD.AddCommand(exportCMD)
	mainCMD.AddCommand(deleteCMD)
	mainCMD.AddCommand(splitCMD)
}

func main() {
	if err := mainCMD.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
