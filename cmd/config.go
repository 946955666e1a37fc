package main

import (
	"github.com/opengs/xmlsplit/config"
	"github.com/spf13/cobra"
)

// loadConfig reads the configuration file and applies the flags the user set
// explicitly on top of it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	// flags a command does not define are never changed
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("store") {
		cfg.Store.Driver, _ = flags.GetString("store")
	}
	if flags.Changed("policy") {
		cfg.Split.Policy, _ = flags.GetString("policy")
	}
	if flags.Changed("element") {
		cfg.Split.Elements, _ = flags.GetStringSlice("element")
	}
	if flags.Changed("layer") {
		cfg.Import.Layer, _ = flags.GetString("layer")
	}
	if flags.Changed("parallelism") {
		cfg.Import.Parallelism, _ = flags.GetInt("parallelism")
	}
	if flags.Changed("pattern") {
		cfg.Import.Patterns, _ = flags.GetStringSlice("pattern")
	}

	return cfg, cfg.Validate()
}

func addSplitFlags(cmd *cobra.Command) {
	cmd.Flags().String("policy", "", "Split policy: firstlevel or element")
	cmd.Flags().StringSlice("element", nil, "Element names that become chunks with the element policy")
}
