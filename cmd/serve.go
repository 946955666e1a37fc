package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/opengs/xmlsplit"
	"github.com/opengs/xmlsplit/server"
	"github.com/spf13/cobra"
)

var serveCMD = &cobra.Command{
	Use:   "serve",
	Short: "Start the store HTTP server",
	Long:  "Start the store HTTP server. Documents posted to /store/<layer> are split and stored, GET merges the selected chunks back into one document.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := cfg.Log.Logger(os.Stderr)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, closeStore, err := openStore(ctx, cfg.Store, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		engine, err := xmlsplit.New(cfg, store, logger)
		if err != nil {
			return err
		}

		if err := server.New(store, engine, logger).Run(ctx, cfg.Server.Addr(), cfg.Server.ShutdownTimeout); err != nil {
			return errors.Join(errors.New("failed to run HTTP server"), err)
		}
		return nil
	},
}

func init() {
	serveCMD.Flags().String("host", "", "Host server will be listening on")
	serveCMD.Flags().Int("port", 0, "Port server will be listening on")
	serveCMD.Flags().String("store", "", "Store driver: memory, postgres or s3")
	addSplitFlags(serveCMD)
}
