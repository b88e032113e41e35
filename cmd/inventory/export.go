package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"Inventory/pkg/kit"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the stored product list as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := kit.NewLogger(service, cfg.LogLevel)
		defer func() { _ = log.Sync() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		store, closeStore, err := openStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		doc, err := store.Load(ctx)
		if err != nil {
			log.Error("load failed", zap.Error(err))
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	},
}
