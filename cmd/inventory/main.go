package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"Inventory/internal/config"
)

const service = "inventory"

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           service,
	Short:         "Real-time product inventory service",
	Long:          "Stores products in a single JSON document and pushes the full list to websocket subscribers after every change.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(serveCmd, importCmd, exportCmd)
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env not loaded:", err)
	}
	cfg = config.Load()
}
