package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"Inventory/internal/importer"
	"Inventory/internal/inventory"
	"Inventory/pkg/kit"
)

var (
	csvFile   string
	csvComma  string
	serverURL string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the product list with the rows of a CSV file",
	Long: `Reads a CSV export whose header row names the product fields (a codigo2
column is required) and replaces the whole product list with its rows.

With --url the list is sent to a running server, which broadcasts it to
subscribers. Without it the configured store is written directly.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&csvFile, "csv", "c", "", "CSV file to import (required)")
	importCmd.Flags().StringVar(&csvComma, "comma", ",", "CSV field separator")
	importCmd.Flags().StringVarP(&serverURL, "url", "u", "", "base URL of a running server, e.g. http://localhost:3000")
	_ = importCmd.MarkFlagRequired("csv")
}

func runImport(cmd *cobra.Command, _ []string) error {
	log := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	comma := []rune(csvComma)
	if len(comma) != 1 {
		return fmt.Errorf("--comma must be a single character, got %q", csvComma)
	}

	products, err := importer.NewParser(csvFile, comma[0]).ParseProducts()
	if err != nil {
		return fmt.Errorf("failed to parse CSV: %w", err)
	}
	log.Info("parsed products", zap.String("file", csvFile), zap.Int("count", len(products)))

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var total int
	if serverURL != "" {
		total, err = putProducts(ctx, serverURL, products)
	} else {
		total, err = replaceInStore(ctx, products, log)
	}
	if err != nil {
		return err
	}

	log.Info("import finished", zap.Int("total", total))
	return nil
}

func replaceInStore(ctx context.Context, products inventory.Collection, log *zap.Logger) (int, error) {
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return 0, err
	}
	defer closeStore()

	return inventory.NewService(store, nil, log).ReplaceAll(ctx, products)
}

func putProducts(ctx context.Context, baseURL string, products inventory.Collection) (int, error) {
	body, err := json.Marshal(products)
	if err != nil {
		return 0, err
	}

	url := strings.TrimRight(baseURL, "/") + "/products"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("put %s: status=%d body=%s", url, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return out.Total, nil
}
