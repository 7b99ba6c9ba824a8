package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/onnwee/marketrank/internal/listing"
)

// LoadSeed reads a JSON array of products from path and stores each one in
// repo. Invalid products are logged and skipped. It returns the number of
// products stored.
func LoadSeed(ctx context.Context, repo Repository, path string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog seed %s: %w", path, err)
	}

	var products []listing.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return 0, fmt.Errorf("parse catalog seed %s: %w", path, err)
	}

	stored := 0
	for i := range products {
		p := &products[i]
		if err := Validate(p); err != nil {
			logger.WarnContext(ctx, "skipping invalid seed listing", "index", i, "id", p.ID, "error", err)
			continue
		}
		if err := repo.Put(ctx, p); err != nil {
			return stored, fmt.Errorf("store seed listing %q: %w", p.ID, err)
		}
		stored++
	}

	logger.InfoContext(ctx, "catalog seed loaded", "path", path, "stored", stored, "skipped", len(products)-stored)
	return stored, nil
}
