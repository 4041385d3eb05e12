// Package catalog loads the redemption catalog from YAML and syncs it into
// the database.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/maycafe/internal/model"
)

//go:embed default.yaml
var defaultCatalog []byte

type Item struct {
	Name        string `yaml:"name"`
	Points      int    `yaml:"points"`
	Description string `yaml:"description"`
	Image       string `yaml:"image"`
	Stock       int    `yaml:"stock"`
	Inactive    bool   `yaml:"inactive"`
}

type File struct {
	Items []Item `yaml:"items"`
}

// ItemStore is the subset of store.RedemptionStore the seeder needs.
type ItemStore interface {
	GetItemByName(ctx context.Context, name string) (*model.RedemptionItem, error)
	CreateItem(ctx context.Context, it model.RedemptionItem) (*model.RedemptionItem, error)
	UpdateItem(ctx context.Context, id int64, pointsRequired int, description, image string, stock int, active bool) error
	DeactivateAllItems(ctx context.Context) (int64, error)
}

// Default returns the built-in catalog.
func Default() ([]Item, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file. An empty path means the built-in catalog.
func Load(path string) ([]Item, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]Item, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(f.Items))
	for i := range f.Items {
		it := &f.Items[i]
		it.Name = strings.TrimSpace(it.Name)
		switch {
		case it.Name == "":
			return nil, fmt.Errorf("catalog item %d: name is required", i+1)
		case it.Points <= 0:
			return nil, fmt.Errorf("catalog item %q: points must be positive", it.Name)
		case it.Stock < 0:
			return nil, fmt.Errorf("catalog item %q: stock must not be negative", it.Name)
		case seen[it.Name]:
			return nil, fmt.Errorf("catalog item %q: duplicate name", it.Name)
		}
		seen[it.Name] = true
	}
	return f.Items, nil
}

type Result struct {
	Created     int
	Updated     int
	Deactivated int64
}

// Seed upserts items by name. With replace set, every existing item is
// deactivated first so only the listed ones stay on offer. Rows are never
// deleted since redemptions reference them.
//
// Callers wanting all-or-nothing behaviour pass a store bound to a tx.
func Seed(ctx context.Context, st ItemStore, items []Item, replace bool) (Result, error) {
	var res Result

	if replace {
		n, err := st.DeactivateAllItems(ctx)
		if err != nil {
			return res, err
		}
		res.Deactivated = n
	}

	for _, it := range items {
		existing, err := st.GetItemByName(ctx, it.Name)
		if err != nil {
			return res, err
		}
		if existing == nil {
			_, err := st.CreateItem(ctx, model.RedemptionItem{
				Name:           it.Name,
				PointsRequired: it.Points,
				Description:    it.Description,
				Image:          it.Image,
				Stock:          it.Stock,
				Active:         !it.Inactive,
			})
			if err != nil {
				return res, fmt.Errorf("create %q: %w", it.Name, err)
			}
			res.Created++
			continue
		}
		if err := st.UpdateItem(ctx, existing.ID, it.Points, it.Description, it.Image, it.Stock, !it.Inactive); err != nil {
			return res, fmt.Errorf("update %q: %w", it.Name, err)
		}
		res.Updated++
	}

	return res, nil
}
