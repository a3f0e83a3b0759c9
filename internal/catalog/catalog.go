package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/five82/orderdesk/internal/rowmap"
)

// DefaultSort places rows without a sort value, and products in unknown
// categories, after everything else.
const DefaultSort = 9999

// Category groups products in the ordering wizard.
type Category struct {
	Category    string  `json:"category"`
	DisplayName string  `json:"display_name"`
	Sort        float64 `json:"sort"`
}

// Product is one orderable line.
type Product struct {
	ItemNo   string  `json:"item_no"`
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Unit     string  `json:"unit"`
	PackSize string  `json:"pack_size"`
	Sort     float64 `json:"sort"`
}

// Snapshot is the cached catalog. UpdatedAt is the server's freshness stamp;
// CachedAt is when this process fetched it.
type Snapshot struct {
	Categories []Category `json:"categories"`
	Products   []Product  `json:"products"`
	UpdatedAt  string     `json:"updated_at"`
	CachedAt   time.Time  `json:"cached_at"`
}

// Stale reports whether the snapshot is older than ttl. A zero ttl never
// expires.
func (s Snapshot) Stale(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	if s.CachedAt.IsZero() {
		return true
	}
	return now.Sub(s.CachedAt) > ttl
}

// Empty reports whether the snapshot holds no products.
func (s Snapshot) Empty() bool {
	return len(s.Products) == 0
}

// BySKU indexes products for lookups from orders and drafts.
func (s Snapshot) BySKU() map[string]Product {
	out := make(map[string]Product, len(s.Products))
	for _, p := range s.Products {
		out[p.SKU] = p
	}
	return out
}

// NormalizeCategories drops rows that are not objects, are inactive, have no
// key, or repeat an earlier key, and orders the rest by sort.
func NormalizeCategories(rows []any) []Category {
	seen := make(map[string]bool, len(rows))
	out := make([]Category, 0, len(rows))
	for _, raw := range rows {
		row, err := rowmap.Parse(raw)
		if err != nil {
			continue
		}
		key := row.String(rowmap.FieldCategory)
		if key == "" || seen[key] || !row.Bool(rowmap.FieldActive, true) {
			continue
		}
		seen[key] = true
		display := row.String(rowmap.FieldDisplayName)
		if display == "" {
			display = key
		}
		out = append(out, Category{
			Category:    key,
			DisplayName: display,
			Sort:        row.Float(rowmap.FieldSort, DefaultSort),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sort < out[j].Sort })
	return out
}

// NormalizeProducts drops rows missing sku, name, or category, inactive rows,
// and repeated SKUs (the first row wins).
func NormalizeProducts(rows []any) []Product {
	seen := make(map[string]bool, len(rows))
	out := make([]Product, 0, len(rows))
	for _, raw := range rows {
		row, err := rowmap.Parse(raw)
		if err != nil {
			continue
		}
		p := Product{
			ItemNo:   row.String(rowmap.FieldItemNo),
			SKU:      row.String(rowmap.FieldSKU),
			Name:     row.String(rowmap.FieldName),
			Category: row.String(rowmap.FieldCategory),
			Unit:     row.String(rowmap.FieldUnit),
			PackSize: row.String(rowmap.FieldPackSize),
			Sort:     row.Float(rowmap.FieldSort, DefaultSort),
		}
		if p.SKU == "" || p.Name == "" || p.Category == "" {
			continue
		}
		if seen[p.SKU] || !row.Bool(rowmap.FieldActive, true) {
			continue
		}
		seen[p.SKU] = true
		out = append(out, p)
	}
	return out
}

// Steps orders products for the wizard: category sort, then product sort,
// then case-insensitive name. When no categories were supplied they are
// derived from the products alphabetically.
func Steps(s Snapshot) []Product {
	categories := s.Categories
	if len(categories) == 0 {
		categories = DeriveCategories(s.Products)
	}
	rank := make(map[string]float64, len(categories))
	for _, c := range categories {
		rank[c.Category] = c.Sort
	}
	catSort := func(p Product) float64 {
		if v, ok := rank[p.Category]; ok {
			return v
		}
		return DefaultSort
	}

	steps := append([]Product(nil), s.Products...)
	sort.SliceStable(steps, func(i, j int) bool {
		a, b := steps[i], steps[j]
		if ca, cb := catSort(a), catSort(b); ca != cb {
			return ca < cb
		}
		if a.Sort != b.Sort {
			return a.Sort < b.Sort
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return steps
}

// DeriveCategories builds categories from product category names, sorted
// alphabetically and spaced by ten.
func DeriveCategories(products []Product) []Category {
	seen := make(map[string]bool)
	var names []string
	for _, p := range products {
		if p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		names = append(names, p.Category)
	}
	sort.Slice(names, func(i, j int) bool { return strings.ToLower(names[i]) < strings.ToLower(names[j]) })
	out := make([]Category, len(names))
	for i, name := range names {
		out[i] = Category{Category: name, DisplayName: name, Sort: float64(i * 10)}
	}
	return out
}

// DisplayName resolves a category key to its label.
func (s Snapshot) DisplayName(category string) string {
	for _, c := range s.Categories {
		if c.Category == category {
			return c.DisplayName
		}
	}
	return category
}
