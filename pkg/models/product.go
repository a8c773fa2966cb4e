// Package models defines the domain entities shared across the processing
// pipeline: products, brands, versions, SCD-2 facts, SQUOR scores, and the
// workflow queue. These are plain structs persisted by pkg/repository; the
// package itself performs no I/O.
package models

import "time"

// Brand is a normalized brand identity, created on demand the first time a
// new brand name is encountered (spec.md §3).
type Brand struct {
	ID             string    `json:"id"`
	NormalizedName string    `json:"normalized_name"`
	DisplayName    string    `json:"display_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Product is the durable identity a ProductVersion history hangs off of. It
// is created on first discovery and never deleted by the core; IsActive
// allows it to be retired without losing version history (expansion, see
// SPEC_FULL.md §3).
type Product struct {
	ID                  string            `json:"id"`
	BrandID             string            `json:"brand_id"`
	Name                string            `json:"name"`
	UniqueKey           string            `json:"unique_key"`
	PrimaryImageURL     string            `json:"primary_image_url,omitempty"`
	RetailerProductIDs  map[string]string `json:"retailer_product_ids,omitempty"`
	LatestVersionID     string            `json:"latest_version_id,omitempty"`
	LatestContentHash   string            `json:"latest_content_hash,omitempty"`
	IsActive            bool              `json:"is_active"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// ProductVersion is an immutable snapshot of a product's facts, identified
// by (ProductID, VersionSeq) and tied to a content hash (spec.md §3).
type ProductVersion struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	VersionSeq  int       `json:"version_seq"`
	ContentHash string    `json:"content_hash"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// SourcePage is a retailer URL observed by the crawler, carrying the raw
// extracted payload for the most recent visit.
type SourcePage struct {
	ID            string         `json:"id"`
	Retailer      string         `json:"retailer"`
	RetailerCode  string         `json:"retailer_code"`
	URL           string         `json:"url"`
	ContentHash   string         `json:"content_hash"`
	ExtractedData map[string]any `json:"extracted_data"`
	RawPrice      float64        `json:"raw_price,omitempty"`
	RawMRP        float64        `json:"raw_mrp,omitempty"`
	FirstSeenAt   time.Time      `json:"first_seen_at"`
	LastSeenAt    time.Time      `json:"last_seen_at"`
}
