package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Partition names one of the result caches. Each partition lives in its own
// store namespace.
type Partition string

const (
	PartitionImageAnalysis Partition = "image-analysis"
	PartitionVideo         Partition = "video"
	PartitionGeneration    Partition = "generation"
)

// Partitions lists every result-cache partition in a stable order.
var Partitions = []Partition{PartitionImageAnalysis, PartitionVideo, PartitionGeneration}

// Valid reports whether p is a known partition.
func (p Partition) Valid() bool {
	switch p {
	case PartitionImageAnalysis, PartitionVideo, PartitionGeneration:
		return true
	}
	return false
}

// Namespace returns the store namespace backing the partition.
func (p Partition) Namespace() string {
	return "cache:" + string(p)
}

// CacheEntry is the persisted envelope around a cached payload.
// Timestamps are stored as epoch milliseconds.
type CacheEntry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
	ExpiresAt int64           `json:"expires_at"`
}

// Created returns the creation time.
func (e CacheEntry) Created() time.Time { return time.UnixMilli(e.CreatedAt) }

// Expires returns the expiry time.
func (e CacheEntry) Expires() time.Time { return time.UnixMilli(e.ExpiresAt) }

// PartitionSize reports how many entries a partition currently holds.
type PartitionSize struct {
	Partition Partition `json:"partition"`
	Entries   int       `json:"entries"`
}

// AnalysisResult is the structured product description returned by the
// image-analysis call.
type AnalysisResult struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	SellingPoints []string `json:"selling_points,omitempty"`
	PriceRange    string   `json:"price_range,omitempty"`
	Category      string   `json:"category,omitempty"`
}
