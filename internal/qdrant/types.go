// Package qdrant provides a wrapper around the Qdrant Go client
// with simplified APIs for image feature collections.
package qdrant

// CollectionConfig defines the configuration for creating a Qdrant collection.
type CollectionConfig struct {
	// Name is the collection name (will be prefixed with "irbench_").
	Name string

	// VectorSize is the dimension of the feature vectors.
	VectorSize uint64

	// OnDiskPayload stores payload on disk to save RAM.
	OnDiskPayload bool

	// IndexingThreshold is the number of vectors before HNSW index is built.
	IndexingThreshold uint64

	// MemmapThreshold is the number of vectors before memory-mapping is used.
	MemmapThreshold uint64
}

// DefaultCollectionConfig returns sensible defaults for a feature collection.
func DefaultCollectionConfig(name string, dim uint64) CollectionConfig {
	return CollectionConfig{
		Name:              name,
		VectorSize:        dim,
		OnDiskPayload:     true,
		IndexingThreshold: 20000,
		MemmapThreshold:   50000,
	}
}

// FeaturePoint represents one database image feature to upsert into Qdrant.
type FeaturePoint struct {
	// Index is the global database index of the image. It doubles as
	// the Qdrant point ID, so upserting the same index overwrites.
	Index int64

	// Name is the image name without extension.
	Name string

	// Dataset is the dataset the image belongs to.
	Dataset string

	// Vector is the feature embedding.
	Vector []float32
}

// SearchRequest defines parameters for a dense similarity search.
type SearchRequest struct {
	// Vector is the query feature.
	Vector []float32

	// Limit is the maximum number of results to return.
	Limit uint64

	// Dataset constrains the search to one dataset.
	Dataset string

	// WithPayload includes payload in results.
	WithPayload bool

	// ScoreThreshold filters results below this score.
	ScoreThreshold *float32
}

// SearchResult represents a single search result.
type SearchResult struct {
	// Index is the global database index of the matched image.
	Index int64

	// Score is the cosine similarity score.
	Score float32

	// Name is the image name (only populated if WithPayload=true).
	Name string

	// Dataset is the dataset name (only populated if WithPayload=true).
	Dataset string
}

// DeleteFilter defines conditions for deleting points.
type DeleteFilter struct {
	// Indices deletes specific database indices.
	Indices []int64

	// Dataset deletes all points belonging to a dataset.
	Dataset string
}

// CollectionInfo contains information about a collection.
type CollectionInfo struct {
	// Name is the collection name (without prefix).
	Name string

	// PointsCount is the total number of points.
	PointsCount uint64

	// VectorsCount is the total number of vectors.
	VectorsCount uint64

	// Status is the collection health status.
	Status string

	// SegmentsCount is the number of segments.
	SegmentsCount uint64
}
