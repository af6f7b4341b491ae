package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// UpsertFeatures inserts or updates feature points in a collection.
func (c *Client) UpsertFeatures(ctx context.Context, collection string, points []FeaturePoint) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	if len(points) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		point, err := featurePointToQdrant(p)
		if err != nil {
			return fmt.Errorf("failed to convert point %d: %w", p.Index, err)
		}
		qdrantPoints = append(qdrantPoints, point)
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName(collection),
		Points:         qdrantPoints,
		Wait:           qdrant.PtrOf(true), // Wait for indexing
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

// UpsertFeaturesBatch upserts feature points in batches to bound memory.
func (c *Client) UpsertFeaturesBatch(ctx context.Context, collection string, points []FeaturePoint, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 100 // Default batch size
	}

	for i := 0; i < len(points); i += batchSize {
		end := i + batchSize
		if end > len(points) {
			end = len(points)
		}

		batch := points[i:end]
		if err := c.UpsertFeatures(ctx, collection, batch); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// DeletePoints deletes points based on filter criteria.
func (c *Client) DeletePoints(ctx context.Context, collection string, filter DeleteFilter) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	name := collectionName(collection)

	// Delete by indices
	if len(filter.Indices) > 0 {
		pointIDs := make([]*qdrant.PointId, len(filter.Indices))
		for i, idx := range filter.Indices {
			pointIDs[i] = qdrant.NewIDNum(uint64(idx))
		}

		_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{
						Ids: pointIDs,
					},
				},
			},
			Wait: qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("failed to delete by indices: %w", err)
		}
		return nil
	}

	// Delete by dataset filter
	qdrantFilter := buildDatasetFilter(filter.Dataset)
	if qdrantFilter == nil {
		return fmt.Errorf("no valid delete criteria specified")
	}

	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: qdrantFilter,
			},
		},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}

	return nil
}

// CountPoints returns the number of points in a collection, optionally
// restricted to one dataset.
func (c *Client) CountPoints(ctx context.Context, collection, dataset string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, fmt.Errorf("client is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	countReq := &qdrant.CountPoints{
		CollectionName: collectionName(collection),
		Exact:          qdrant.PtrOf(true),
	}

	if dataset != "" {
		countReq.Filter = buildDatasetFilter(dataset)
	}

	count, err := c.client.Count(ctx, countReq)
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}

	return count, nil
}

// featurePointToQdrant converts a FeaturePoint to a Qdrant PointStruct.
func featurePointToQdrant(p FeaturePoint) (*qdrant.PointStruct, error) {
	if p.Index < 0 {
		return nil, fmt.Errorf("point index must not be negative")
	}
	if len(p.Vector) == 0 {
		return nil, fmt.Errorf("point vector is empty")
	}

	payload := map[string]any{
		"index":   p.Index,
		"name":    p.Name,
		"dataset": p.Dataset,
	}

	return &qdrant.PointStruct{
		Id: qdrant.NewIDNum(uint64(p.Index)),
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{Data: p.Vector},
			},
		},
		Payload: qdrant.NewValueMap(payload),
	}, nil
}
