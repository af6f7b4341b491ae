package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// DenseSearch performs a dense vector search and returns results ordered
// by descending cosine similarity.
func (c *Client) DenseSearch(ctx context.Context, collection string, req SearchRequest) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}

	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	limit := req.Limit
	if limit == 0 {
		limit = 100
	}

	queryPoints := &qdrant.QueryPoints{
		CollectionName: collectionName(collection),
		Query:          qdrant.NewQueryDense(req.Vector),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(req.WithPayload),
	}

	if req.Dataset != "" {
		queryPoints.Filter = buildDatasetFilter(req.Dataset)
	}

	if req.ScoreThreshold != nil {
		queryPoints.ScoreThreshold = req.ScoreThreshold
	}

	results, err := c.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("dense search failed: %w", err)
	}

	return scoredPointsToResults(results)
}

// buildDatasetFilter builds a Qdrant filter matching one dataset.
func buildDatasetFilter(dataset string) *qdrant.Filter {
	if dataset == "" {
		return nil
	}

	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "dataset",
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{
								Keyword: dataset,
							},
						},
					},
				},
			},
		},
	}
}

// scoredPointsToResults converts Qdrant scored points to SearchResults.
func scoredPointsToResults(points []*qdrant.ScoredPoint) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(points))

	for _, p := range points {
		result, err := scoredPointToResult(p)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, nil
}

// scoredPointToResult converts a single scored point to SearchResult.
func scoredPointToResult(p *qdrant.ScoredPoint) (SearchResult, error) {
	result := SearchResult{
		Score: p.Score,
	}

	switch v := p.Id.PointIdOptions.(type) {
	case *qdrant.PointId_Num:
		result.Index = int64(v.Num)
	default:
		return SearchResult{}, fmt.Errorf("unexpected point id type %T", v)
	}

	if p.Payload != nil {
		result.Name = getStringValue(p.Payload, "name")
		result.Dataset = getStringValue(p.Payload, "dataset")
	}

	return result, nil
}

// getStringValue extracts a string field from a Qdrant payload.
func getStringValue(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			return sv.StringValue
		}
	}
	return ""
}
