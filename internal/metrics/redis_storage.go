package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage persists metric time-series to Redis sorted sets, one
// set per metric with the sample timestamp as score.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage creates a Redis storage backend. Returns an error if
// the connection fails.
func NewRedisStorage(url string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		prefix: "irbench:metrics:",
		ttl:    24 * time.Hour,
	}, nil
}

// SaveDataPoint saves a single data point and trims samples past the TTL.
func (rs *RedisStorage) SaveDataPoint(ctx context.Context, metric string, dp DataPoint) error {
	key := rs.prefix + metric

	pipe := rs.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(dp.Timestamp.Unix()),
		Member: fmt.Sprintf("%.2f", dp.Value),
	})
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", time.Now().Add(-rs.ttl).Unix()))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving data point: %w", err)
	}

	return nil
}

// SaveBatch saves multiple data points in one pipeline.
func (rs *RedisStorage) SaveBatch(ctx context.Context, metric string, dataPoints []DataPoint) error {
	if len(dataPoints) == 0 {
		return nil
	}

	key := rs.prefix + metric

	members := make([]redis.Z, len(dataPoints))
	for i, dp := range dataPoints {
		members[i] = redis.Z{
			Score:  float64(dp.Timestamp.Unix()),
			Member: fmt.Sprintf("%.2f", dp.Value),
		}
	}

	pipe := rs.client.Pipeline()
	pipe.ZAdd(ctx, key, members...)
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", time.Now().Add(-rs.ttl).Unix()))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving batch: %w", err)
	}

	return nil
}

// LoadHistory loads data points recorded at or after the given time.
func (rs *RedisStorage) LoadHistory(ctx context.Context, metric string, since time.Time) ([]DataPoint, error) {
	key := rs.prefix + metric

	results, err := rs.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.Unix()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	dataPoints := make([]DataPoint, 0, len(results))
	for _, z := range results {
		value, err := strconv.ParseFloat(z.Member.(string), 64)
		if err != nil {
			continue // Skip invalid entries
		}

		dataPoints = append(dataPoints, DataPoint{
			Timestamp: time.Unix(int64(z.Score), 0),
			Value:     value,
		})
	}

	return dataPoints, nil
}

// DeleteMetric removes all data for a metric.
func (rs *RedisStorage) DeleteMetric(ctx context.Context, metric string) error {
	if err := rs.client.Del(ctx, rs.prefix+metric).Err(); err != nil {
		return fmt.Errorf("deleting metric: %w", err)
	}
	return nil
}

// SetTTL sets the retention window for stored data points.
func (rs *RedisStorage) SetTTL(ttl time.Duration) {
	rs.ttl = ttl
}

// Close closes the Redis connection.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
