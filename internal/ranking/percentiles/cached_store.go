package percentiles

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/strengthstats/rankengine/internal/ranking"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultCacheSizeBytes is the freecache allocation for percentile data.
	DefaultCacheSizeBytes = 10 * 1024 * 1024
	DefaultCacheTTL       = 5 * time.Minute
)

type store interface {
	AddObservations(ctx context.Context, observations []Observation) error
	ListValues(ctx context.Context, segmentID, exerciseID string, metric ranking.MetricType) ([]float64, error)
	UpsertData(ctx context.Context, data Data) error
	GetData(ctx context.Context, segmentID, exerciseID string, metric ranking.MetricType) (*Data, error)
	AllData(ctx context.Context) ([]Data, error)
	DeleteData(ctx context.Context, segmentID, exerciseID string, metric ranking.MetricType) error
	TopValues(ctx context.Context, segmentID, exerciseID string, metric ranking.MetricType, limit int) ([]Observation, error)
}

// CachedStore is a read-through in-memory cache in front of the durable
// percentile store. Memory never diverges from the durable store: entries
// are dropped on every write to their key and expire after ttl.
type CachedStore struct {
	store store
	cache *freecache.Cache
	ttl   time.Duration
}

func NewCachedStore(underlying store, cacheSizeBytes int, ttl time.Duration) *CachedStore {
	if cacheSizeBytes <= 0 {
		cacheSizeBytes = DefaultCacheSizeBytes
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		store: underlying,
		cache: freecache.NewCache(cacheSizeBytes),
		ttl:   ttl,
	}
}

func (c *CachedStore) GetData(
	ctx context.Context,
	segmentID, exerciseID string,
	metric ranking.MetricType,
) (*Data, error) {
	key := cacheKey(segmentID, exerciseID, metric)
	if cached, err := c.cache.Get(key); err == nil {
		var d Data
		unmarshalErr := json.Unmarshal(cached, &d)
		if unmarshalErr == nil {
			return &d, nil
		}
		log.Errorf("failed to unmarshal cached percentile data for [%s]: %s", key, unmarshalErr)
		c.cache.Del(key)
	}

	d, err := c.store.GetData(ctx, segmentID, exerciseID, metric)
	if err != nil {
		return nil, err
	}

	if dataBytes, err := json.Marshal(d); err == nil {
		if err := c.cache.Set(key, dataBytes, int(c.ttl.Seconds())); err != nil {
			log.Tracef("failed to cache percentile data for [%s]: %s", key, err)
		}
	}

	return d, nil
}

func (c *CachedStore) UpsertData(ctx context.Context, data Data) error {
	if err := c.store.UpsertData(ctx, data); err != nil {
		return err
	}
	c.cache.Del(cacheKey(data.SegmentID, data.ExerciseID, data.Metric))
	return nil
}

func (c *CachedStore) DeleteData(
	ctx context.Context,
	segmentID, exerciseID string,
	metric ranking.MetricType,
) error {
	if err := c.store.DeleteData(ctx, segmentID, exerciseID, metric); err != nil {
		return err
	}
	c.cache.Del(cacheKey(segmentID, exerciseID, metric))
	return nil
}

func (c *CachedStore) AddObservations(ctx context.Context, observations []Observation) error {
	return c.store.AddObservations(ctx, observations)
}

func (c *CachedStore) ListValues(
	ctx context.Context,
	segmentID, exerciseID string,
	metric ranking.MetricType,
) ([]float64, error) {
	return c.store.ListValues(ctx, segmentID, exerciseID, metric)
}

func (c *CachedStore) AllData(ctx context.Context) ([]Data, error) {
	return c.store.AllData(ctx)
}

// Warmup preloads the cache with everything currently in the durable store,
// so the first read burst after a restart does not hit postgres.
func (c *CachedStore) Warmup(ctx context.Context) (int, error) {
	allData, err := c.store.AllData(ctx)
	if err != nil {
		return 0, fmt.Errorf("load percentile data: %w", err)
	}

	cached := 0
	for i := range allData {
		dataBytes, err := json.Marshal(&allData[i])
		if err != nil {
			continue
		}
		key := cacheKey(allData[i].SegmentID, allData[i].ExerciseID, allData[i].Metric)
		if err := c.cache.Set(key, dataBytes, int(c.ttl.Seconds())); err != nil {
			log.Tracef("failed to cache percentile data for [%s]: %s", key, err)
			continue
		}
		cached++
	}
	return cached, nil
}

func (c *CachedStore) TopValues(
	ctx context.Context,
	segmentID, exerciseID string,
	metric ranking.MetricType,
	limit int,
) ([]Observation, error) {
	return c.store.TopValues(ctx, segmentID, exerciseID, metric, limit)
}

func cacheKey(segmentID, exerciseID string, metric ranking.MetricType) []byte {
	return []byte(fmt.Sprintf("%s::%s::%s", segmentID, exerciseID, metric))
}
