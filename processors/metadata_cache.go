package processors

import (
	"context"
	"time"

	"videoChat/core"
)

// CachedMetadataFetcher keeps successful metadata lookups for a while so the
// title endpoint and repeated submissions do not spend API quota.
type CachedMetadataFetcher struct {
	inner MetadataFetcher
	cache *core.TTLCache[core.VideoMetadata]
}

func NewCachedMetadataFetcher(inner MetadataFetcher, ttl time.Duration, maxEntries int) *CachedMetadataFetcher {
	return &CachedMetadataFetcher{inner: inner, cache: core.NewTTLCache[core.VideoMetadata](ttl, maxEntries)}
}

func (f *CachedMetadataFetcher) FetchMetadata(ctx context.Context, videoID string) (core.VideoMetadata, error) {
	if meta, ok := f.cache.Get(videoID); ok {
		return meta, nil
	}
	meta, err := f.inner.FetchMetadata(ctx, videoID)
	if err != nil {
		return core.VideoMetadata{}, err
	}
	f.cache.Set(videoID, meta)
	return meta, nil
}

func (f *CachedMetadataFetcher) Metrics() core.CacheMetrics { return f.cache.Metrics() }
