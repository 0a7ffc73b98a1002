package processors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"videoChat/core"
)

// MetadataFetcher looks up title, description and duration for a video.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, videoID string) (core.VideoMetadata, error)
}

// YouTubeMetadataFetcher calls the YouTube Data API v3. A fetcher built
// without an API key reports ErrNotConfigured on every call.
type YouTubeMetadataFetcher struct {
	svc *ytapi.Service
}

// NewYouTubeMetadataFetcher builds a fetcher. Extra options are appended
// after the API key option (tests use them to point at a fake endpoint).
func NewYouTubeMetadataFetcher(ctx context.Context, apiKey string, opts ...option.ClientOption) (*YouTubeMetadataFetcher, error) {
	if apiKey == "" && len(opts) == 0 {
		return &YouTubeMetadataFetcher{}, nil
	}
	all := make([]option.ClientOption, 0, len(opts)+1)
	if apiKey != "" {
		all = append(all, option.WithAPIKey(apiKey))
	}
	all = append(all, opts...)
	svc, err := ytapi.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &YouTubeMetadataFetcher{svc: svc}, nil
}

func (f *YouTubeMetadataFetcher) FetchMetadata(ctx context.Context, videoID string) (core.VideoMetadata, error) {
	if f.svc == nil {
		return core.VideoMetadata{}, core.Upstream("youtube", fmt.Errorf("YOUTUBE_API_KEY: %w", core.ErrNotConfigured))
	}
	resp, err := f.svc.Videos.List([]string{"snippet", "contentDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return core.VideoMetadata{}, fmt.Errorf("video %s: %w", videoID, core.ErrNotFound)
		}
		return core.VideoMetadata{}, core.Upstream("youtube", fmt.Errorf("failed to fetch video info: %w", err))
	}
	if len(resp.Items) == 0 || resp.Items[0] == nil {
		return core.VideoMetadata{}, fmt.Errorf("video %s: %w", videoID, core.ErrNotFound)
	}

	item := resp.Items[0]
	meta := core.VideoMetadata{ID: videoID}
	if item.Snippet != nil {
		meta.Title = item.Snippet.Title
		meta.Description = item.Snippet.Description
	}
	if item.ContentDetails != nil {
		if d, ok := parseISODuration(item.ContentDetails.Duration); ok {
			meta.DurationSeconds = &d
		}
	}
	return meta, nil
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// parseISODuration converts the API's ISO-8601 duration (PT1H2M3S) to
// seconds.
func parseISODuration(s string) (float64, bool) {
	if s == "" || s == "P" || s == "PT" {
		return 0, false
	}
	m := isoDuration.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	var total float64
	for i, mult := range []float64{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0, false
		}
		total += v * mult
	}
	return total, true
}

// formatDuration renders seconds as h:mm:ss or m:ss.
func formatDuration(seconds float64) string {
	total := int(seconds + 0.5)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
