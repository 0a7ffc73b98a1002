package processors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"

	"videoChat/core"
)

// ErrNoCaptions marks a video without a usable caption track.
var ErrNoCaptions = errors.New("no captions available")

// TranscriptFetcher returns the timed transcript of a video. Missing
// captions are reported through TranscriptResult, not as an error.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoID string) (core.TranscriptResult, error)
}

// CaptionSource is the raw caption provider behind TranscriptService.
type CaptionSource interface {
	Captions(ctx context.Context, videoID, lang string) ([]core.TranscriptSegment, error)
}

// TranscriptService turns caption fetches into a tagged result: segments
// found, or segments unavailable with a reason.
type TranscriptService struct {
	source CaptionSource
	lang   string
	logger *slog.Logger
}

func NewTranscriptService(source CaptionSource, lang string, logger *slog.Logger) *TranscriptService {
	if lang == "" {
		lang = "en"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptService{source: source, lang: lang, logger: logger}
}

func (t *TranscriptService) FetchTranscript(ctx context.Context, videoID string) (core.TranscriptResult, error) {
	t.logger.Info("Fetching transcript", "video_id", videoID, "lang", t.lang)

	segs, err := t.source.Captions(ctx, videoID, t.lang)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return core.TranscriptResult{}, ctxErr
		}
		t.logger.Warn("Transcript unavailable, continuing with metadata only", "video_id", videoID, "error", err)
		return core.TranscriptUnavailable(err.Error()), nil
	}

	cleaned := make([]core.TranscriptSegment, 0, len(segs))
	for _, s := range segs {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text != "" {
			cleaned = append(cleaned, s)
		}
	}
	sort.SliceStable(cleaned, func(i, j int) bool {
		return cleaned[i].StartOffsetSeconds < cleaned[j].StartOffsetSeconds
	})

	result := core.TranscriptFound(cleaned)
	t.logger.Info("Transcript fetched", "video_id", videoID, "segments", len(result.Segments), "available", result.Available)
	return result, nil
}

// YouTubeCaptions fetches caption tracks through the YouTube web player.
type YouTubeCaptions struct {
	client *youtube.Client
}

func NewYouTubeCaptions(timeout time.Duration) *YouTubeCaptions {
	return &YouTubeCaptions{client: &youtube.Client{HTTPClient: &http.Client{Timeout: timeout}}}
}

func (y *YouTubeCaptions) Captions(ctx context.Context, videoID, lang string) ([]core.TranscriptSegment, error) {
	video, err := y.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("load video %s: %w", videoID, err)
	}
	transcript, err := y.client.GetTranscriptCtx(ctx, video, lang)
	if err != nil {
		if errors.Is(err, youtube.ErrTranscriptDisabled) {
			return nil, ErrNoCaptions
		}
		return nil, fmt.Errorf("failed to fetch transcript: %w", err)
	}
	if len(transcript) == 0 {
		return nil, ErrNoCaptions
	}

	segs := make([]core.TranscriptSegment, 0, len(transcript))
	for _, t := range transcript {
		segs = append(segs, core.TranscriptSegment{
			Text:               t.Text,
			StartOffsetSeconds: float64(t.StartMs) / 1000,
			DurationSeconds:    float64(t.Duration) / 1000,
		})
	}
	return segs, nil
}
