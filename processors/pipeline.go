package processors

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"videoChat/core"
)

// previewSegments is how many transcript segments a process response carries.
const previewSegments = 5

// Ingester is the part of the lifecycle manager the pipeline drives.
type Ingester interface {
	Ingest(ctx context.Context, videoID string, meta core.VideoMetadata, transcript core.TranscriptResult) (string, error)
}

// VideoPipeline runs a submitted video URL through id extraction, the
// concurrent metadata and transcript fetches, and ingest.
type VideoPipeline struct {
	metadata    MetadataFetcher
	transcripts TranscriptFetcher
	ingester    Ingester
	timeout     time.Duration
	logger      *slog.Logger
}

func NewVideoPipeline(metadata MetadataFetcher, transcripts TranscriptFetcher, ingester Ingester, timeout time.Duration, logger *slog.Logger) *VideoPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoPipeline{metadata: metadata, transcripts: transcripts, ingester: ingester, timeout: timeout, logger: logger}
}

// Process ingests the video at videoURL and returns what the UI shows.
func (p *VideoPipeline) Process(ctx context.Context, videoURL string) (core.ProcessVideoResponse, error) {
	videoID, err := ExtractVideoID(videoURL)
	if err != nil {
		return core.ProcessVideoResponse{}, err
	}
	start := time.Now()
	p.logger.Info("Processing video", "video_id", videoID)

	var (
		meta       core.VideoMetadata
		transcript core.TranscriptResult
	)
	fetchCtx, cancel := p.bounded(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(func() error {
		m, err := p.metadata.FetchMetadata(gctx, videoID)
		if err != nil {
			return core.Upstream("youtube", err)
		}
		meta = m
		return nil
	})
	g.Go(func() error {
		t, err := p.transcripts.FetchTranscript(gctx, videoID)
		if err != nil {
			return core.Upstream("transcript", err)
		}
		transcript = t
		return nil
	})
	if err := g.Wait(); err != nil {
		p.logger.Error("Failed to fetch video", "video_id", videoID, "error", err)
		return core.ProcessVideoResponse{}, err
	}
	if meta.ID == "" {
		meta.ID = videoID
	}

	summary, err := p.ingester.Ingest(ctx, videoID, meta, transcript)
	if err != nil {
		return core.ProcessVideoResponse{}, err
	}

	p.logger.Info("Video processed", "video_id", videoID,
		"transcript_available", transcript.Available,
		"segments", len(transcript.Segments),
		"elapsed", time.Since(start).String())

	preview := transcript.Preview(previewSegments)
	if preview == nil {
		preview = []core.TranscriptSegment{}
	}
	return core.ProcessVideoResponse{
		Message: "Video processed successfully",
		VideoInfo: core.VideoInfo{
			ID:              videoID,
			Title:           meta.Title,
			Description:     meta.Description,
			DurationSeconds: meta.DurationSeconds,
		},
		Transcript:          preview,
		TranscriptAvailable: transcript.Available,
		Summary:             summary,
	}, nil
}

// Title returns the title of videoID.
func (p *VideoPipeline) Title(ctx context.Context, videoID string) (string, error) {
	if !IsValidVideoID(videoID) {
		return "", core.InvalidInput("invalid video id %q", videoID)
	}
	tctx, cancel := p.bounded(ctx)
	defer cancel()
	meta, err := p.metadata.FetchMetadata(tctx, videoID)
	if err != nil {
		return "", core.Upstream("youtube", err)
	}
	return meta.Title, nil
}

func (p *VideoPipeline) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}
