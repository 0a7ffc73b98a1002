package core

import (
	"strings"
	"time"
)

// ========== 视频数据结构 ==========

// VideoMetadata is what the metadata provider knows about a video.
type VideoMetadata struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	DurationSeconds *float64 `json:"durationSeconds"`
}

// TranscriptSegment is one timed caption line.
type TranscriptSegment struct {
	Text               string  `json:"text"`
	StartOffsetSeconds float64 `json:"start"`
	DurationSeconds    float64 `json:"duration"`
}

// TranscriptResult is the outcome of a transcript fetch. Available=false is a
// valid outcome (no captions), not an error.
type TranscriptResult struct {
	Segments  []TranscriptSegment `json:"segments"`
	Available bool                `json:"available"`
	Reason    string              `json:"reason,omitempty"`
}

// TranscriptFound builds a result that carries segments.
func TranscriptFound(segments []TranscriptSegment) TranscriptResult {
	if len(segments) == 0 {
		return TranscriptUnavailable("empty transcript")
	}
	return TranscriptResult{Segments: segments, Available: true}
}

// TranscriptUnavailable builds a result for a video without usable captions.
func TranscriptUnavailable(reason string) TranscriptResult {
	return TranscriptResult{Available: false, Reason: reason}
}

// Preview returns at most n leading segments.
func (r TranscriptResult) Preview(n int) []TranscriptSegment {
	if len(r.Segments) <= n {
		return r.Segments
	}
	return r.Segments[:n]
}

// VideoContext is the content ingested for one video. It is built once per
// ingest and replaced, never mutated, when another video is submitted.
type VideoContext struct {
	ID              string
	Title           string
	Description     string
	DurationSeconds *float64
	Segments        []TranscriptSegment
}

// NewVideoContext combines metadata and a transcript result.
func NewVideoContext(id string, meta VideoMetadata, transcript TranscriptResult) VideoContext {
	segs := make([]TranscriptSegment, len(transcript.Segments))
	copy(segs, transcript.Segments)
	return VideoContext{
		ID:              id,
		Title:           meta.Title,
		Description:     meta.Description,
		DurationSeconds: meta.DurationSeconds,
		Segments:        segs,
	}
}

// TranscriptText joins all segment texts with single spaces.
func (v VideoContext) TranscriptText() string {
	parts := make([]string, 0, len(v.Segments))
	for _, s := range v.Segments {
		t := strings.TrimSpace(s.Text)
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// ========== 对话 ==========

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is a single message in a conversation about the active video.
type ChatTurn struct {
	ID   string    `json:"id"`
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ========== 向量存储 ==========

// Chunk is one piece of a context document as written to a vector store.
type Chunk struct {
	ID        string    `json:"id"`
	ContextID string    `json:"context_id"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"-"`
}

// Hit is a chunk returned by similarity search.
type Hit struct {
	ID        string  `json:"id"`
	ContextID string  `json:"context_id"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// ========== HTTP 请求/响应 ==========

type ProcessVideoRequest struct {
	VideoURL string `json:"videoUrl"`
}

type VideoInfo struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	DurationSeconds *float64 `json:"durationSeconds"`
}

type ProcessVideoResponse struct {
	Message             string              `json:"message"`
	VideoInfo           VideoInfo           `json:"videoInfo"`
	Transcript          []TranscriptSegment `json:"transcript"`
	TranscriptAvailable bool                `json:"transcriptAvailable"`
	Summary             string              `json:"summary"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
	VideoID string `json:"videoId"`
}

type SendMessageResponse struct {
	Response string `json:"response"`
}

type VideoTitleResponse struct {
	Title string `json:"title"`
}

type ContextStatusResponse struct {
	Active  bool   `json:"active"`
	VideoID string `json:"videoId,omitempty"`
	Stored  bool   `json:"stored"`
}

// HistoryResponse is the conversation of the active context, oldest first.
type HistoryResponse struct {
	VideoID  string     `json:"videoId"`
	Messages []ChatTurn `json:"messages"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
