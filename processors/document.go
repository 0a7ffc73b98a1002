package processors

import (
	"strings"

	"videoChat/core"
)

// TranscriptFallbackPrefix starts the line written instead of a transcript
// when the video has no captions.
const TranscriptFallbackPrefix = "Transcript: not available. Only metadata is available for this video"

// BuildDocument renders the context document for a video: title,
// description, then the transcript or the metadata-only fallback line.
func BuildDocument(v core.VideoContext) string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(strings.TrimSpace(v.Title))
	b.WriteString("\nDescription: ")
	b.WriteString(strings.TrimSpace(v.Description))
	b.WriteString("\n")

	if text := v.TranscriptText(); text != "" {
		b.WriteString("Transcript: ")
		b.WriteString(text)
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(TranscriptFallbackPrefix)
	b.WriteString("; duration: ")
	if v.DurationSeconds != nil {
		b.WriteString(formatDuration(*v.DurationSeconds))
	} else {
		b.WriteString("unknown")
	}
	b.WriteString(".\n")
	return b.String()
}
