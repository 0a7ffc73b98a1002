package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"videoChat/core"
)

// maxBodyBytes caps request bodies; the API only accepts short JSON objects.
const maxBodyBytes = 1 << 20

// Processor runs a submitted video through fetch and ingest.
type Processor interface {
	Process(ctx context.Context, videoURL string) (core.ProcessVideoResponse, error)
	Title(ctx context.Context, videoID string) (string, error)
}

// Asker answers chat messages against the active context.
type Asker interface {
	AskAs(ctx context.Context, videoID, message string) (string, error)
	History(ctx context.Context) (core.HistoryResponse, error)
}

// VideoHandlers 视频与对话相关的HTTP处理器
type VideoHandlers struct {
	processor Processor
	asker     Asker
}

func NewVideoHandlers(p Processor, a Asker) *VideoHandlers {
	return &VideoHandlers{processor: p, asker: a}
}

// ProcessVideo handles POST /process-video.
func (h *VideoHandlers) ProcessVideo(w http.ResponseWriter, r *http.Request) {
	var req core.ProcessVideoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		core.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.VideoURL) == "" {
		core.WriteError(w, http.StatusBadRequest, "videoUrl is required")
		return
	}

	resp, err := h.processor.Process(r.Context(), req.VideoURL)
	if err != nil {
		core.WriteFailure(w, "Failed to process video", err)
		return
	}
	core.WriteJSON(w, http.StatusOK, resp)
}

// SendMessage handles POST /send-message.
func (h *VideoHandlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req core.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		core.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.VideoID) == "" {
		core.WriteError(w, http.StatusBadRequest, "message and videoId are required")
		return
	}

	answer, err := h.asker.AskAs(r.Context(), strings.TrimSpace(req.VideoID), req.Message)
	if err != nil {
		core.WriteFailure(w, "Failed to process message", err)
		return
	}
	core.WriteJSON(w, http.StatusOK, core.SendMessageResponse{Response: answer})
}

// ChatHistory handles GET /history.
func (h *VideoHandlers) ChatHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.asker.History(r.Context())
	if err != nil {
		core.WriteFailure(w, "Failed to read chat history", err)
		return
	}
	core.WriteJSON(w, http.StatusOK, history)
}

// VideoTitle handles GET /video-title?videoId=.
func (h *VideoHandlers) VideoTitle(w http.ResponseWriter, r *http.Request) {
	videoID := strings.TrimSpace(r.URL.Query().Get("videoId"))
	if videoID == "" {
		core.WriteError(w, http.StatusBadRequest, "videoId is required")
		return
	}
	title, err := h.processor.Title(r.Context(), videoID)
	if err != nil {
		core.WriteFailure(w, "Failed to fetch video title", err)
		return
	}
	core.WriteJSON(w, http.StatusOK, core.VideoTitleResponse{Title: title})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return errors.New("invalid request body")
	}
	return nil
}
