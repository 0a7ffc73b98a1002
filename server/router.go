// Package server exposes the video chat HTTP API.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Routes groups what the router mounts.
type Routes struct {
	Videos         *VideoHandlers
	Monitoring     *MonitoringHandlers
	Frontend       http.Handler
	AllowedOrigins []string
}

// NewRouter builds the chi router with the global middleware stack.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(CORS(rt.AllowedOrigins))

	r.Post("/process-video", rt.Videos.ProcessVideo)
	r.Post("/send-message", rt.Videos.SendMessage)
	r.Get("/video-title", rt.Videos.VideoTitle)
	r.Get("/history", rt.Videos.ChatHistory)

	if rt.Monitoring != nil {
		r.Get("/context", rt.Monitoring.ContextStatus)
		r.Get("/ready", rt.Monitoring.Ready)
		r.Get("/stats", rt.Monitoring.Stats)
	}

	// 前端单页应用
	if rt.Frontend != nil {
		r.Handle("/*", rt.Frontend)
	}
	return r
}
