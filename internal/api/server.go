// Package api exposes the engine over HTTP: timeline mutations, asset
// import, export control, and a websocket event stream for observers.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipforge/clipforge-engine/internal/export"
	"github.com/clipforge/clipforge-engine/internal/frames"
	"github.com/clipforge/clipforge-engine/internal/media"
	"github.com/clipforge/clipforge-engine/internal/playback"
	"github.com/clipforge/clipforge-engine/internal/store"
	"github.com/clipforge/clipforge-engine/internal/timeline"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port      int
	MediaDir  string
	Timeline  *timeline.Timeline
	Repo      store.Repository
	FFmpeg    media.FFmpeg
	Extractor *frames.Extractor
	Library   *frames.Library
	Exporter  *export.Exporter
	Scheduler *playback.Scheduler
	Logger    *slog.Logger
	StartTime time.Time
	Version   string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
