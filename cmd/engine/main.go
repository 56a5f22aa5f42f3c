package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/clipforge/clipforge-engine/internal/api"
	"github.com/clipforge/clipforge-engine/internal/config"
	"github.com/clipforge/clipforge-engine/internal/db"
	"github.com/clipforge/clipforge-engine/internal/export"
	"github.com/clipforge/clipforge-engine/internal/frames"
	"github.com/clipforge/clipforge-engine/internal/logging"
	"github.com/clipforge/clipforge-engine/internal/media"
	"github.com/clipforge/clipforge-engine/internal/playback"
	"github.com/clipforge/clipforge-engine/internal/store"
	"github.com/clipforge/clipforge-engine/internal/timeline"
	"github.com/clipforge/clipforge-engine/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	mediaDir := filepath.Join(cfg.DataDir(), "media")
	for _, dir := range []string{cfg.DataDir(), cfg.StagingDir(), mediaDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting clipforge engine", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := store.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                 CLIPFORGE ENGINE v%-8s                ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	tl := timeline.New(timeline.Project{
		Width:  cfg.ProjectWidth(),
		Height: cfg.ProjectHeight(),
		FPS:    cfg.ProjectFPS(),
	})
	if err := store.LoadTimeline(context.Background(), repo, tl); err != nil {
		logger.Warn("failed to restore timeline, starting fresh", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ffmpeg := media.NewRealFFmpeg(cfg.FFmpegPath(), cfg.FFprobePath(), logger)
	library := frames.NewLibrary()
	extractor := frames.NewExtractor(ctx, ffmpeg, tl, library, logger)
	exporter := export.NewExporter(repo, ffmpeg, tl, cfg.StagingDir(), logger)
	scheduler := playback.NewScheduler(tl, library, playback.NewAudioSyncer(nil, logger), logger)
	saver := store.NewSaver(repo, tl, logger)

	// Frame stores do not survive a restart; re-extract restored media so
	// the preview has something to render.
	extractor.ResumeAll(mediaDir)

	go scheduler.Run(ctx)
	go saver.Run(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		MediaDir:  mediaDir,
		Timeline:  tl,
		Repo:      repo,
		FFmpeg:    ffmpeg,
		Extractor: extractor,
		Library:   library,
		Exporter:  exporter,
		Scheduler: scheduler,
		Logger:    logger,
		StartTime: startTime,
		Version:   config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	var tray *ui.Tray
	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
		<-quitCh
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			Logger: logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go watchTray(ctx, tray, tl, exporter)
		// The tray loop owns the main goroutine on platforms that need it.
		go func() {
			<-quitCh
			tray.Quit()
		}()
		tray.Run()
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	exporter.Wait()
	extractor.Wait()
	// The saver's final flush must land before the deferred database close.
	saver.Wait()

	logger.Info("shutdown complete")
	return nil
}

// watchTray mirrors engine state into the tray menu.
func watchTray(ctx context.Context, tray *ui.Tray, tl *timeline.Timeline, exporter *export.Exporter) {
	events, unsubTimeline := tl.Subscribe()
	defer unsubTimeline()
	exportEvents, unsubExport := exporter.Subscribe()
	defer unsubExport()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Type {
			case timeline.EventAssets:
				tray.UpdateAssetsCount(len(tl.Snapshot().Assets))
			case timeline.EventTransport:
				if tl.IsPlaying() {
					tray.UpdateStatus("Playing")
				} else {
					tray.UpdateStatus("Idle")
				}
			}
		case st := <-exportEvents:
			switch st.Stage {
			case export.StageComplete, export.StageError:
				tray.UpdateExport("", 0)
				tray.UpdateStatus("Idle")
			default:
				tray.UpdateExport(st.Stage, st.Progress)
				tray.UpdateStatus("Exporting")
			}
		}
	}
}

func ensureAuthToken(repo store.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetPref(ctx, api.AuthTokenPref)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetPref(ctx, api.AuthTokenPref, token); err != nil {
		return "", err
	}

	return token, nil
}
