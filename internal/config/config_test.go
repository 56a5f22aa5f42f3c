package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	os.Unsetenv(EnvPort)
	os.Unsetenv(EnvLogLevel)
	os.Setenv(EnvDataDir, t.TempDir())
	defer os.Unsetenv(EnvDataDir)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.LogLevel() != DefaultLogLevel {
		t.Errorf("LogLevel() = %q, want %q", cfg.LogLevel(), DefaultLogLevel)
	}
	if cfg.ProjectWidth() != DefaultWidth || cfg.ProjectHeight() != DefaultHeight {
		t.Errorf("project resolution = %dx%d, want %dx%d",
			cfg.ProjectWidth(), cfg.ProjectHeight(), DefaultWidth, DefaultHeight)
	}
	if cfg.DefaultFrameRate() != DefaultFrameRate {
		t.Errorf("DefaultFrameRate() = %v, want %v", cfg.DefaultFrameRate(), DefaultFrameRate)
	}
	if cfg.FFmpegPath() != "ffmpeg" {
		t.Errorf("FFmpegPath() = %q, want ffmpeg", cfg.FFmpegPath())
	}
}

func TestNew_PortFromEnv(t *testing.T) {
	os.Setenv(EnvDataDir, t.TempDir())
	os.Setenv(EnvPort, "9100")
	defer os.Unsetenv(EnvPort)
	defer os.Unsetenv(EnvDataDir)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9100 {
		t.Errorf("Port() = %d, want 9100", cfg.Port())
	}
}

func TestNew_InvalidPort(t *testing.T) {
	os.Setenv(EnvDataDir, t.TempDir())
	os.Setenv(EnvPort, "99999")
	defer os.Unsetenv(EnvPort)
	defer os.Unsetenv(EnvDataDir)

	if _, err := New(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestNew_FileOverlay(t *testing.T) {
	dataDir := t.TempDir()
	overlay := `
port: 9200
log_level: debug
ffmpeg: /opt/ffmpeg/ffmpeg
project:
  width: 1920
  height: 1080
  fps: 30
`
	if err := os.WriteFile(filepath.Join(dataDir, ConfigFilename), []byte(overlay), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	os.Setenv(EnvDataDir, dataDir)
	os.Unsetenv(EnvPort)
	defer os.Unsetenv(EnvDataDir)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9200 {
		t.Errorf("Port() = %d, want 9200", cfg.Port())
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("LogLevel() = %q, want debug", cfg.LogLevel())
	}
	if cfg.FFmpegPath() != "/opt/ffmpeg/ffmpeg" {
		t.Errorf("FFmpegPath() = %q", cfg.FFmpegPath())
	}
	if cfg.ProjectWidth() != 1920 || cfg.ProjectHeight() != 1080 || cfg.ProjectFPS() != 30 {
		t.Errorf("project = %dx%d@%d, want 1920x1080@30",
			cfg.ProjectWidth(), cfg.ProjectHeight(), cfg.ProjectFPS())
	}
}

func TestNew_EnvWinsOverFile(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, ConfigFilename), []byte("port: 9200\n"), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	os.Setenv(EnvDataDir, dataDir)
	os.Setenv(EnvPort, "9300")
	defer os.Unsetenv(EnvPort)
	defer os.Unsetenv(EnvDataDir)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9300 {
		t.Errorf("Port() = %d, want 9300 (env should win)", cfg.Port())
	}
}

func TestNew_MalformedFile(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, ConfigFilename), []byte("port: [nope\n"), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	os.Setenv(EnvDataDir, dataDir)
	defer os.Unsetenv(EnvDataDir)

	if _, err := New(); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}
