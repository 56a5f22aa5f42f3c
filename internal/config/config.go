// Package config provides configuration management for the ClipForge engine.
// Configuration is loaded from environment variables with sensible defaults,
// with an optional YAML overlay file in the data directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort      = 8499
	DefaultLogLevel  = "info"
	DefaultDataDir   = ".clipforge"
	DefaultWidth     = 1080
	DefaultHeight    = 1920
	DefaultFPS       = 24
	DefaultFrameRate = 30.0

	// Environment variable names
	EnvPort        = "CLIPFORGE_PORT"
	EnvLogLevel    = "CLIPFORGE_LOG_LEVEL"
	EnvDataDir     = "CLIPFORGE_DATA_DIR"
	EnvFFmpegPath  = "CLIPFORGE_FFMPEG"
	EnvFFprobePath = "CLIPFORGE_FFPROBE"
	EnvHeadless    = "CLIPFORGE_HEADLESS"

	// Database filename
	DBFilename = "clipforge.db"

	// Overlay config filename inside the data directory
	ConfigFilename = "config.yaml"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	StagingDir() string
	FFmpegPath() string
	FFprobePath() string
	ProjectWidth() int
	ProjectHeight() int
	ProjectFPS() int
	DefaultFrameRate() float64
	Headless() bool
}

// EnvConfig reads configuration from environment variables plus an
// optional YAML overlay file.
type EnvConfig struct {
	port        int
	logLevel    string
	dataDir     string
	ffmpegPath  string
	ffprobePath string
	width       int
	height      int
	fps         int
	frameRate   float64
	headless    bool
}

// fileConfig is the YAML overlay schema. Zero values mean "not set".
type fileConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	FFmpeg   string `yaml:"ffmpeg"`
	FFprobe  string `yaml:"ffprobe"`
	Project  struct {
		Width     int     `yaml:"width"`
		Height    int     `yaml:"height"`
		FPS       int     `yaml:"fps"`
		FrameRate float64 `yaml:"frame_rate"`
	} `yaml:"project"`
}

// New creates a new EnvConfig with defaults, YAML overlay, and environment
// variable overrides (env wins over file).
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:        DefaultPort,
		logLevel:    DefaultLogLevel,
		dataDir:     defaultDataDir(),
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		width:       DefaultWidth,
		height:      DefaultHeight,
		fps:         DefaultFPS,
		frameRate:   DefaultFrameRate,
	}

	// Data dir must resolve first so the overlay file can be found.
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if err := cfg.applyFile(filepath.Join(cfg.dataDir, ConfigFilename)); err != nil {
		return nil, err
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if fp := os.Getenv(EnvFFmpegPath); fp != "" {
		cfg.ffmpegPath = fp
	}

	if fp := os.Getenv(EnvFFprobePath); fp != "" {
		cfg.ffprobePath = fp
	}

	if h := os.Getenv(EnvHeadless); h == "1" || h == "true" {
		cfg.headless = true
	}

	return cfg, nil
}

// applyFile overlays settings from a YAML file if it exists. A missing file
// is not an error; a malformed one is.
func (c *EnvConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if fc.Port != 0 {
		if fc.Port < 1 || fc.Port > 65535 {
			return fmt.Errorf("invalid port in %s: %d", path, fc.Port)
		}
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.FFmpeg != "" {
		c.ffmpegPath = fc.FFmpeg
	}
	if fc.FFprobe != "" {
		c.ffprobePath = fc.FFprobe
	}
	if fc.Project.Width > 0 {
		c.width = fc.Project.Width
	}
	if fc.Project.Height > 0 {
		c.height = fc.Project.Height
	}
	if fc.Project.FPS > 0 {
		c.fps = fc.Project.FPS
	}
	if fc.Project.FrameRate > 0 {
		c.frameRate = fc.Project.FrameRate
	}

	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// StagingDir returns the directory used for export staging
func (c *EnvConfig) StagingDir() string {
	return filepath.Join(c.dataDir, "staging")
}

// FFmpegPath returns the ffmpeg binary path or name
func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

// FFprobePath returns the ffprobe binary path or name
func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

// ProjectWidth returns the default project output width in pixels
func (c *EnvConfig) ProjectWidth() int {
	return c.width
}

// ProjectHeight returns the default project output height in pixels
func (c *EnvConfig) ProjectHeight() int {
	return c.height
}

// ProjectFPS returns the default export frame rate
func (c *EnvConfig) ProjectFPS() int {
	return c.fps
}

// DefaultFrameRate returns the frame rate assumed for sources that do not
// report one.
func (c *EnvConfig) DefaultFrameRate() float64 {
	return c.frameRate
}

// Headless reports whether the system tray should be skipped
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
