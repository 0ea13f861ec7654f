package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputRoot      string `toml:"output_root"`
	CacheDir        string `toml:"cache_dir"`
	LogDir          string `toml:"log_dir"`
	MinFreeSpaceMiB int    `toml:"min_free_space_mib"`
}

// Catalogue contains configuration for the remote music-search service.
type Catalogue struct {
	BaseURL         string `toml:"base_url"`
	SearchTerm      string `toml:"search_term"`
	RequestTimeout  int    `toml:"request_timeout"`
	DownloadTimeout int    `toml:"download_timeout"`
	UserAgent       string `toml:"user_agent"`
}

// Stream contains the live-ingestion endpoint and encoder tuning.
type Stream struct {
	URL              string `toml:"url"`
	Key              string `toml:"key"`
	VideoFile        string `toml:"video_file"`
	VideoBitrate     string `toml:"video_bitrate"`
	AudioBitrate     string `toml:"audio_bitrate"`
	Preset           string `toml:"preset"`
	FrameRate        int    `toml:"frame_rate"`
	KeyframeInterval int    `toml:"keyframe_interval"`
	VideoHeight      int    `toml:"video_height"`
	StopGraceSeconds int    `toml:"stop_grace_seconds"`
}

// Media contains the external media engine settings.
type Media struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	CombineBitrate string `toml:"combine_bitrate"`
}

// Schedule controls the pass timer and the rotation calendar.
type Schedule struct {
	IntervalMinutes int    `toml:"interval_minutes"`
	Timezone        string `toml:"timezone"`
}

// API contains the status API bind address and optional bearer token.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic        string `toml:"ntfy_topic"`
	RequestTimeout   int    `toml:"request_timeout"`
	PassFailed       bool   `toml:"pass_failed"`
	BroadcastStarted bool   `toml:"broadcast_started"`
	BroadcastEnded   bool   `toml:"broadcast_ended"`
	Rotation         bool   `toml:"rotation"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for urban-lullaby.
//
// Configuration sections by subsystem:
//   - Paths: rotating music root, persistent cache, logs and state
//   - Catalogue: search service URL, term, and HTTP timeouts
//   - Stream: ingestion endpoint, background video, encoder tuning
//   - Media: ffmpeg/ffprobe binaries and combine bitrate
//   - Schedule: pass interval and rotation timezone
//   - API: status/metrics HTTP bind address
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Catalogue     Catalogue     `toml:"catalogue"`
	Stream        Stream        `toml:"stream"`
	Media         Media         `toml:"media"`
	Schedule      Schedule      `toml:"schedule"`
	API           API           `toml:"api"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lullaby/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lullaby.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputRoot, c.Paths.CacheDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StreamTarget returns the full ingestion URL (base URL joined with the stream key).
func (c *Config) StreamTarget() string {
	base := strings.TrimRight(c.Stream.URL, "/")
	key := strings.TrimLeft(c.Stream.Key, "/")
	if key == "" {
		return base
	}
	return base + "/" + key
}

// ScheduleInterval returns the pass timer period.
func (c *Config) ScheduleInterval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}

// Location returns the timezone used to compute calendar days for rotation.
// Days are UTC unless schedule.timezone names another zone.
func (c *Config) Location() *time.Location {
	name := strings.TrimSpace(c.Schedule.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConvertedVideoPath returns the persistent location of the normalized background video.
func (c *Config) ConvertedVideoPath() string {
	return filepath.Join(c.Paths.CacheDir, "converted_video.mp4")
}

// HistoryDBPath returns the SQLite database holding pass history.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.LogDir, "history.db")
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	if strings.TrimSpace(c.Media.FFmpegBinary) == "" {
		return defaultFFmpegBinary
	}
	return c.Media.FFmpegBinary
}

// FFprobeBinary returns the ffprobe executable name used for media validation.
func (c *Config) FFprobeBinary() string {
	if strings.TrimSpace(c.Media.FFprobeBinary) == "" {
		return defaultFFprobeBinary
	}
	return c.Media.FFprobeBinary
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
