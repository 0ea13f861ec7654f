package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCatalogue()
	if err := c.normalizeStream(); err != nil {
		return err
	}
	c.normalizeMedia()
	c.normalizeAPI()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := lookupEnv("OUTPUT_ROOT"); ok {
		c.Paths.OutputRoot = value
	}
	var err error
	if strings.TrimSpace(c.Paths.OutputRoot) == "" {
		c.Paths.OutputRoot = defaultOutputRoot
	}
	if c.Paths.OutputRoot, err = expandPath(c.Paths.OutputRoot); err != nil {
		return fmt.Errorf("paths.output_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.MinFreeSpaceMiB < 0 {
		c.Paths.MinFreeSpaceMiB = 0
	}
	return nil
}

func (c *Config) normalizeCatalogue() {
	c.Catalogue.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalogue.BaseURL), "/")
	if c.Catalogue.BaseURL == "" {
		c.Catalogue.BaseURL = defaultCatalogueBaseURL
	}
	if value, ok := lookupEnv("SEARCH_TERM"); ok {
		c.Catalogue.SearchTerm = value
	}
	c.Catalogue.SearchTerm = strings.TrimSpace(c.Catalogue.SearchTerm)
	if c.Catalogue.RequestTimeout <= 0 {
		c.Catalogue.RequestTimeout = defaultCatalogueTimeout
	}
	if c.Catalogue.DownloadTimeout <= 0 {
		c.Catalogue.DownloadTimeout = defaultDownloadTimeout
	}
	c.Catalogue.UserAgent = strings.TrimSpace(c.Catalogue.UserAgent)
	if c.Catalogue.UserAgent == "" {
		c.Catalogue.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeStream() error {
	if value, ok := lookupEnv("STREAM_URL"); ok {
		c.Stream.URL = value
	}
	if value, ok := lookupEnv("STREAM_KEY"); ok {
		c.Stream.Key = value
	}
	if value, ok := lookupEnv("VIDEO_FILE"); ok {
		c.Stream.VideoFile = value
	}
	c.Stream.URL = strings.TrimRight(strings.TrimSpace(c.Stream.URL), "/")
	if c.Stream.URL == "" {
		c.Stream.URL = defaultStreamURL
	}
	c.Stream.Key = strings.TrimSpace(c.Stream.Key)
	if strings.TrimSpace(c.Stream.VideoFile) != "" {
		expanded, err := expandPath(strings.TrimSpace(c.Stream.VideoFile))
		if err != nil {
			return fmt.Errorf("stream.video_file: %w", err)
		}
		c.Stream.VideoFile = expanded
	}
	c.Stream.VideoBitrate = defaultString(c.Stream.VideoBitrate, defaultVideoBitrate)
	c.Stream.AudioBitrate = defaultString(c.Stream.AudioBitrate, defaultAudioBitrate)
	c.Stream.Preset = defaultString(c.Stream.Preset, defaultStreamPreset)
	if c.Stream.FrameRate <= 0 {
		c.Stream.FrameRate = defaultFrameRate
	}
	if c.Stream.KeyframeInterval <= 0 {
		c.Stream.KeyframeInterval = defaultKeyframeInterval
	}
	if c.Stream.VideoHeight <= 0 {
		c.Stream.VideoHeight = defaultVideoHeight
	}
	if c.Stream.StopGraceSeconds <= 0 {
		c.Stream.StopGraceSeconds = defaultBroadcastStopGraceSecs
	}
	return nil
}

func (c *Config) normalizeMedia() {
	c.Media.FFmpegBinary = defaultString(c.Media.FFmpegBinary, defaultFFmpegBinary)
	c.Media.FFprobeBinary = defaultString(c.Media.FFprobeBinary, defaultFFprobeBinary)
	c.Media.CombineBitrate = defaultString(c.Media.CombineBitrate, defaultCombineBitrate)
}

func (c *Config) normalizeAPI() {
	// An explicitly empty bind disables the status API, so only trim here.
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if value, ok := lookupEnv("LULLABY_API_TOKEN"); ok {
		c.API.Token = value
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
}

func (c *Config) normalizeNotifications() {
	if value, ok := lookupEnv("NTFY_TOPIC"); ok {
		c.Notifications.NtfyTopic = value
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func defaultString(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
