package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCatalogue(); err != nil {
		return err
	}
	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCatalogue() error {
	if c.Catalogue.SearchTerm == "" {
		return errors.New("catalogue.search_term must be set (or export SEARCH_TERM)")
	}
	parsed, err := url.Parse(c.Catalogue.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("catalogue.base_url must be an absolute URL, got %q", c.Catalogue.BaseURL)
	}
	return nil
}

func (c *Config) validateStream() error {
	if c.Stream.Key == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/lullaby/config.toml"
		}
		return fmt.Errorf("stream.key is required. Set STREAM_KEY env var or edit %s (create with 'lullaby config init')", defaultPath)
	}
	if strings.TrimSpace(c.Stream.VideoFile) == "" {
		return errors.New("stream.video_file is required (or export VIDEO_FILE)")
	}
	parsed, err := url.Parse(c.Stream.URL)
	if err != nil || parsed.Scheme == "" {
		return fmt.Errorf("stream.url must include a scheme such as rtmp://, got %q", c.Stream.URL)
	}
	return ensurePositiveMap(map[string]int{
		"stream.frame_rate":        c.Stream.FrameRate,
		"stream.keyframe_interval": c.Stream.KeyframeInterval,
		"stream.video_height":      c.Stream.VideoHeight,
	})
}

func (c *Config) validateSchedule() error {
	if c.Schedule.IntervalMinutes <= 0 {
		return errors.New("schedule.interval_minutes must be positive")
	}
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.NtfyTopic)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL, got %q", c.Notifications.NtfyTopic)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
