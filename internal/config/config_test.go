package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/lucianfialho/urban-lullaby/internal/config"
)

func TestLoadDefaultConfigUsesEnvAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("STREAM_KEY", "abcd-efgh")
	t.Setenv("VIDEO_FILE", "~/background/video.mp4")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantRoot := filepath.Join(tempHome, ".local", "share", "lullaby", "music")
	if cfg.Paths.OutputRoot != wantRoot {
		t.Fatalf("unexpected output root: got %q want %q", cfg.Paths.OutputRoot, wantRoot)
	}
	if cfg.Stream.VideoFile != filepath.Join(tempHome, "background", "video.mp4") {
		t.Fatalf("unexpected video file: %q", cfg.Stream.VideoFile)
	}
	if cfg.Stream.Key != "abcd-efgh" {
		t.Fatalf("expected stream key from env, got %q", cfg.Stream.Key)
	}
	if cfg.Catalogue.SearchTerm != "lofi hip hop 2000" {
		t.Fatalf("unexpected default search term: %q", cfg.Catalogue.SearchTerm)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC rotation days by default, got %s", cfg.Location())
	}
	if cfg.ScheduleInterval() != time.Hour {
		t.Fatalf("expected hourly schedule, got %s", cfg.ScheduleInterval())
	}
	if cfg.StreamTarget() != "rtmp://a.rtmp.youtube.com/live2/abcd-efgh" {
		t.Fatalf("unexpected stream target: %q", cfg.StreamTarget())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputRoot, cfg.Paths.CacheDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "lullaby.toml")

	type payload struct {
		Catalogue struct {
			SearchTerm string `toml:"search_term"`
			BaseURL    string `toml:"base_url"`
		} `toml:"catalogue"`
		Stream struct {
			URL       string `toml:"url"`
			Key       string `toml:"key"`
			VideoFile string `toml:"video_file"`
		} `toml:"stream"`
		Schedule struct {
			IntervalMinutes int `toml:"interval_minutes"`
		} `toml:"schedule"`
	}
	custom := payload{}
	custom.Catalogue.SearchTerm = "ambient rain"
	custom.Catalogue.BaseURL = "https://example.com/"
	custom.Stream.URL = "rtmp://live.example.com/app/"
	custom.Stream.Key = "file-key"
	custom.Stream.VideoFile = filepath.Join(tempDir, "video.mp4")
	custom.Schedule.IntervalMinutes = 15
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}
	t.Setenv("STREAM_KEY", "")
	t.Setenv("SEARCH_TERM", "")

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Catalogue.SearchTerm != "ambient rain" {
		t.Fatalf("expected search term from file, got %q", cfg.Catalogue.SearchTerm)
	}
	if cfg.Catalogue.BaseURL != "https://example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Catalogue.BaseURL)
	}
	if cfg.StreamTarget() != "rtmp://live.example.com/app/file-key" {
		t.Fatalf("unexpected stream target: %q", cfg.StreamTarget())
	}
	if cfg.ScheduleInterval() != 15*time.Minute {
		t.Fatalf("expected 15m interval, got %s", cfg.ScheduleInterval())
	}
}

func TestEnvVarOverridesConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "lullaby.toml")
	contents := `
[catalogue]
search_term = "from file"

[stream]
key = "file-key"
url = "rtmp://file.example.com/live"
video_file = "/tmp/video.mp4"
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STREAM_KEY", "env-key")
	t.Setenv("STREAM_URL", "rtmp://env.example.com/live")
	t.Setenv("SEARCH_TERM", "from env")
	t.Setenv("NTFY_TOPIC", "https://ntfy.example.com/lullaby")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Stream.Key != "env-key" {
		t.Errorf("expected stream key from env, got %q", cfg.Stream.Key)
	}
	if cfg.Stream.URL != "rtmp://env.example.com/live" {
		t.Errorf("expected stream url from env, got %q", cfg.Stream.URL)
	}
	if cfg.Catalogue.SearchTerm != "from env" {
		t.Errorf("expected search term from env, got %q", cfg.Catalogue.SearchTerm)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example.com/lullaby" {
		t.Errorf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_stream_key_here") {
		t.Fatalf("sample config missing placeholder stream key: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.OutputRoot, "lullaby") {
		t.Fatalf("expected output root to contain lullaby, got %q", cfg.Paths.OutputRoot)
	}
	if cfg.Schedule.IntervalMinutes != 60 {
		t.Fatalf("expected sample interval 60, got %d", cfg.Schedule.IntervalMinutes)
	}
}

func validConfig() config.Config {
	cfg := config.Default()
	cfg.Stream.Key = "key"
	cfg.Stream.VideoFile = "/tmp/video.mp4"
	return cfg
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing stream key", func(c *config.Config) { c.Stream.Key = "" }, "stream.key"},
		{"missing video", func(c *config.Config) { c.Stream.VideoFile = "" }, "stream.video_file"},
		{"missing search term", func(c *config.Config) { c.Catalogue.SearchTerm = "" }, "catalogue.search_term"},
		{"relative catalogue url", func(c *config.Config) { c.Catalogue.BaseURL = "epidemicsound.com" }, "catalogue.base_url"},
		{"zero interval", func(c *config.Config) { c.Schedule.IntervalMinutes = 0 }, "schedule.interval_minutes"},
		{"bad timezone", func(c *config.Config) { c.Schedule.Timezone = "Mars/Olympus" }, "schedule.timezone"},
		{"zero frame rate", func(c *config.Config) { c.Stream.FrameRate = 0 }, "stream.frame_rate"},
		{"bad ntfy topic", func(c *config.Config) { c.Notifications.NtfyTopic = "lullaby" }, "notifications.ntfy_topic"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := validConfig()
	cfg.Schedule.Timezone = ""
	if cfg.Location() != time.UTC {
		t.Fatal("expected UTC when timezone is unset")
	}
	cfg.Schedule.Timezone = "America/Sao_Paulo"
	if cfg.Location().String() != "America/Sao_Paulo" {
		t.Fatalf("unexpected location %s", cfg.Location())
	}
}
