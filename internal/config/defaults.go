package config

const (
	defaultOutputRoot             = "~/.local/share/lullaby/music"
	defaultCacheDir               = "~/.local/share/lullaby/cache"
	defaultLogDir                 = "~/.local/share/lullaby/logs"
	defaultMinFreeSpaceMiB        = 512
	defaultCatalogueBaseURL       = "https://www.epidemicsound.com"
	defaultSearchTerm             = "lofi hip hop 2000"
	defaultCatalogueTimeout       = 30
	defaultDownloadTimeout        = 300
	defaultUserAgent              = "urban-lullaby/0.1"
	defaultStreamURL              = "rtmp://a.rtmp.youtube.com/live2"
	defaultVideoBitrate           = "4000k"
	defaultAudioBitrate           = "128k"
	defaultStreamPreset           = "medium"
	defaultFrameRate              = 30
	defaultKeyframeInterval       = 50
	defaultVideoHeight            = 1080
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultCombineBitrate         = "192k"
	defaultScheduleInterval       = 60
	defaultTimezone               = "UTC"
	defaultAPIBind                = "127.0.0.1:7488"
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultBroadcastStopGraceSecs = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputRoot:      defaultOutputRoot,
			CacheDir:        defaultCacheDir,
			LogDir:          defaultLogDir,
			MinFreeSpaceMiB: defaultMinFreeSpaceMiB,
		},
		Catalogue: Catalogue{
			BaseURL:         defaultCatalogueBaseURL,
			SearchTerm:      defaultSearchTerm,
			RequestTimeout:  defaultCatalogueTimeout,
			DownloadTimeout: defaultDownloadTimeout,
			UserAgent:       defaultUserAgent,
		},
		Stream: Stream{
			URL:              defaultStreamURL,
			VideoBitrate:     defaultVideoBitrate,
			AudioBitrate:     defaultAudioBitrate,
			Preset:           defaultStreamPreset,
			FrameRate:        defaultFrameRate,
			KeyframeInterval: defaultKeyframeInterval,
			VideoHeight:      defaultVideoHeight,
			StopGraceSeconds: defaultBroadcastStopGraceSecs,
		},
		Media: Media{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			CombineBitrate: defaultCombineBitrate,
		},
		Schedule: Schedule{
			IntervalMinutes: defaultScheduleInterval,
			Timezone:        defaultTimezone,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Notifications: Notifications{
			RequestTimeout:   defaultNotifyRequestTimeout,
			PassFailed:       true,
			BroadcastStarted: true,
			BroadcastEnded:   true,
			Rotation:         false,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
