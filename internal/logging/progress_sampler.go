package logging

import "time"

// ProgressSampler suppresses repetitive ffmpeg progress logs. It emits once
// per interval of encoded media time, so a long broadcast reports steadily
// without flooding the log.
type ProgressSampler struct {
	interval   time.Duration
	lastBucket int64
}

// NewProgressSampler constructs a sampler that emits whenever the media
// position crosses an interval boundary (default one minute).
func NewProgressSampler(interval time.Duration) *ProgressSampler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProgressSampler{interval: interval, lastBucket: -1}
}

// ShouldLog reports whether a progress event at position should be logged.
// Negative positions are reported as unknown and never logged.
func (s *ProgressSampler) ShouldLog(position time.Duration) bool {
	if s == nil {
		return true
	}
	if position < 0 {
		return false
	}
	bucket := int64(position / s.interval)
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		return true
	}
	return false
}

// Reset clears the sampler state when a new job starts.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastBucket = -1
}
