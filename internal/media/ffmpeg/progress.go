package ffmpeg

import (
	"strconv"
	"strings"
	"time"
)

// progressParser accumulates `key=value` lines from -progress output and
// yields a snapshot whenever a block terminates with progress=continue|end.
type progressParser struct {
	current Event
}

func (p *progressParser) feed(line string) (Event, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return Event{}, false
	}
	value = strings.TrimSpace(value)
	switch key {
	case "frame":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			p.current.Frame = n
		}
	case "fps":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			p.current.FPS = f
		}
	case "bitrate":
		p.current.Bitrate = value
	case "total_size":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			p.current.TotalSize = n
		}
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds in current ffmpeg releases.
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n >= 0 {
			p.current.OutTime = time.Duration(n) * time.Microsecond
		}
	case "speed":
		p.current.Speed = value
	case "progress":
		snapshot := p.current
		snapshot.Kind = EventProgress
		snapshot.Final = value == "end"
		return snapshot, true
	}
	return Event{}, false
}

// tail keeps the last n lines written to it.
type tail struct {
	n     int
	lines []string
}

func newTail(n int) *tail {
	return &tail{n: n}
}

func (t *tail) add(line string) {
	line = strings.TrimRight(line, "\r\n ")
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tail) String() string {
	return strings.Join(t.lines, "\n")
}
