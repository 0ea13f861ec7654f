package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// RequiredEncoders are the ffmpeg encoders used by combine and broadcast.
var RequiredEncoders = []string{"libmp3lame", "libx264", "aac"}

// CheckFFmpegEncoders runs `ffmpeg -hide_banner -encoders` and reports one
// Status per requested encoder. An ffmpeg build without libx264 or libmp3lame
// starts fine but fails every pass, so this is checked up front.
func CheckFFmpegEncoders(ctx context.Context, ffmpegBinary string, encoders []string) []Status {
	results := make([]Status, 0, len(encoders))
	available, err := listEncoders(ctx, ffmpegBinary)
	for _, name := range encoders {
		status := Status{
			Name:        "ffmpeg encoder " + name,
			Command:     ffmpegBinary,
			Description: "Required ffmpeg encoder",
		}
		switch {
		case err != nil:
			status.Detail = err.Error()
		case available[name]:
			status.Available = true
		default:
			status.Detail = fmt.Sprintf("encoder %q not compiled into %s", name, ffmpegBinary)
		}
		results = append(results, status)
	}
	return results
}

func listEncoders(ctx context.Context, ffmpegBinary string) (map[string]bool, error) {
	if strings.TrimSpace(ffmpegBinary) == "" {
		return nil, fmt.Errorf("ffmpeg binary not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegBinary, "-hide_banner", "-encoders") //nolint:gosec
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("list ffmpeg encoders: %w", err)
	}
	return parseEncoderList(stdout.String()), nil
}

// parseEncoderList extracts encoder names from `ffmpeg -encoders` output,
// where each entry looks like " A....D libmp3lame  libmp3lame MP3 ...".
func parseEncoderList(output string) map[string]bool {
	encoders := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(output))
	inList := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "------") {
			inList = true
			continue
		}
		if !inList || line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}
