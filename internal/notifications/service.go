package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lucianfialho/urban-lullaby/internal/config"
)

const userAgent = "urban-lullaby/0.1"

// Event identifies a notification kind.
type Event string

const (
	EventPassFailed       Event = "pass_failed"
	EventBroadcastStarted Event = "broadcast_started"
	EventBroadcastEnded   Event = "broadcast_ended"
	EventRotation         Event = "rotation"
	EventTest             Event = "test"
)

// Payload carries event fields. Keys are documented per event in render.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventPassFailed:       cfg.Notifications.PassFailed,
			EventBroadcastStarted: cfg.Notifications.BroadcastStarted,
			EventBroadcastEnded:   cfg.Notifications.BroadcastEnded,
			EventRotation:         cfg.Notifications.Rotation,
			EventTest:             true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	rendered, ok := render(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, rendered)
}

func render(event Event, data Payload) (payload, bool) {
	switch event {
	case EventPassFailed:
		stage := stringValue(data, "stage")
		if stage == "" {
			stage = "pass"
		}
		message := fmt.Sprintf("❌ Pass failed during %s: %s", stage, orDefault(stringValue(data, "error"), "unknown error"))
		if date := stringValue(data, "date"); date != "" {
			message += "\nDay: " + date
		}
		return payload{
			title:    "Lullaby - Pass Failed",
			message:  message,
			tags:     []string{"lullaby", "pass", "failed"},
			priority: "high",
		}, true
	case EventBroadcastStarted:
		message := "📡 Broadcast live"
		if tracks := intValue(data, "tracks"); tracks > 0 {
			message = fmt.Sprintf("📡 Broadcast live with %d tracks", tracks)
		}
		if target := stringValue(data, "target"); target != "" {
			message += "\nTarget: " + target
		}
		return payload{
			title:   "Lullaby - Broadcast Started",
			message: message,
			tags:    []string{"lullaby", "broadcast", "started"},
		}, true
	case EventBroadcastEnded:
		reason := orDefault(stringValue(data, "reason"), "ended")
		message := fmt.Sprintf("Broadcast stopped (%s)", reason)
		if errText := stringValue(data, "error"); errText != "" {
			message += ": " + errText
		}
		priority := ""
		if reason == "failed" {
			priority = "high"
		}
		return payload{
			title:    "Lullaby - Broadcast Ended",
			message:  message,
			tags:     []string{"lullaby", "broadcast", reason},
			priority: priority,
		}, true
	case EventRotation:
		message := fmt.Sprintf("🌙 New day %s", orDefault(stringValue(data, "date"), "started"))
		if removed := intValue(data, "removed"); removed > 0 {
			message += fmt.Sprintf(", removed %d files from %s", removed, orDefault(stringValue(data, "previous"), "previous day"))
		}
		return payload{
			title:   "Lullaby - Rotation",
			message: message,
			tags:    []string{"lullaby", "rotation"},
		}, true
	case EventTest:
		return payload{
			title:    "Lullaby - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"lullaby", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func stringValue(data Payload, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func intValue(data Payload, key string) int {
	if data == nil {
		return 0
	}
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
