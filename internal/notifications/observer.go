package notifications

import (
	"context"
	"log/slog"

	"github.com/lucianfialho/urban-lullaby/internal/logging"
)

// BroadcastObserver forwards broadcast lifecycle callbacks as events.
// Delivery failures are logged and never reach the broadcaster.
type BroadcastObserver struct {
	Service Service
	Logger  *slog.Logger
}

// BroadcastStarted publishes EventBroadcastStarted.
func (o BroadcastObserver) BroadcastStarted(ctx context.Context, target string) {
	o.publish(ctx, EventBroadcastStarted, Payload{"target": target})
}

// BroadcastEnded publishes EventBroadcastEnded. A superseded broadcast is
// the normal hand-over to the next pass and is not announced.
func (o BroadcastObserver) BroadcastEnded(ctx context.Context, reason string, err error) {
	if reason == "superseded" {
		return
	}
	data := Payload{"reason": reason}
	if err != nil {
		data["error"] = err
	}
	o.publish(context.WithoutCancel(ctx), EventBroadcastEnded, data)
}

func (o BroadcastObserver) publish(ctx context.Context, event Event, data Payload) {
	if o.Service == nil {
		return
	}
	if err := o.Service.Publish(ctx, event, data); err != nil && o.Logger != nil {
		logging.WarnWithContext(o.Logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "operator is not alerted"),
		)
	}
}
