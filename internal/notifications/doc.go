// Package notifications delivers daemon events to ntfy.
//
// Callers publish an Event with a loosely typed Payload; the service renders
// the title, message, tags and priority and POSTs them to the configured
// topic URL. Each event can be switched off in the [notifications] config
// section, and an unset topic yields a no-op service, so callers never check
// whether notifications are enabled.
package notifications
