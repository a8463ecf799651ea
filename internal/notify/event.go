package notify

// EventKind mirrors the wire-level type tag of inbound channel messages.
type EventKind string

const (
	KindGeneric      EventKind = "notification"
	KindExamReminder EventKind = "exam_reminder"
	KindResultReady  EventKind = "result_ready"
	KindSystemUpdate EventKind = "system_update"
)

// Event is one accepted inbound notification, normalized: the title is
// always populated (synthesized for kinds whose payloads carry none).
type Event struct {
	Kind    EventKind
	Title   string
	Message string
}
