package domain

// ProgressEventType discriminates progress events.
type ProgressEventType string

const (
	// EventConnected is the first event on a streaming subscription.
	EventConnected ProgressEventType = "connected"
	// EventProgress reports cumulative processed-unit counts.
	EventProgress ProgressEventType = "progress"
	// EventComplete is the success terminal event.
	EventComplete ProgressEventType = "complete"
	// EventError is the failure terminal event.
	EventError ProgressEventType = "error"
)

// ProgressEvent is one event in a search run's progress stream.
// Connected (if streaming) precedes all Progress events, and exactly one
// terminal event (Complete or Error) is emitted last. Current is
// monotonically non-decreasing as observed by one subscriber.
type ProgressEvent struct {
	Type ProgressEventType `json:"type"`

	// Progress fields.
	Current         int    `json:"current,omitempty"`
	Total           int    `json:"total,omitempty"`
	CurrentPage     int    `json:"currentPage,omitempty"`
	CurrentDocument string `json:"currentDocument,omitempty"`

	// Complete fields.
	Success             bool       `json:"success,omitempty"`
	Result              *RunResult `json:"result,omitempty"`
	MeasurementsCreated int        `json:"measurementsCreated,omitempty"`

	// Error field.
	Error string `json:"error,omitempty"`
}

// ProgressSink receives progress events from a running search. Send errors
// mean the subscriber is gone; the orchestrator treats that as a cancel
// signal and stops scheduling new units.
type ProgressSink interface {
	Send(ev ProgressEvent) error
}

// DiscardSink drops every event. Used for blocking (single-response)
// delivery, where the caller only consumes the final result.
type DiscardSink struct{}

// Send implements ProgressSink.
func (DiscardSink) Send(ProgressEvent) error { return nil }
