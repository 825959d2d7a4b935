package orch

// Broadcaster sends real-time phase lifecycle events to in-process
// observers.
type Broadcaster interface {
	BroadcastGameEvent(runID string, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for testing or when no observer
// is attached.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastGameEvent(string, string, any) {}
