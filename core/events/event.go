package events

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. webhooks,
// indexers, audit sinks).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder buffers events during a mutating operation so they can be released
// only after the state commit succeeds. A failed operation resets the buffer
// and nothing escapes.
type Recorder struct {
	buffer []Event
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements the Emitter interface by queueing the event.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.buffer = append(r.buffer, evt)
}

// Pending returns the queued events without draining them.
func (r *Recorder) Pending() []Event {
	if r == nil {
		return nil
	}
	out := make([]Event, len(r.buffer))
	copy(out, r.buffer)
	return out
}

// Flush forwards every queued event to the sink in emission order and clears
// the buffer. A nil sink drains the buffer silently.
func (r *Recorder) Flush(sink Emitter) {
	if r == nil {
		return
	}
	for _, evt := range r.buffer {
		if sink != nil {
			sink.Emit(evt)
		}
	}
	r.buffer = r.buffer[:0]
}

// Reset drops any queued events.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.buffer = r.buffer[:0]
}
