package audit

import "context"

// MultiRecorder fans one event out to several recorders. A failing recorder
// does not stop the others; the first error is returned.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder creates a MultiRecorder.
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

// Record writes the event to every recorder.
func (m *MultiRecorder) Record(ctx context.Context, event *Event) error {
	var firstErr error
	for _, r := range m.recorders {
		if err := r.Record(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ListResourceEvents delegates to the first recorder that supports it.
func (m *MultiRecorder) ListResourceEvents(ctx context.Context, scope string, resourceID int64, limit int) ([]*Event, error) {
	var firstErr error
	for _, r := range m.recorders {
		events, err := r.ListResourceEvents(ctx, scope, resourceID, limit)
		if err == nil {
			return events, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
