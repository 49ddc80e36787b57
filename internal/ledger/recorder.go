package ledger

import "rebase-ledger/internal/domain"

// Recorder receives committed ledger events. Record is called synchronously
// while the ledger lock is held, so implementations must not block; buffered
// implementations hand the event off and return.
type Recorder interface {
	Record(e domain.Event)
}

// MultiRecorder fans events out to several recorders in order.
type MultiRecorder []Recorder

// Record forwards the event to every recorder.
func (m MultiRecorder) Record(e domain.Event) {
	for _, r := range m {
		r.Record(e)
	}
}

// nopRecorder discards all events.
type nopRecorder struct{}

func (nopRecorder) Record(domain.Event) {}
