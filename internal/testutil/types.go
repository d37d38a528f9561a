package testutil

import (
	"context"
	"sync"

	"github.com/vk/exerunner/internal/report"
)

// RecordingReporter keeps every reported event.
type RecordingReporter struct {
	mu     sync.Mutex
	events []report.Event
	Err    error
}

// Report implements report.Reporter.
func (r *RecordingReporter) Report(_ context.Context, ev report.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

// Events returns a copy of the events reported so far.
func (r *RecordingReporter) Events() []report.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]report.Event(nil), r.events...)
}
