// Package report publishes step results to the orchestration host.
package report

import (
	"context"
	"time"
)

// Event is the result of one step execution.
type Event struct {
	RunID    string    `json:"run_id"`
	Step     string    `json:"step"`
	Result   string    `json:"result"`
	ExitCode int       `json:"exit_code"`
	Error    string    `json:"error,omitempty"`
	Finished time.Time `json:"finished"`
}

// Reporter publishes events. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(ctx context.Context, ev Event) error
}

// Nop discards events.
type Nop struct{}

// Report implements Reporter.
func (Nop) Report(context.Context, Event) error { return nil }
