// Package retry classifies call outcomes and schedules backoff for the
// transient ones.
package retry

import (
	"time"

	"github.com/unclebandit/calleopard-backend/internal/model"
)

// Classification splits outcomes into retry-or-terminal.
type Classification int

const (
	Terminal Classification = iota
	Retryable
)

const DefaultMaxAttempts = 3

// Policy decides whether a failed call is retried and when the contact
// becomes eligible again.
type Policy struct {
	MaxAttempts int
	Backoff     []time.Duration
}

// NewPolicy returns the default policy: three attempts, backing off
// 5m, 30m, 2h.
func NewPolicy() *Policy {
	return &Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff: []time.Duration{
			5 * time.Minute,
			30 * time.Minute,
			2 * time.Hour,
		},
	}
}

// Classify maps an outcome to retry-or-terminal. An unknown outcome is
// terminal; we never re-dial on a result we do not understand.
func (p *Policy) Classify(outcome model.CallOutcome) Classification {
	switch outcome {
	case model.OutcomeNoAnswer, model.OutcomeBusy, model.OutcomeProviderTimeout, model.OutcomeNetworkError:
		return Retryable
	}
	return Terminal
}

// ShouldRetry reports whether a contact with the given attempt count gets
// another dial for this outcome. attempts counts calls already made.
func (p *Policy) ShouldRetry(outcome model.CallOutcome, attempts int) bool {
	return p.Classify(outcome) == Retryable && attempts < p.maxAttempts()
}

// NextDelay returns the backoff before attempt+1, where attempt counts the
// calls already made (1-based after the first dial). Attempts past the end
// of the schedule reuse its last entry.
func (p *Policy) NextDelay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}

func (p *Policy) maxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return DefaultMaxAttempts
}
