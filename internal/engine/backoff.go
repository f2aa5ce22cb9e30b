package engine

import "time"

// Backoff bounds transport-error retries with exponential delays.
//
// The source behavior left retry timing unspecified; the chosen bound is
// three attempts with delays of base, 2*base, ... between them. An
// unreachable backend therefore converts to a terminal failure instead of
// stalling the queue indefinitely.
type Backoff struct {
	// Base is the delay before the second attempt. Subsequent delays
	// double it.
	Base time.Duration

	// MaxAttempts is the total executor-call budget per mutation,
	// including the first attempt.
	MaxAttempts int
}

// DefaultBackoff is the production retry policy.
var DefaultBackoff = Backoff{
	Base:        500 * time.Millisecond,
	MaxAttempts: 3,
}

// Delay returns the pause before the next attempt, given how many
// attempts have already been made. Delay(1) follows the first failure.
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := b.Base
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}

// Exhausted reports whether the attempt budget is spent.
func (b Backoff) Exhausted(attempts int) bool {
	return attempts >= b.MaxAttempts
}
