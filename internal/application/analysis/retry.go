package analysis

import "time"

// Documented defaults for the retry contract: 3 attempts total, linearly
// increasing delays (step, 2*step) between them.
const (
	DefaultMaxAttempts = 3
	DefaultRetryStep   = time.Second
)

// RetryPolicy is a pure description of the retry schedule, free of side
// effects so it can be tested without a clock or provider.
type RetryPolicy struct {
	MaxAttempts int
	Step        time.Duration
}

func (p RetryPolicy) orDefault() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Step <= 0 {
		p.Step = DefaultRetryStep
	}
	return p
}

// Delay returns the pause after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * p.Step
}
