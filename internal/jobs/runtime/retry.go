package runtime

import (
	"time"

	"github.com/yungbote/hypermind-backend/internal/platform/httpx"
)

const (
	defaultMinBackoff = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
	defaultJitterFrac = 0.2
)

// RetryPolicy bounds how often a step is attempted. MaxAttempts counts the
// first attempt, so MaxAttempts=1 means no retries. Zero backoff fields take
// the defaults; a negative JitterFrac disables jitter.
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	JitterFrac  float64
}

// Retries builds a policy allowing n retries after the first attempt.
func Retries(n int) RetryPolicy {
	if n < 0 {
		n = 0
	}
	return RetryPolicy{MaxAttempts: n + 1}
}

func NoRetry() RetryPolicy { return RetryPolicy{MaxAttempts: 1} }

func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Allows reports whether another attempt may follow attempt number `attempts`
// that failed with err.
func (p RetryPolicy) Allows(attempts int, err error) bool {
	if attempts >= p.Attempts() {
		return false
	}
	return Classify(err) == KindTransient
}

// Backoff returns the wait before the attempt following `attempts`
// (1-based): min*2^(attempts-1), capped at max, spread by jitter.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	min := p.MinBackoff
	if min <= 0 {
		min = defaultMinBackoff
	}
	max := p.MaxBackoff
	if max <= 0 {
		max = defaultMaxBackoff
	}
	if max < min {
		max = min
	}
	j := p.JitterFrac
	if j == 0 {
		j = defaultJitterFrac
	}
	if j < 0 {
		j = 0
	}
	if attempts < 1 {
		attempts = 1
	}
	d := min
	for i := 1; i < attempts && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return httpx.Jitter(d, j)
}
