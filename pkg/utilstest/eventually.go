package utilstest

import (
	"testing"
	"time"
)

// EventuallyResult contains the information about eventually status.
type EventuallyResult struct {
	lastError error
	attempts  int
}

// Attempts returns the number of attempts for this eventually.
func (e *EventuallyResult) Attempts() int {
	return e.attempts
}

// Error returns last recorded error.
func (e *EventuallyResult) Error() error {
	return e.lastError
}

// Eventually executes a function every interval for forMaximumDuration, until first time the block succeeds.
func Eventually(t *testing.T, f func() error, interval, forMaximumDuration time.Duration) *EventuallyResult {
	t.Helper()
	deadline := time.Now().Add(forMaximumDuration)
	result := &EventuallyResult{}
	for {
		result.lastError = f()
		result.attempts = result.attempts + 1
		if result.lastError == nil || time.Until(deadline) < 0 {
			return result
		}
		<-time.After(interval)
	}
}

// MustEventually must complete eventually execution with success within given duration, otherwise fail the test immediately.
func MustEventually(t *testing.T, f func() error, interval, forMaximumDuration time.Duration) {
	t.Helper()
	result := Eventually(t, f, interval, forMaximumDuration)
	if result.Error() != nil {
		t.Fatal("Attempted", result.Attempts(), "time(s), reason:", result.Error())
	}
}

// MustEventuallyWithDefaults must complete eventually execution with success within given duration, otherwise fail the test immediately.
// Uses default timeouts.
func MustEventuallyWithDefaults(t *testing.T, f func() error) {
	t.Helper()
	MustEventually(t, f, 50*time.Millisecond, 5*time.Second)
}
