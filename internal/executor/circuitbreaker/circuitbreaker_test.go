package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_TripsAfterThresholdFailures(t *testing.T) {
	b := New(3, time.Hour)
	assert.True(t, b.Allow())

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.True(t, b.IsOpen())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b := New(2, time.Hour)
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.False(t, b.IsOpen(), "success should have reset the consecutive-failure count")
}

func TestBreaker_HalfOpensAfterResetWindow(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure()
	assert.True(t, b.IsOpen())
	assert.False(t, b.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.Allow(), "breaker should half-open and allow a probe once the reset window elapses")
}
