package portstest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockFiresDueTimersInOrder(t *testing.T) {
	t.Parallel()

	clock := NewFakeClock(time.Unix(0, 0))
	var fired []string
	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	stopped := clock.AfterFunc(time.Second, func() { fired = append(fired, "never") })

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())
	assert.Equal(t, []time.Duration{2 * time.Second, time.Second}, clock.Pending())

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"a"}, fired)

	clock.Advance(time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Empty(t, clock.Pending())
	assert.Equal(t, time.Unix(0, 0).Add(2500*time.Millisecond), clock.Now())
}
