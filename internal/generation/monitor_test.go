package generation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestActivityMonitorDetectsStall(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m := NewActivityMonitor(DefaultTimeoutConfig(), clock.Now)

	clock.Advance(29 * time.Second)
	assert.False(t, m.ShouldTimeout())

	m.RecordActivity()
	clock.Advance(30 * time.Second)
	assert.False(t, m.ShouldTimeout(), "a gap equal to the window is not a stall")

	clock.Advance(time.Millisecond)
	assert.True(t, m.ShouldTimeout())
	assert.Equal(t, 30*time.Second+time.Millisecond, m.SinceLastActivity())
}

func TestActivityMonitorIgnoresTotalElapsed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m := NewActivityMonitor(DefaultTimeoutConfig(), clock.Now)

	for i := 0; i < 100; i++ {
		clock.Advance(10 * time.Second)
		m.RecordActivity()
	}
	assert.False(t, m.ShouldTimeout())
}

func TestTimeoutForRetry(t *testing.T) {
	m := NewActivityMonitor(DefaultTimeoutConfig(), nil)

	assert.Equal(t, 120*time.Second, m.TimeoutFor(0))
	assert.Equal(t, 180*time.Second, m.TimeoutFor(1))
	assert.Equal(t, 240*time.Second, m.TimeoutFor(2))
	assert.Equal(t, 600*time.Second, m.TimeoutFor(20))
	assert.Equal(t, 30*time.Second, m.ActivityWindow())
}

func TestAccumulatorPreservesOrder(t *testing.T) {
	var acc Accumulator
	for _, chunk := range []string{`{"html":`, `"<p>`, `hi</p>"}`} {
		acc.Append(chunk)
	}
	assert.Equal(t, `{"html":"<p>hi</p>"}`, acc.String())
	assert.Equal(t, 3, acc.Chunks())
	assert.Equal(t, len(`{"html":"<p>hi</p>"}`), acc.Len())

	acc.Reset()
	assert.Equal(t, "", acc.String())
	assert.Equal(t, 0, acc.Chunks())
}
