package reembed

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// steppingClock advances by step on every reading.
func steppingClock(step time.Duration) func() time.Time {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func newTestTracker(buf *bytes.Buffer, total, interval int) *ProgressTracker {
	p := NewProgressTracker(buf, total, interval)
	p.now = steppingClock(time.Second)
	return p
}

func TestProgressTracker_ReportsAtInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := newTestTracker(&buf, 100, 10)
	tracker.Start()

	tracker.Update(5)
	assert.Empty(t, buf.String(), "below the interval")

	tracker.Update(10)
	assert.Contains(t, buf.String(), "10/100 segments (10.0%)")

	tracker.Increment(25)
	assert.Contains(t, buf.String(), "35/100 segments (35.0%)")
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := newTestTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Update(75)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "100/100 segments (100.0%)")
	assert.True(t, strings.HasSuffix(output, "\n"))
}

func TestProgressTracker_CapsAtTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := newTestTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Increment(150)

	assert.Contains(t, buf.String(), "100/100")
	assert.NotContains(t, buf.String(), "150")
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := newTestTracker(&buf, 0, 10)

	tracker.Start()
	tracker.Finish()

	assert.Contains(t, buf.String(), "0/0 segments (0.0%)")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := newTestTracker(&buf, 100, 1)

	tracker.Update(50)
	tracker.Increment(10)
	tracker.Finish()

	assert.Empty(t, buf.String())
	assert.Zero(t, tracker.Elapsed())
}

func TestProgressTracker_Rate(t *testing.T) {
	var buf bytes.Buffer
	tracker := newTestTracker(&buf, 100, 20)

	tracker.Start()    // t=1s
	tracker.Update(20) // reported at t=2s: 20 per second

	assert.Contains(t, buf.String(), "20.0 segments/s")
	assert.Equal(t, 2*time.Second, tracker.Elapsed())
}
