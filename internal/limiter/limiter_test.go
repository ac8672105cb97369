// internal/limiter/limiter_test.go
package limiter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendRecorder struct {
	mu    sync.Mutex
	lines []string
	times []time.Time
}

func (r *sendRecorder) send(target, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, target+"|"+text)
	r.times = append(r.times, time.Now())
}

func (r *sendRecorder) snapshot() ([]string, []time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...), append([]time.Time(nil), r.times...)
}

func TestImmediateSendWhenIdle(t *testing.T) {
	rec := &sendRecorder{}
	l := New(rec.send, 2, time.Second, nil)
	defer l.Dispose()

	l.Say("#mp_1", "hello")

	lines, _ := rec.snapshot()
	require.Equal(t, []string{"#mp_1|hello"}, lines)
	assert.Equal(t, 0, l.Pending())
}

// With tokens=2 and period=200ms, five back-to-back sends must arrive in
// submission order spaced at least 100ms apart.
func TestPacingAndOrder(t *testing.T) {
	rec := &sendRecorder{}
	interval := 100 * time.Millisecond
	l := New(rec.send, 2, 2*interval, nil)
	defer l.Dispose()

	for _, msg := range []string{"m1", "m2", "m3", "m4", "m5"} {
		l.Say("#c", msg)
	}

	require.Eventually(t, func() bool {
		lines, _ := rec.snapshot()
		return len(lines) == 5
	}, 2*time.Second, 10*time.Millisecond)

	lines, times := rec.snapshot()
	assert.Equal(t, []string{"#c|m1", "#c|m2", "#c|m3", "#c|m4", "#c|m5"}, lines)
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		assert.GreaterOrEqual(t, gap, interval-10*time.Millisecond, "gap %d", i)
	}
}

func TestMultilineSplit(t *testing.T) {
	rec := &sendRecorder{}
	l := New(rec.send, 100, time.Millisecond, nil)
	defer l.Dispose()

	l.Say("#c", "one\n\ntwo\r\nthree")

	require.Eventually(t, func() bool {
		lines, _ := rec.snapshot()
		return len(lines) == 3
	}, time.Second, 5*time.Millisecond)

	lines, _ := rec.snapshot()
	assert.Equal(t, []string{"#c|one", "#c|two", "#c|three"}, lines)
}

func TestDisposeDropsQueueWithoutFlush(t *testing.T) {
	rec := &sendRecorder{}
	l := New(rec.send, 1, time.Hour, nil)

	l.Say("#c", "first")  // goes out immediately
	l.Say("#c", "second") // queued behind an hour-long timer
	l.Say("#c", "third")
	require.Equal(t, 2, l.Pending())

	l.Dispose()
	assert.Equal(t, 0, l.Pending())

	// Nothing more may arrive, and further sends are ignored.
	l.Say("#c", "after dispose")
	time.Sleep(50 * time.Millisecond)
	lines, _ := rec.snapshot()
	assert.Equal(t, []string{"#c|first"}, lines)
}
