// internal/limiter/limiter.go

// Package limiter paces outgoing chat so the connection stays inside the
// server's flood limits.
package limiter

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SendFunc is the raw outgoing-send primitive being wrapped.
type SendFunc func(target, text string)

type queued struct {
	target string
	text   string
}

// Limiter applies token-bucket pacing to a SendFunc: tokens sends per
// period, so consecutive sends are spaced at least period/tokens apart.
// Multi-line input is split and each non-empty line queued independently
// in submission order.
type Limiter struct {
	send     SendFunc
	interval time.Duration
	logger   *logrus.Entry

	mu       sync.Mutex
	queue    []queued
	lastSent time.Time
	timer    *time.Timer
	disposed bool
}

// New wraps send with a pacing policy of tokens sends per period.
func New(send SendFunc, tokens int, period time.Duration, logger *logrus.Entry) *Limiter {
	if tokens < 1 {
		tokens = 1
	}
	return &Limiter{
		send:     send,
		interval: period / time.Duration(tokens),
		logger:   logger,
	}
}

// Say submits text for target. Line breaks split the text into separate
// sends; empty lines are dropped. Eligible lines go out immediately,
// the rest are queued behind a single pacing timer.
func (l *Limiter) Say(target, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if line == "" {
			continue
		}
		l.submitLocked(target, line)
	}
}

func (l *Limiter) submitLocked(target, line string) {
	wait := l.interval - time.Since(l.lastSent)
	if l.timer == nil && wait <= 0 {
		l.lastSent = time.Now()
		l.send(target, line)
		return
	}
	l.queue = append(l.queue, queued{target: target, text: line})
	if l.timer == nil {
		if wait < 0 {
			wait = 0
		}
		l.timer = time.AfterFunc(wait, l.fire)
	}
}

// fire sends the oldest queued line and re-arms while more remain.
func (l *Limiter) fire() {
	l.mu.Lock()
	if l.disposed || len(l.queue) == 0 {
		l.timer = nil
		l.mu.Unlock()
		return
	}
	head := l.queue[0]
	l.queue = l.queue[1:]
	l.lastSent = time.Now()
	if len(l.queue) > 0 {
		l.timer = time.AfterFunc(l.interval, l.fire)
	} else {
		l.timer = nil
	}
	send := l.send
	l.mu.Unlock()

	send(head.target, head.text)
}

// Pending reports the number of queued, not yet sent lines.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Dispose cancels the pacing timer and drops the queue. Nothing queued is
// flushed; callers needing delivery must not rely on Dispose for
// outstanding messages.
func (l *Limiter) Dispose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return
	}
	l.disposed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if n := len(l.queue); n > 0 && l.logger != nil {
		l.logger.WithField("dropped", n).Debug("limiter disposed with queued messages")
	}
	l.queue = nil
}
