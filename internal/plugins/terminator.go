// internal/plugins/terminator.go
package plugins

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ahrbot/ahrbot/internal/lobby"
)

// Terminator closes the lobby after it has stayed empty for a grace
// period. A rejoin during the period cancels the close.
type Terminator struct {
	base
	grace time.Duration

	timer *time.Timer
	gen   int
}

func NewTerminator(l *lobby.Lobby, grace time.Duration, logger *logrus.Entry) *Terminator {
	t := &Terminator{base: newBase("terminator", l, logger), grace: grace}
	t.track(lobby.Sub(l.Events.PlayerLeft, t.onPlayerLeft))
	t.track(lobby.Sub(l.Events.PlayerJoined, t.onPlayerJoined))
	return t
}

func (t *Terminator) Detach() {
	t.stop()
	t.base.Detach()
}

func (t *Terminator) onPlayerLeft(lobby.PlayerLeftEvent) {
	if t.lobby.PlayerCount() > 0 || t.grace <= 0 {
		return
	}
	t.stop()
	t.gen++
	gen := t.gen
	t.logger.WithField("grace", t.grace).Info("lobby empty, arming termination")
	t.timer = time.AfterFunc(t.grace, func() { t.fire(gen) })
}

func (t *Terminator) onPlayerJoined(lobby.PlayerJoinedEvent) {
	t.stop()
}

func (t *Terminator) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

func (t *Terminator) fire(gen int) {
	shouldClose := false
	t.lobby.Do(func() {
		if gen != t.gen {
			return
		}
		t.timer = nil
		shouldClose = t.lobby.PlayerCount() == 0 && t.lobby.Status() == lobby.Entered
	})
	if !shouldClose {
		return
	}
	// Close blocks on the departure confirmation, so it must run outside
	// a lobby turn.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := t.lobby.Close(ctx); err != nil {
		t.logger.WithError(err).Warn("termination close failed")
	} else {
		t.logger.Info("empty lobby closed")
	}
}
