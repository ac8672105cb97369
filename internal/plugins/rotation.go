// internal/plugins/rotation.go
package plugins

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/ahrbot/ahrbot/internal/lobby"
	"github.com/ahrbot/ahrbot/internal/models"
)

// maxSkipToRotations bounds how far SkipTo will walk the queue before
// giving up. The room holds at most 16 players, so a longer walk means
// the target is not there.
const maxSkipToRotations = 16

var (
	ErrSkipTargetAbsent = errors.New("skip target is not in the host queue")
	ErrSkipBoundHit     = errors.New("skip target not reached within rotation bound")
)

// HostRotation owns the FIFO host queue and decides who holds host
// privilege. The queue is never shared by identity with any other list;
// membership is kept consistent by event-driven removal.
type HostRotation struct {
	base

	queue []*models.Player

	// skipRotation suppresses the next match-start rotation, set when a
	// match aborts with zero finishers so the host keeps their turn.
	skipRotation bool
}

func NewHostRotation(l *lobby.Lobby, logger *logrus.Entry) *HostRotation {
	h := &HostRotation{base: newBase("host-rotation", l, logger)}

	h.track(lobby.Sub(l.Events.PlayerJoined, h.onPlayerJoined))
	h.track(lobby.Sub(l.Events.PlayerLeft, h.onPlayerLeft))
	h.track(lobby.Sub(l.Events.HostChanged, h.onHostChanged))
	h.track(lobby.Sub(l.Events.MatchStarted, h.onMatchStarted))
	h.track(lobby.Sub(l.Events.MatchFinished, h.onMatchFinished))
	h.track(lobby.Sub(l.Events.AbortedMatch, h.onAbortedMatch))
	h.track(lobby.Sub(l.Events.PluginSignal, h.onPluginSignal))
	return h
}

// Queue returns a copy of the current host order, head first. Turn-context.
func (h *HostRotation) Queue() []*models.Player {
	return append([]*models.Player(nil), h.queue...)
}

func (h *HostRotation) onPlayerJoined(ev lobby.PlayerJoinedEvent) {
	h.queue = append(h.queue, ev.Player)
	if h.lobby.PlayerCount() == 1 {
		h.appointHead()
	}
}

func (h *HostRotation) onPlayerLeft(ev lobby.PlayerLeftEvent) {
	h.remove(ev.Player)
	// The lobby already cleared the host pointer if the departing player
	// held it; a nil host with nothing pending means the seat is vacant.
	if h.lobby.Host() == nil && h.lobby.HostPending() == nil && !h.lobby.IsMatching() {
		h.appointHead()
	}
}

func (h *HostRotation) onHostChanged(ev lobby.HostChangedEvent) {
	if !ev.Succeeded {
		// The transfer target is gone or invalid: drop it and move on.
		h.remove(ev.Player)
		if h.lobby.HostPending() == nil {
			h.appointHead()
		}
		return
	}
	if len(h.queue) == 0 || h.queue[0] == ev.Player {
		return
	}
	// Out-of-band host change (manual !mp host, or a stale transfer).
	// Rotate the former head out, then steer back to the true head.
	h.logger.WithField("host", ev.Player.Name).Info("out-of-band host change, correcting")
	h.rotate()
	h.appointHead()
}

func (h *HostRotation) onMatchStarted(struct{}) {
	if h.skipRotation {
		h.skipRotation = false
		return
	}
	h.rotate()
}

func (h *HostRotation) onMatchFinished(struct{}) {
	h.appointHead()
}

func (h *HostRotation) onAbortedMatch(ev lobby.AbortedMatchEvent) {
	if ev.PlayersFinished == 0 {
		// Fully interruptible abort: the host keeps their turn and map.
		h.skipRotation = true
		return
	}
	// Someone already finished: treat like a normal finish.
	h.appointHead()
}

func (h *HostRotation) onPluginSignal(ev lobby.PluginSignalEvent) {
	switch ev.Type {
	case "skip":
		h.rotate()
		h.appointHead()
	case "skipto":
		if len(ev.Args) == 0 {
			h.logger.Warn("skipto signal without a target")
			return
		}
		if err := h.SkipTo(ev.Args[0]); err != nil {
			h.logger.WithError(err).Warn("skipto failed")
		}
	}
}

// SkipTo rotates until the named player is at the head, bounded by
// maxSkipToRotations, then appoints. The error names which bound was hit.
// Turn-context.
func (h *HostRotation) SkipTo(name string) error {
	id := models.NormalizeName(name)
	_, found := lo.Find(h.queue, func(p *models.Player) bool { return p.ID == id })
	if !found {
		return fmt.Errorf("%w: %s", ErrSkipTargetAbsent, name)
	}
	for i := 0; i < maxSkipToRotations; i++ {
		if len(h.queue) > 0 && h.queue[0].ID == id {
			h.appointHead()
			return nil
		}
		h.rotate()
	}
	return fmt.Errorf("%w: %s after %d rotations", ErrSkipBoundHit, name, maxSkipToRotations)
}

// SeedOrder rearranges the queue to match names, head first, and appoints
// the resulting head. Names that are not current members are ignored;
// members not named keep their relative order at the tail. Used to restore
// a host order reconstructed from match history. Turn-context.
func (h *HostRotation) SeedOrder(names []string) {
	var next []*models.Player
	for _, name := range names {
		p := h.lobby.GetPlayer(name)
		if p == nil || lo.Contains(next, p) {
			continue
		}
		next = append(next, p)
	}
	for _, p := range h.queue {
		if !lo.Contains(next, p) {
			next = append(next, p)
		}
	}
	h.queue = next
	h.appointHead()
}

// rotate moves the current head to the tail.
func (h *HostRotation) rotate() {
	if len(h.queue) < 2 {
		return
	}
	head := h.queue[0]
	h.queue = append(h.queue[1:], head)
}

// appointHead transfers host to the queue head when it does not hold it.
func (h *HostRotation) appointHead() {
	if len(h.queue) == 0 {
		return
	}
	head := h.queue[0]
	if h.lobby.Host() == head {
		return
	}
	if err := h.lobby.TransferHost(head); err != nil {
		h.logger.WithError(err).Warn("host transfer failed")
	}
}

func (h *HostRotation) remove(p *models.Player) {
	h.queue = lo.Filter(h.queue, func(q *models.Player, _ int) bool { return q != p })
}
