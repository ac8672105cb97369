// internal/plugins/skipvote.go
package plugins

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ahrbot/ahrbot/internal/lobby"
	"github.com/ahrbot/ahrbot/internal/models"
)

// SkipVoteConfig tunes the quorum and the AFK watchdog.
type SkipVoteConfig struct {
	// VoteRate of the player count required to pass, floored at MinVotes.
	VoteRate float64
	MinVotes int
	// Cooldown rejects votes arriving this soon after a vote restart.
	Cooldown time.Duration
	// AFKTimeout arms a watchdog on every confirmed host change; zero
	// disables it.
	AFKTimeout time.Duration
	// AFKMessage, when set, is said in the channel on expiry.
	AFKMessage string
	// AFKSkip triggers a skip on expiry.
	AFKSkip bool
}

func DefaultSkipVoteConfig() SkipVoteConfig {
	return SkipVoteConfig{
		VoteRate:   0.5,
		MinVotes:   2,
		Cooldown:   5 * time.Second,
		AFKTimeout: 90 * time.Second,
		AFKSkip:    true,
	}
}

// SkipVote arbitrates !skip votes and watches for AFK hosts. It talks to
// the rotation plugin only through the "skip" and "skipto" signals.
type SkipVote struct {
	base
	cfg SkipVoteConfig

	votes        map[string]*models.Player
	skipInFlight bool
	restartedAt  time.Time

	afkTimer *time.Timer
	afkGen   int
}

func NewSkipVote(l *lobby.Lobby, cfg SkipVoteConfig, logger *logrus.Entry) *SkipVote {
	s := &SkipVote{
		base:        newBase("skip-vote", l, logger),
		cfg:         cfg,
		votes:       make(map[string]*models.Player),
		restartedAt: time.Now(),
	}
	s.track(lobby.Sub(l.Events.CustomCommand, s.onCustomCommand))
	s.track(lobby.Sub(l.Events.HostChanged, s.onHostChanged))
	s.track(lobby.Sub(l.Events.MatchStarted, s.onMatchStarted))
	s.track(lobby.Sub(l.Events.PlayerLeft, s.onPlayerLeft))
	s.track(lobby.Sub(l.Events.PlayerChatted, s.onPlayerChatted))
	s.track(lobby.Sub(l.Events.BeatmapChanging, s.onBeatmapChanging))
	return s
}

// Detach also stops the AFK watchdog.
func (s *SkipVote) Detach() {
	s.stopAFKTimer()
	s.base.Detach()
}

// RequiredVotes is the quorum for the current player count.
func (s *SkipVote) RequiredVotes() int {
	return int(math.Ceil(math.Max(float64(s.lobby.PlayerCount())*s.cfg.VoteRate, float64(s.cfg.MinVotes))))
}

// VoteCount reports the currently registered votes. Turn-context.
func (s *SkipVote) VoteCount() int { return len(s.votes) }

func (s *SkipVote) onCustomCommand(ev lobby.CustomCommandEvent) {
	switch ev.Command {
	case "!skip":
		s.handleSkipVote(ev.Player)
	case "*skipto":
		if ev.Authority < lobby.AuthAuthorized || ev.Param == "" {
			return
		}
		s.clearVotes()
		s.skipInFlight = true
		s.lobby.SendPluginSignal(s.name, "skipto", ev.Param)
	}
}

func (s *SkipVote) handleSkipVote(voter *models.Player) {
	if s.lobby.IsMatching() {
		return
	}
	if voter == s.lobby.Host() {
		// The host skipping themselves is unconditional.
		s.triggerSkip("host request")
		return
	}
	switch {
	case s.skipInFlight:
		s.logger.WithField("voter", voter.Name).Debug("vote rejected, skip in flight")
	case time.Since(s.restartedAt) < s.cfg.Cooldown:
		s.logger.WithField("voter", voter.Name).Debug("vote rejected, cooldown")
	case s.votes[voter.ID] != nil:
		s.logger.WithField("voter", voter.Name).Debug("vote rejected, already voted")
	default:
		s.votes[voter.ID] = voter
		s.logger.WithFields(logrus.Fields{
			"voter": voter.Name, "votes": len(s.votes), "required": s.RequiredVotes(),
		}).Info("skip vote")
		if len(s.votes) >= s.RequiredVotes() {
			s.triggerSkip("vote passed")
		}
	}
}

func (s *SkipVote) triggerSkip(reason string) {
	s.logger.WithField("reason", reason).Info("skipping host")
	s.clearVotes()
	s.skipInFlight = true
	s.stopAFKTimer()
	s.lobby.SendPluginSignal(s.name, "skip")
}

func (s *SkipVote) onHostChanged(ev lobby.HostChangedEvent) {
	if !ev.Succeeded {
		return
	}
	s.clearVotes()
	s.skipInFlight = false
	s.restartedAt = time.Now()
	s.armAFKTimer()
}

func (s *SkipVote) onMatchStarted(struct{}) {
	s.clearVotes()
	s.stopAFKTimer()
}

func (s *SkipVote) onPlayerLeft(ev lobby.PlayerLeftEvent) {
	delete(s.votes, ev.Player.ID)
}

func (s *SkipVote) onPlayerChatted(ev lobby.PlayerChattedEvent) {
	if ev.Player == s.lobby.Host() {
		// Any chat from the host proves presence.
		s.stopAFKTimer()
	}
}

func (s *SkipVote) onBeatmapChanging(struct{}) {
	s.stopAFKTimer()
}

func (s *SkipVote) armAFKTimer() {
	s.stopAFKTimer()
	if s.cfg.AFKTimeout <= 0 {
		return
	}
	s.afkGen++
	gen := s.afkGen
	s.afkTimer = time.AfterFunc(s.cfg.AFKTimeout, func() {
		s.lobby.Do(func() { s.onAFKExpired(gen) })
	})
}

func (s *SkipVote) stopAFKTimer() {
	if s.afkTimer != nil {
		s.afkTimer.Stop()
		s.afkTimer = nil
	}
	s.afkGen++
}

// onAFKExpired runs as its own lobby turn. A stale generation means the
// timer was cancelled after firing; ignore it.
func (s *SkipVote) onAFKExpired(gen int) {
	if gen != s.afkGen {
		return
	}
	s.afkTimer = nil
	s.clearVotes()
	host := s.lobby.Host()
	if host == nil {
		return
	}
	s.logger.WithField("host", host.Name).Info("host AFK timeout")
	if s.cfg.AFKMessage != "" {
		s.lobby.SendMessage(s.cfg.AFKMessage)
	}
	if s.cfg.AFKSkip {
		s.skipInFlight = true
		s.lobby.SendPluginSignal(s.name, "skip")
	}
}

func (s *SkipVote) clearVotes() {
	s.votes = make(map[string]*models.Player)
}
