// internal/lobby/handlers.go
package lobby

import (
	"strings"

	"github.com/ahrbot/ahrbot/internal/bancho"
	"github.com/ahrbot/ahrbot/internal/models"
	"github.com/ahrbot/ahrbot/internal/parser"
)

// onTransportMessage is the entry point of the event loop: one inbound
// chat line becomes one turn.
func (l *Lobby) onTransportMessage(m bancho.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.channel == "" || m.To != l.channel {
		return
	}

	if models.NormalizeName(m.From) == models.NormalizeName(BotName) {
		l.handleBotLine(m.Text)
		return
	}
	l.handlePlayerChat(m.From, m.Text)
}

func (l *Lobby) handleBotLine(line string) {
	if l.settingsParser != nil {
		done, err := l.settingsParser.Feed(line)
		if err != nil {
			l.logger.WithError(err).Warn("settings feed failed")
		}
		if done {
			l.finishSettings()
			return
		}
	}
	l.dispatch(parser.ParseResponse(line))
}

func (l *Lobby) handlePlayerChat(from, text string) {
	p := l.GetPlayer(from)
	if p == nil {
		// Referees and spectators can chat without holding a slot.
		p = l.roster.GetOrCreate(from)
	}
	l.Events.PlayerChatted.Emit(PlayerChattedEvent{Player: p, Message: text})

	if !strings.HasPrefix(text, "!") && !strings.HasPrefix(text, "*") {
		return
	}
	if strings.HasPrefix(strings.ToLower(text), "!mp ") {
		return // room commands addressed to the bot, not to us
	}
	command, param, _ := strings.Cut(text, " ")
	l.Events.CustomCommand.Emit(CustomCommandEvent{
		Player:    p,
		Authority: l.authorityOf(p),
		Command:   strings.ToLower(command),
		Param:     strings.TrimSpace(param),
	})
}

func (l *Lobby) dispatch(r parser.Response) {
	switch r.Type {
	case parser.PlayerJoined:
		l.handlePlayerJoined(r.Name, r.Slot, r.Team, false)
	case parser.PlayerLeft:
		l.handlePlayerLeft(r.Name)
	case parser.BeatmapChanging:
		l.Events.BeatmapChanging.Emit(struct{}{})
	case parser.BeatmapChanged:
		l.mapID = r.MapID
		l.mapTitle = r.Title
		l.Events.BeatmapChanged.Emit(BeatmapChangedEvent{MapID: r.MapID, Title: r.Title})
	case parser.HostChanged:
		l.handleHostChanged(r.Name)
	case parser.UserNotFound:
		l.handleUserNotFound()
	case parser.MatchStarted:
		l.handleMatchStarted()
	case parser.PlayerFinished:
		l.handlePlayerFinished(r.Name, r.Score, r.Passed)
	case parser.MatchFinished:
		l.handleMatchFinished()
	case parser.AbortedMatch:
		l.handleAbortedMatch()
	case parser.AbortMatchFailed:
		l.logger.Info("abort rejected, no match in progress")
	case parser.ClosedLobby:
		l.logger.WithField("status", l.status.String()).Info("room closed")
	case parser.AllPlayersReady:
		l.Events.AllPlayersReady.Emit(struct{}{})
	}
}

func (l *Lobby) handlePlayerJoined(name string, slot int, team models.Team, synthesized bool) {
	id := models.NormalizeName(name)
	if p, ok := l.members[id]; ok {
		l.unexpected("duplicate join for %s already in slot %d", name, p.Slot)
		p.Slot = slot
		p.Team = team
		return
	}
	p := l.roster.GetOrCreate(name)
	p.Slot = slot
	p.Team = team
	p.State = models.InLobby
	p.IsAuthorized = l.isAuthorized(name)
	l.members[p.ID] = p
	if !synthesized {
		l.logger.WithField("player", p.Name).Debug("player joined")
	}
	l.Events.PlayerJoined.Emit(PlayerJoinedEvent{Player: p, Slot: slot, Team: team})
}

func (l *Lobby) handlePlayerLeft(name string) {
	id := models.NormalizeName(name)
	p, ok := l.members[id]
	if !ok {
		l.unexpected("leave for unknown player %s", name)
		return
	}
	delete(l.members, id)
	if l.isMatching && p.State == models.Playing {
		l.matchPlayers--
	}
	if l.host == p {
		l.host = nil
		p.IsHost = false
	}
	if l.hostPending == p {
		// Transfer in flight to a departed player: drop the attempt without
		// resolving it as a HostChanged.
		l.hostPending = nil
	}
	p.State = models.InLobby
	l.logger.WithField("player", p.Name).Debug("player left")
	l.Events.PlayerLeft.Emit(PlayerLeftEvent{Player: p})
}

func (l *Lobby) handleHostChanged(name string) {
	p := l.roster.GetOrCreate(name)
	if _, ok := l.members[p.ID]; !ok {
		l.unexpected("host confirmation for %s who is not in the lobby", name)
		l.members[p.ID] = p
		p.State = models.InLobby
	}
	l.setHost(p)
}

// setHost applies a confirmed host and resolves any pending transfer.
func (l *Lobby) setHost(p *models.Player) {
	if l.host != nil && l.host != p {
		l.host.IsHost = false
	}
	l.host = p
	p.IsHost = true
	l.hostPending = nil
	l.Events.HostChanged.Emit(HostChangedEvent{Succeeded: true, Player: p})
}

func (l *Lobby) handleUserNotFound() {
	if l.hostPending == nil {
		l.logger.Debug("user not found with no transfer pending")
		return
	}
	p := l.hostPending
	l.hostPending = nil
	l.logger.WithField("player", p.Name).Info("host transfer target not found")
	l.Events.HostChanged.Emit(HostChangedEvent{Succeeded: false, Player: p})
}

func (l *Lobby) handleMatchStarted() {
	l.isMatching = true
	l.finishedCount = 0
	l.matchPlayers = len(l.members)
	for _, p := range l.members {
		p.State = models.Playing
	}
	l.Events.MatchStarted.Emit(struct{}{})
}

func (l *Lobby) handlePlayerFinished(name string, score int64, passed bool) {
	p := l.GetPlayer(name)
	if p == nil {
		l.unexpected("result for unknown player %s", name)
		p = l.roster.GetOrCreate(name)
	} else {
		p.State = models.Finished
	}
	l.finishedCount++
	l.Events.PlayerFinished.Emit(PlayerFinishedEvent{Player: p, Score: score, Passed: passed})
}

func (l *Lobby) handleMatchFinished() {
	l.isMatching = false
	for _, p := range l.members {
		p.State = models.InLobby
	}
	l.Events.MatchFinished.Emit(struct{}{})
}

func (l *Lobby) handleAbortedMatch() {
	ev := AbortedMatchEvent{PlayersFinished: l.finishedCount, PlayersInGame: l.matchPlayers}
	l.isMatching = false
	for _, p := range l.members {
		p.State = models.InLobby
	}
	l.Events.AbortedMatch.Emit(ev)
}

// finishSettings reconciles local state against a completed settings dump:
// missing joins are synthesized, absent members are dropped, and the host
// pointer is corrected when the dump disagrees.
func (l *Lobby) finishSettings() {
	s := l.settingsParser.Result()
	l.settingsParser = nil

	if s.Name != "" {
		l.name = s.Name
	}
	if s.HistoryURL != "" {
		l.historyURL = s.HistoryURL
	}
	if s.BeatmapID != 0 {
		l.mapID = s.BeatmapID
		l.mapTitle = s.BeatmapName
	}

	present := make(map[string]parser.SettingsSlot, len(s.Slots))
	for _, slot := range s.Slots {
		present[models.NormalizeName(slot.Name)] = slot
	}

	for id, p := range l.members {
		if _, ok := present[id]; !ok {
			l.unexpected("settings dump is missing %s, dropping from membership", p.Name)
			l.handlePlayerLeft(p.Name)
		}
	}

	var dumpHost *models.Player
	for _, slot := range s.Slots {
		id := models.NormalizeName(slot.Name)
		if _, ok := l.members[id]; !ok {
			l.handlePlayerJoined(slot.Name, slot.Slot, slot.Team, true)
		}
		p := l.members[id]
		p.Slot = slot.Slot
		p.Team = slot.Team
		if slot.IsHost {
			dumpHost = p
		}
	}

	if dumpHost != nil && dumpHost != l.host {
		l.unexpected("settings dump host %s differs from local host", dumpHost.Name)
		l.setHost(dumpHost)
	}

	l.Events.SettingsParsed.Emit(SettingsParsedEvent{Settings: s})

	if l.settingsDone != nil {
		close(l.settingsDone)
		l.settingsDone = nil
	}
}

func (l *Lobby) isAuthorized(name string) bool {
	id := models.NormalizeName(name)
	for _, u := range l.cfg.AuthorizedUsers {
		if models.NormalizeName(u) == id {
			return true
		}
	}
	return false
}

func (l *Lobby) onTransportJoined(m bancho.Membership) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if models.NormalizeName(m.Who) != models.NormalizeName(l.transport.Nick()) {
		return
	}

	switch l.status {
	case Making:
		sub := reTourneyChannel.FindStringSubmatch(m.Channel)
		if sub == nil {
			return
		}
		l.channel = m.Channel
		l.id = sub[1]
	case Entering:
		if m.Channel != l.channel {
			return
		}
	default:
		return
	}

	l.status = Entered
	l.logger.WithField("channel", l.channel).Info("entered lobby")
	if l.enterDone != nil {
		close(l.enterDone)
		l.enterDone = nil
	}
}

func (l *Lobby) onTransportParted(m bancho.Membership) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m.Channel != l.channel || l.channel == "" {
		return
	}
	if models.NormalizeName(m.Who) != models.NormalizeName(l.transport.Nick()) {
		return
	}

	if l.status != Leaving {
		l.unexpected("removed from %s while %s", l.channel, l.status)
	}
	l.status = Left
	if l.closeDone != nil {
		close(l.closeDone)
		l.closeDone = nil
	}
}

func (l *Lobby) onTransportError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.WithError(err).Error("transport error")
	l.Events.NetError.Emit(err)
}
