// internal/lobby/events.go
package lobby

import (
	"github.com/ahrbot/ahrbot/internal/emitter"
	"github.com/ahrbot/ahrbot/internal/models"
	"github.com/ahrbot/ahrbot/internal/parser"
)

// Authority is the command privilege level of a chatting player.
type Authority int

const (
	AuthNone Authority = iota
	AuthHost
	AuthAuthorized
)

type PlayerJoinedEvent struct {
	Player *models.Player
	Slot   int
	Team   models.Team
}

type PlayerLeftEvent struct {
	Player *models.Player
}

// HostChangedEvent reports both confirmed transfers (Succeeded) and
// transfer attempts resolved by a "user not found" reply, in which case
// Player is the pending target that could not be appointed.
type HostChangedEvent struct {
	Succeeded bool
	Player    *models.Player
}

type BeatmapChangedEvent struct {
	MapID int64
	Title string
}

type PlayerFinishedEvent struct {
	Player *models.Player
	Score  int64
	Passed bool
}

// AbortedMatchEvent distinguishes "nobody finished yet" from "someone
// already finished"; subscribers decide rotation from these counts.
type AbortedMatchEvent struct {
	PlayersFinished int
	PlayersInGame   int
}

// UnexpectedStateEvent signals a desync between local state and the
// external room. Non-fatal; state is best-effort corrected by the caller.
type UnexpectedStateEvent struct {
	Err error
}

type PlayerChattedEvent struct {
	Player  *models.Player
	Message string
}

type CustomCommandEvent struct {
	Player    *models.Player
	Authority Authority
	Command   string
	Param     string
}

// PluginSignalEvent is the opaque cross-plugin channel. Plugins never call
// each other directly; they publish signals here.
type PluginSignalEvent struct {
	Type   string
	Args   []string
	Source string
}

type SettingsParsedEvent struct {
	Settings *parser.Settings
}

// Events is the lobby's exposed event surface. Handlers for one inbound
// event run to completion in attach order before the next is processed.
type Events struct {
	PlayerJoined    *emitter.Emitter[PlayerJoinedEvent]
	PlayerLeft      *emitter.Emitter[PlayerLeftEvent]
	BeatmapChanging *emitter.Emitter[struct{}]
	BeatmapChanged  *emitter.Emitter[BeatmapChangedEvent]
	HostChanged     *emitter.Emitter[HostChangedEvent]
	MatchStarted    *emitter.Emitter[struct{}]
	PlayerFinished  *emitter.Emitter[PlayerFinishedEvent]
	MatchFinished   *emitter.Emitter[struct{}]
	AbortedMatch    *emitter.Emitter[AbortedMatchEvent]
	AllPlayersReady *emitter.Emitter[struct{}]
	UnexpectedState *emitter.Emitter[UnexpectedStateEvent]
	PlayerChatted   *emitter.Emitter[PlayerChattedEvent]
	CustomCommand   *emitter.Emitter[CustomCommandEvent]
	PluginSignal    *emitter.Emitter[PluginSignalEvent]
	SettingsParsed  *emitter.Emitter[SettingsParsedEvent]
	NetError        *emitter.Emitter[error]
}

func newEvents() *Events {
	return &Events{
		PlayerJoined:    emitter.New[PlayerJoinedEvent](),
		PlayerLeft:      emitter.New[PlayerLeftEvent](),
		BeatmapChanging: emitter.New[struct{}](),
		BeatmapChanged:  emitter.New[BeatmapChangedEvent](),
		HostChanged:     emitter.New[HostChangedEvent](),
		MatchStarted:    emitter.New[struct{}](),
		PlayerFinished:  emitter.New[PlayerFinishedEvent](),
		MatchFinished:   emitter.New[struct{}](),
		AbortedMatch:    emitter.New[AbortedMatchEvent](),
		AllPlayersReady: emitter.New[struct{}](),
		UnexpectedState: emitter.New[UnexpectedStateEvent](),
		PlayerChatted:   emitter.New[PlayerChattedEvent](),
		CustomCommand:   emitter.New[CustomCommandEvent](),
		PluginSignal:    emitter.New[PluginSignalEvent](),
		SettingsParsed:  emitter.New[SettingsParsedEvent](),
		NetError:        emitter.New[error](),
	}
}
