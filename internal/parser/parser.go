// internal/parser/parser.go

// Package parser translates raw Bancho bot chat lines into typed responses.
// It is stateless and side-effect free; only exact bot replies should ever
// reach it.
package parser

import (
	"regexp"
	"strconv"

	"github.com/ahrbot/ahrbot/internal/models"
)

// ResponseType tags a parsed bot reply.
type ResponseType int

const (
	None ResponseType = iota
	PlayerJoined
	PlayerLeft
	BeatmapChanging
	BeatmapChanged
	HostChanged
	UserNotFound
	MatchStarted
	PlayerFinished
	MatchFinished
	AbortedMatch
	AbortMatchFailed
	ClosedLobby
	AllPlayersReady
)

func (t ResponseType) String() string {
	switch t {
	case PlayerJoined:
		return "PlayerJoined"
	case PlayerLeft:
		return "PlayerLeft"
	case BeatmapChanging:
		return "BeatmapChanging"
	case BeatmapChanged:
		return "BeatmapChanged"
	case HostChanged:
		return "HostChanged"
	case UserNotFound:
		return "UserNotFound"
	case MatchStarted:
		return "MatchStarted"
	case PlayerFinished:
		return "PlayerFinished"
	case MatchFinished:
		return "MatchFinished"
	case AbortedMatch:
		return "AbortedMatch"
	case AbortMatchFailed:
		return "AbortMatchFailed"
	case ClosedLobby:
		return "ClosedLobby"
	case AllPlayersReady:
		return "AllPlayersReady"
	default:
		return "None"
	}
}

// Response is the transient result of parsing one line. Fields are only
// meaningful for the types that set them.
type Response struct {
	Type ResponseType

	Name   string // PlayerJoined, PlayerLeft, HostChanged, PlayerFinished
	Slot   int    // PlayerJoined
	Team   models.Team
	MapID  int64  // BeatmapChanged
	Title  string // BeatmapChanged
	Score  int64  // PlayerFinished
	Passed bool   // PlayerFinished
}

var (
	reJoined   = regexp.MustCompile(`^(.+) joined in slot (\d+)(?: for team (red|blue))?\.$`)
	reLeft     = regexp.MustCompile(`^(.+) left the game\.$`)
	reChanging = regexp.MustCompile(`^Host is changing map\.\.\.$`)
	reChanged  = regexp.MustCompile(`^Beatmap changed to: (.+) \(https://osu\.ppy\.sh/b/(\d+)\)$`)
	reHost     = regexp.MustCompile(`^(.+) became the host\.$`)
	reNotFound = regexp.MustCompile(`^User not found$`)
	reStarted  = regexp.MustCompile(`^The match has started!$`)
	reScore    = regexp.MustCompile(`^(.+) finished playing \(Score: (\d+), (PASSED|FAILED)\)\.$`)
	reFinished = regexp.MustCompile(`^The match has finished!$`)
	reAborted  = regexp.MustCompile(`^Aborted the match$`)
	reAbortNG  = regexp.MustCompile(`^The match is not in progress$`)
	reClosed   = regexp.MustCompile(`^Closed the match$`)
	reAllReady = regexp.MustCompile(`^All players are ready$`)
)

// ParseResponse matches line against the fixed pattern set, first match
// wins. Lines matching nothing yield a None response.
func ParseResponse(line string) Response {
	if m := reJoined.FindStringSubmatch(line); m != nil {
		slot, _ := strconv.Atoi(m[2])
		team := models.TeamNone
		switch m[3] {
		case "red":
			team = models.TeamRed
		case "blue":
			team = models.TeamBlue
		}
		return Response{Type: PlayerJoined, Name: m[1], Slot: slot, Team: team}
	}
	if m := reLeft.FindStringSubmatch(line); m != nil {
		return Response{Type: PlayerLeft, Name: m[1]}
	}
	if reChanging.MatchString(line) {
		return Response{Type: BeatmapChanging}
	}
	if m := reChanged.FindStringSubmatch(line); m != nil {
		id, _ := strconv.ParseInt(m[2], 10, 64)
		return Response{Type: BeatmapChanged, Title: m[1], MapID: id}
	}
	if m := reHost.FindStringSubmatch(line); m != nil {
		return Response{Type: HostChanged, Name: m[1]}
	}
	if reNotFound.MatchString(line) {
		return Response{Type: UserNotFound}
	}
	if reStarted.MatchString(line) {
		return Response{Type: MatchStarted}
	}
	if m := reScore.FindStringSubmatch(line); m != nil {
		score, _ := strconv.ParseInt(m[2], 10, 64)
		return Response{Type: PlayerFinished, Name: m[1], Score: score, Passed: m[3] == "PASSED"}
	}
	if reFinished.MatchString(line) {
		return Response{Type: MatchFinished}
	}
	if reAborted.MatchString(line) {
		return Response{Type: AbortedMatch}
	}
	if reAbortNG.MatchString(line) {
		return Response{Type: AbortMatchFailed}
	}
	if reClosed.MatchString(line) {
		return Response{Type: ClosedLobby}
	}
	if reAllReady.MatchString(line) {
		return Response{Type: AllPlayersReady}
	}
	return Response{Type: None}
}
