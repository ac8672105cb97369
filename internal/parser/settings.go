// internal/parser/settings.go
package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/ahrbot/ahrbot/internal/models"
)

// ErrSettingsComplete is returned when a line is fed to a SettingsParser
// that has already signalled completion. The parser is single-use.
var ErrSettingsComplete = errors.New("settings dump already fully parsed")

// SettingsSlot is one row of the player table in a settings dump.
type SettingsSlot struct {
	Slot    int
	Ready   string // "Ready", "Not Ready", "No Map"
	UserID  int64
	Name    string
	IsHost  bool
	Team    models.Team
	Options []string // mods and other bracketed attributes
}

// Settings is the fully parsed result of one `!mp settings` dump.
type Settings struct {
	Name        string
	HistoryURL  string
	BeatmapURL  string
	BeatmapID   int64
	BeatmapName string
	TeamMode    string
	WinCond     string
	ActiveMods  string
	PlayerCount int
	Slots       []SettingsSlot
}

var (
	reSetRoom    = regexp.MustCompile(`^Room name: (.+), History: (https://osu\.ppy\.sh/mp/(\d+))$`)
	reSetMap     = regexp.MustCompile(`^Beatmap: (https://osu\.ppy\.sh/b/(\d+)) (.+)$`)
	reSetMode    = regexp.MustCompile(`^Team mode: (.+), Win condition: (.+)$`)
	reSetMods    = regexp.MustCompile(`^Active mods: (.+)$`)
	reSetPlayers = regexp.MustCompile(`^Players: (\d+)$`)
	reSetSlot    = regexp.MustCompile(`^Slot (\d+) +(Not Ready|Ready|No Map) +https://osu\.ppy\.sh/u/(\d+) (.+?) *(?:\[(.+)\])?$`)
)

// SettingsParser consumes the multi-line settings dump one line at a time.
// Feed returns true once the declared player count has been filled; the
// instance must then be discarded.
type SettingsParser struct {
	result *Settings
	done   bool
}

func NewSettingsParser() *SettingsParser {
	return &SettingsParser{result: &Settings{}}
}

// Done reports whether the full dump has been consumed.
func (sp *SettingsParser) Done() bool { return sp.done }

// Result returns the parsed settings; only complete once Done.
func (sp *SettingsParser) Result() *Settings { return sp.result }

// Feed consumes one bot line. Lines matching none of the dump shapes are
// ignored so interleaved chatter does not corrupt the parse. The returned
// bool is true exactly when the parse completes.
func (sp *SettingsParser) Feed(line string) (bool, error) {
	if sp.done {
		return true, ErrSettingsComplete
	}

	switch {
	case reSetRoom.MatchString(line):
		m := reSetRoom.FindStringSubmatch(line)
		sp.result.Name = m[1]
		sp.result.HistoryURL = m[2]
	case reSetMap.MatchString(line):
		m := reSetMap.FindStringSubmatch(line)
		sp.result.BeatmapURL = m[1]
		sp.result.BeatmapID, _ = strconv.ParseInt(m[2], 10, 64)
		sp.result.BeatmapName = m[3]
	case reSetMode.MatchString(line):
		m := reSetMode.FindStringSubmatch(line)
		sp.result.TeamMode = m[1]
		sp.result.WinCond = m[2]
	case reSetMods.MatchString(line):
		m := reSetMods.FindStringSubmatch(line)
		sp.result.ActiveMods = m[1]
	case reSetPlayers.MatchString(line):
		m := reSetPlayers.FindStringSubmatch(line)
		sp.result.PlayerCount, _ = strconv.Atoi(m[1])
		if sp.result.PlayerCount == 0 {
			sp.done = true
		}
	case reSetSlot.MatchString(line):
		m := reSetSlot.FindStringSubmatch(line)
		slot := SettingsSlot{Ready: m[2]}
		slot.Slot, _ = strconv.Atoi(m[1])
		slot.UserID, _ = strconv.ParseInt(m[3], 10, 64)
		slot.Name = strings.TrimSpace(m[4])
		for _, opt := range strings.Split(m[5], "/") {
			opt = strings.TrimSpace(opt)
			switch {
			case opt == "":
			case opt == "Host":
				slot.IsHost = true
			case opt == "Team Red":
				slot.Team = models.TeamRed
			case opt == "Team Blue":
				slot.Team = models.TeamBlue
			default:
				for _, mod := range strings.Split(opt, ",") {
					if mod = strings.TrimSpace(mod); mod != "" {
						slot.Options = append(slot.Options, mod)
					}
				}
			}
		}
		sp.result.Slots = append(sp.result.Slots, slot)
		if len(sp.result.Slots) >= sp.result.PlayerCount && sp.result.PlayerCount > 0 {
			sp.done = true
		}
	}
	return sp.done, nil
}
