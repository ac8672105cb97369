// internal/parser/parser_test.go
package parser

import (
	"testing"

	"github.com/ahrbot/ahrbot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlayerJoined(t *testing.T) {
	r := ParseResponse("Senko joined in slot 3.")
	require.Equal(t, PlayerJoined, r.Type)
	assert.Equal(t, "Senko", r.Name)
	assert.Equal(t, 3, r.Slot)
	assert.Equal(t, models.TeamNone, r.Team)

	r = ParseResponse("cute cat joined in slot 1 for team blue.")
	require.Equal(t, PlayerJoined, r.Type)
	assert.Equal(t, "cute cat", r.Name)
	assert.Equal(t, 1, r.Slot)
	assert.Equal(t, models.TeamBlue, r.Team)
}

func TestParsePlayerLeft(t *testing.T) {
	r := ParseResponse("Senko left the game.")
	require.Equal(t, PlayerLeft, r.Type)
	assert.Equal(t, "Senko", r.Name)
}

func TestParseBeatmap(t *testing.T) {
	r := ParseResponse("Host is changing map...")
	assert.Equal(t, BeatmapChanging, r.Type)

	r = ParseResponse("Beatmap changed to: Silentroom - NULCTRL [EXIST] (https://osu.ppy.sh/b/853167)")
	require.Equal(t, BeatmapChanged, r.Type)
	assert.Equal(t, int64(853167), r.MapID)
	assert.Equal(t, "Silentroom - NULCTRL [EXIST]", r.Title)
}

func TestParseHostChanged(t *testing.T) {
	r := ParseResponse("Senko became the host.")
	require.Equal(t, HostChanged, r.Type)
	assert.Equal(t, "Senko", r.Name)

	assert.Equal(t, UserNotFound, ParseResponse("User not found").Type)
}

func TestParseMatchLifecycle(t *testing.T) {
	assert.Equal(t, MatchStarted, ParseResponse("The match has started!").Type)
	assert.Equal(t, MatchFinished, ParseResponse("The match has finished!").Type)
	assert.Equal(t, AbortedMatch, ParseResponse("Aborted the match").Type)
	assert.Equal(t, AbortMatchFailed, ParseResponse("The match is not in progress").Type)
	assert.Equal(t, ClosedLobby, ParseResponse("Closed the match").Type)
	assert.Equal(t, AllPlayersReady, ParseResponse("All players are ready").Type)
}

func TestParsePlayerFinished(t *testing.T) {
	r := ParseResponse("Senko finished playing (Score: 1234567, PASSED).")
	require.Equal(t, PlayerFinished, r.Type)
	assert.Equal(t, "Senko", r.Name)
	assert.Equal(t, int64(1234567), r.Score)
	assert.True(t, r.Passed)

	r = ParseResponse("Senko finished playing (Score: 42, FAILED).")
	require.Equal(t, PlayerFinished, r.Type)
	assert.False(t, r.Passed)
}

// Lines matching none of the fixed patterns must fall through to None.
func TestParseClosedWorldFallback(t *testing.T) {
	for _, line := range []string{
		"",
		"hello everyone",
		"!mp host Senko",
		"Senko joined in slot x.",
		"The match has started",
		"Queue: Senko, cute cat",
	} {
		assert.Equal(t, None, ParseResponse(line).Type, "line %q", line)
	}
}

func TestSettingsParserFullDump(t *testing.T) {
	sp := NewSettingsParser()
	lines := []string{
		"Room name: 4-5* auto host rotation, History: https://osu.ppy.sh/mp/53084403",
		"Beatmap: https://osu.ppy.sh/b/853167 Silentroom - NULCTRL [EXIST]",
		"Team mode: HeadToHead, Win condition: Score",
		"Active mods: Freemod",
		"Players: 3",
		"Slot 1  Not Ready https://osu.ppy.sh/u/8286882 gnsksz          [Host / Hidden, HardRock]",
		"Slot 2  Ready     https://osu.ppy.sh/u/123456 cute cat        ",
		"Slot 4  No Map    https://osu.ppy.sh/u/654321 Senko           [Team Blue]",
	}
	for i, line := range lines {
		done, err := sp.Feed(line)
		require.NoError(t, err)
		assert.Equal(t, i == len(lines)-1, done, "line %d", i)
	}

	s := sp.Result()
	assert.Equal(t, "4-5* auto host rotation", s.Name)
	assert.Equal(t, "https://osu.ppy.sh/mp/53084403", s.HistoryURL)
	assert.Equal(t, int64(853167), s.BeatmapID)
	assert.Equal(t, "Silentroom - NULCTRL [EXIST]", s.BeatmapName)
	assert.Equal(t, "HeadToHead", s.TeamMode)
	assert.Equal(t, "Score", s.WinCond)
	assert.Equal(t, "Freemod", s.ActiveMods)
	assert.Equal(t, 3, s.PlayerCount)
	require.Len(t, s.Slots, 3)

	assert.Equal(t, "gnsksz", s.Slots[0].Name)
	assert.True(t, s.Slots[0].IsHost)
	assert.Equal(t, []string{"Hidden", "HardRock"}, s.Slots[0].Options)
	assert.Equal(t, int64(8286882), s.Slots[0].UserID)

	assert.Equal(t, "cute cat", s.Slots[1].Name)
	assert.False(t, s.Slots[1].IsHost)

	assert.Equal(t, "Senko", s.Slots[2].Name)
	assert.Equal(t, models.TeamBlue, s.Slots[2].Team)
	assert.Equal(t, 4, s.Slots[2].Slot)
}

func TestSettingsParserIgnoresChatter(t *testing.T) {
	sp := NewSettingsParser()
	sp.Feed("Room name: r, History: https://osu.ppy.sh/mp/1")
	sp.Feed("Players: 1")
	done, err := sp.Feed("some player: hi!")
	require.NoError(t, err)
	assert.False(t, done)

	done, err = sp.Feed("Slot 1  Ready https://osu.ppy.sh/u/1 one player      ")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestSettingsParserSingleUse(t *testing.T) {
	sp := NewSettingsParser()
	sp.Feed("Players: 0")
	require.True(t, sp.Done())

	_, err := sp.Feed("Room name: r, History: https://osu.ppy.sh/mp/1")
	assert.ErrorIs(t, err, ErrSettingsComplete)
}
