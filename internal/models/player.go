// internal/models/player.go
package models

import "strings"

// Team is the slot team assignment in team modes.
type Team int

const (
	TeamNone Team = iota
	TeamRed
	TeamBlue
)

func (t Team) String() string {
	switch t {
	case TeamRed:
		return "red"
	case TeamBlue:
		return "blue"
	default:
		return "none"
	}
}

// PlayerState tracks participation in the current match.
type PlayerState int

const (
	InLobby PlayerState = iota
	Playing
	Finished
)

// Player is one chat identity known to a lobby session. Players are created
// on first reference and kept for the life of the session so that plugins
// can hold per-player state across leave/rejoin.
type Player struct {
	// Name is the display form as first seen on the wire.
	Name string `json:"name"`
	// ID is the normalized lookup key, see NormalizeName.
	ID string `json:"id"`

	IsHost       bool `json:"is_host"`
	IsReferee    bool `json:"is_referee"`
	IsAuthorized bool `json:"is_authorized"`

	State PlayerState `json:"state"`
	Team  Team        `json:"team"`
	Slot  int         `json:"slot"`
}

// NormalizeName maps a chat handle to its canonical lookup key. The chat
// server treats names case-insensitively and renders spaces as underscores.
func NormalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}
