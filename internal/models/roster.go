// internal/models/roster.go
package models

// Roster is the set of players known to a lobby session, keyed by
// normalized name. Entries are never removed while the session lives;
// InLobby membership is tracked separately by the lobby.
type Roster struct {
	players map[string]*Player
}

func NewRoster() *Roster {
	return &Roster{players: make(map[string]*Player)}
}

// Get returns the player for name, or nil.
func (r *Roster) Get(name string) *Player {
	return r.players[NormalizeName(name)]
}

// GetOrCreate returns the existing player for name, creating one on first
// reference. Rejoining players reuse the same identity.
func (r *Roster) GetOrCreate(name string) *Player {
	id := NormalizeName(name)
	if p, ok := r.players[id]; ok {
		return p
	}
	p := &Player{Name: name, ID: id}
	r.players[id] = p
	return p
}

func (r *Roster) Len() int {
	return len(r.players)
}
