// internal/history/order.go
package history

import (
	"context"
	"sort"

	"github.com/samber/lo"
)

// Reconstruction thresholds. These are heuristic stop bounds with no
// correctness proof against adversarial join/leave patterns; they are
// kept verbatim for behavioral parity and must not be tuned casually.
const (
	// fullRoomPlayers assumes the room is fully enumerated once this many
	// distinct in-room players are discovered.
	fullRoomPlayers = 16
	// stableGameCount assumes the discovered set is complete after this
	// many consecutive games in which every discovered player played.
	stableGameCount = 2
	// scanCap is the corruption/looping safety valve on processed events.
	scanCap = 10000
)

// StopReason names the bound that ended a reconstruction scan.
type StopReason int

const (
	StopFullRoom StopReason = iota
	StopStable
	StopMatchCreated
	StopScanCap
	StopExhausted // buffer and API both ran out of older events
)

func (s StopReason) String() string {
	switch s {
	case StopFullRoom:
		return "full room discovered"
	case StopStable:
		return "stable game streak"
	case StopMatchCreated:
		return "match creation reached"
	case StopScanCap:
		return "scan cap reached"
	default:
		return "event stream exhausted"
	}
}

// OrderedPlayer is one entry of a reconstructed host order. Age is the id
// of the earliest-scanned event in which the player was identified;
// ascending age is host-priority order.
type OrderedPlayer struct {
	UserID   int64
	Username string
	Age      int64
}

// CalcCurrentOrder reconstructs a host-priority ordering from the buffered
// event stream, scanning newest to oldest and pulling older pages on
// demand. The result is a heuristic: players who leave and later rejoin
// in complex patterns can be misordered.
func (r *Repository) CalcCurrentOrder(ctx context.Context) ([]OrderedPlayer, StopReason, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure != nil {
		return nil, StopExhausted, r.failure
	}

	if len(r.events) == 0 {
		if _, err := r.rewindLocked(ctx); err != nil {
			return nil, StopExhausted, err
		}
	}

	discovered := make(map[int64]int64) // user id -> discovery age
	departed := make(map[int64]bool)
	stable := 0
	processed := 0
	reason := StopExhausted

	i := len(r.events) - 1
scan:
	for {
		if processed >= scanCap {
			reason = StopScanCap
			r.logger.WithField("processed", processed).Warn("order scan hit cap")
			break
		}
		if i < 0 {
			n, err := r.rewindLocked(ctx)
			if err != nil {
				return nil, StopExhausted, err
			}
			if n == 0 {
				break
			}
			i = n - 1
			continue
		}

		ev := r.events[i]
		processed++

		if ev.Game != nil {
			if allDiscoveredPlayed(discovered, ev.Game) {
				stable++
				if stable >= stableGameCount {
					reason = StopStable
					break
				}
			} else {
				stable = 0
			}
		}

		switch ev.Detail.Type {
		case EventMatchCreated:
			if ev.UserID != 0 {
				discover(discovered, departed, ev.UserID, ev.ID)
			}
			reason = StopMatchCreated
			break scan
		case EventHostChanged, EventPlayerJoined:
			discover(discovered, departed, ev.UserID, ev.ID)
		case EventPlayerLeft, EventPlayerKicked:
			// First sighting scanning backwards is a departure: the
			// player is not in the room now. No age is recorded and
			// older references to them are ignored.
			if _, ok := discovered[ev.UserID]; !ok {
				departed[ev.UserID] = true
			}
		}

		if len(discovered) >= fullRoomPlayers {
			reason = StopFullRoom
			break
		}
		i--
	}

	order := make([]OrderedPlayer, 0, len(discovered))
	for uid, age := range discovered {
		order = append(order, OrderedPlayer{UserID: uid, Username: r.users[uid].Username, Age: age})
	}
	sort.Slice(order, func(a, b int) bool { return order[a].Age < order[b].Age })
	return order, reason, nil
}

func discover(discovered map[int64]int64, departed map[int64]bool, uid, age int64) {
	if uid == 0 || departed[uid] {
		return
	}
	if _, ok := discovered[uid]; !ok {
		discovered[uid] = age
	}
}

// allDiscoveredPlayed reports whether every already-discovered player has
// a score in the game.
func allDiscoveredPlayed(discovered map[int64]int64, game *Game) bool {
	if len(discovered) == 0 {
		return false
	}
	played := lo.SliceToMap(game.Scores, func(s Score) (int64, struct{}) {
		return s.UserID, struct{}{}
	})
	for uid := range discovered {
		if _, ok := played[uid]; !ok {
			return false
		}
	}
	return true
}
