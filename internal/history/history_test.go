// internal/history/history_test.go
package history

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves pages from an in-memory ascending event stream,
// honoring the before/after cursors like the real endpoint.
type fakeFetcher struct {
	mu       sync.Mutex
	events   []Event
	users    []User
	name     string
	pageSize int
	calls    int
	failAt   int // 1-based call number to fail on; 0 disables
}

func (f *fakeFetcher) Fetch(ctx context.Context, matchID int64, limit int, before, after int64) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAt != 0 && f.calls >= f.failAt {
		return nil, errors.New("boom")
	}

	size := f.pageSize
	if size == 0 || size > limit {
		size = limit
	}

	var evs []Event
	switch {
	case before > 0:
		for _, ev := range f.events {
			if ev.ID < before {
				evs = append(evs, ev)
			}
		}
		if len(evs) > size {
			evs = evs[len(evs)-size:]
		}
	case after > 0:
		for _, ev := range f.events {
			if ev.ID > after {
				evs = append(evs, ev)
			}
		}
		if len(evs) > size {
			evs = evs[:size]
		}
	default:
		evs = f.events
		if len(evs) > size {
			evs = evs[len(evs)-size:]
		}
	}

	var latest int64
	if len(f.events) > 0 {
		latest = f.events[len(f.events)-1].ID
	}
	return &Page{
		Match:         Match{ID: matchID, Name: f.name},
		Events:        evs,
		Users:         f.users,
		LatestEventID: latest,
	}, nil
}

func (f *fakeFetcher) append(evs ...Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evs...)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l.WithField("test", true)
}

func ev(id int64, typ string, userID int64) Event {
	return Event{ID: id, Detail: EventDetail{Type: typ}, UserID: userID}
}

func gameEv(id int64, userIDs ...int64) Event {
	g := &Game{ID: id}
	for _, uid := range userIDs {
		g.Scores = append(g.Scores, Score{UserID: uid})
	}
	return Event{ID: id, Detail: EventDetail{Type: EventOther}, Game: g}
}

func TestUpdateToLatestPagesForward(t *testing.T) {
	f := &fakeFetcher{pageSize: 2, name: "room"}
	f.append(ev(1, EventMatchCreated, 10), ev(2, EventPlayerJoined, 11))
	r := NewRepository(99, f, testLogger())

	require.NoError(t, r.UpdateToLatest(context.Background()))
	assert.Equal(t, 2, r.EventCount())

	// New events arrive; the next update pages forward until caught up.
	f.append(
		ev(3, EventPlayerJoined, 12),
		ev(4, EventHostChanged, 11),
		ev(5, EventPlayerJoined, 13),
	)
	require.NoError(t, r.UpdateToLatest(context.Background()))
	assert.Equal(t, 5, r.EventCount())
}

func TestUserDiscoverySignalsFireOnce(t *testing.T) {
	f := &fakeFetcher{
		users: []User{{ID: 10, Username: "Senko"}, {ID: 11, Username: "cute cat"}},
	}
	f.append(ev(1, EventMatchCreated, 10), ev(2, EventPlayerJoined, 11))
	r := NewRepository(99, f, testLogger())

	var discovered []string
	r.UserDiscovered.On(func(u User) { discovered = append(discovered, u.Username) })

	require.NoError(t, r.UpdateToLatest(context.Background()))
	require.NoError(t, r.UpdateToLatest(context.Background()))

	assert.Equal(t, []string{"Senko", "cute cat"}, discovered)
	assert.Equal(t, "Senko", r.Username(10))
	assert.Equal(t, "", r.Username(999))
}

func TestMatchRenameSignal(t *testing.T) {
	f := &fakeFetcher{name: "before"}
	f.append(ev(1, EventMatchCreated, 10))
	r := NewRepository(99, f, testLogger())

	var renames []string
	r.MatchRenamed.On(func(name string) { renames = append(renames, name) })

	require.NoError(t, r.UpdateToLatest(context.Background()))
	assert.Empty(t, renames, "first observation is not a rename")

	f.mu.Lock()
	f.name = "after"
	f.mu.Unlock()
	f.append(ev(2, EventPlayerJoined, 11))
	require.NoError(t, r.UpdateToLatest(context.Background()))
	assert.Equal(t, []string{"after"}, renames)
}

// A failed fetch permanently disables the repository instance; later calls
// short-circuit without touching the fetcher again.
func TestFetchFailureIsTerminal(t *testing.T) {
	f := &fakeFetcher{failAt: 1}
	r := NewRepository(99, f, testLogger())

	err := r.UpdateToLatest(context.Background())
	require.ErrorIs(t, err, ErrRepositoryFailed)
	assert.True(t, r.Failed())

	calls := f.callCount()
	assert.ErrorIs(t, r.UpdateToLatest(context.Background()), ErrRepositoryFailed)
	_, err = r.Rewind(context.Background())
	assert.ErrorIs(t, err, ErrRepositoryFailed)
	_, _, err = r.CalcCurrentOrder(context.Background())
	assert.ErrorIs(t, err, ErrRepositoryFailed)
	assert.Equal(t, calls, f.callCount(), "failed repository must not refetch")
}

func TestRewindPullsOlderPages(t *testing.T) {
	f := &fakeFetcher{pageSize: 2}
	f.append(
		ev(1, EventMatchCreated, 10),
		ev(2, EventPlayerJoined, 11),
		ev(3, EventPlayerJoined, 12),
		ev(4, EventPlayerJoined, 13),
	)
	r := NewRepository(99, f, testLogger())
	require.NoError(t, r.UpdateToLatest(context.Background())) // buffers 3,4

	n, err := r.Rewind(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 4, r.EventCount())

	n, err = r.Rewind(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "origin already buffered")
}

// The spec scenario: creation, a host grant, three joins. The order is the
// four ids ascending by event id.
func TestCalcCurrentOrderBasic(t *testing.T) {
	f := &fakeFetcher{users: []User{
		{ID: 10, Username: "owner"},
		{ID: 11, Username: "a"}, {ID: 12, Username: "b"}, {ID: 13, Username: "c"},
	}}
	f.append(
		ev(1, EventMatchCreated, 10),
		ev(2, EventHostChanged, 10),
		ev(3, EventPlayerJoined, 11),
		ev(4, EventPlayerJoined, 12),
		ev(5, EventPlayerJoined, 13),
	)
	r := NewRepository(99, f, testLogger())

	order, reason, err := r.CalcCurrentOrder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopMatchCreated, reason)

	ids := make([]int64, 0, len(order))
	names := make([]string, 0, len(order))
	for _, p := range order {
		ids = append(ids, p.UserID)
		names = append(names, p.Username)
	}
	assert.Equal(t, []int64{10, 11, 12, 13}, ids)
	assert.Equal(t, []string{"owner", "a", "b", "c"}, names)
}

// Players whose most recent event is a departure are excluded from the
// reconstructed order.
func TestCalcCurrentOrderExcludesDeparted(t *testing.T) {
	f := &fakeFetcher{}
	f.append(
		ev(1, EventMatchCreated, 10),
		ev(2, EventPlayerJoined, 11),
		ev(3, EventPlayerJoined, 12),
		ev(4, EventPlayerLeft, 11),
		ev(5, EventPlayerKicked, 13),
	)
	r := NewRepository(99, f, testLogger())

	order, reason, err := r.CalcCurrentOrder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopMatchCreated, reason)

	ids := make([]int64, 0, len(order))
	for _, p := range order {
		ids = append(ids, p.UserID)
	}
	assert.Equal(t, []int64{10, 12}, ids)
}

// Two consecutive games covering every discovered player end the scan
// before older events are visited.
func TestCalcCurrentOrderStableStreak(t *testing.T) {
	f := &fakeFetcher{pageSize: 3}
	f.append(
		ev(1, EventMatchCreated, 10),
		ev(2, EventPlayerJoined, 99), // must never be discovered
		ev(3, EventPlayerLeft, 99),
		ev(4, EventPlayerJoined, 11),
		gameEv(5, 11, 12),
		gameEv(6, 11, 12),
		ev(7, EventHostChanged, 11),
		ev(8, EventPlayerJoined, 12),
	)
	r := NewRepository(99, f, testLogger())

	order, reason, err := r.CalcCurrentOrder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopStable, reason)

	ids := make([]int64, 0, len(order))
	for _, p := range order {
		ids = append(ids, p.UserID)
	}
	assert.Equal(t, []int64{11, 12}, ids)
}

func TestCalcCurrentOrderScanCap(t *testing.T) {
	f := &fakeFetcher{}
	evs := make([]Event, 0, scanCap+10)
	for i := 1; i <= scanCap+10; i++ {
		evs = append(evs, ev(int64(i), EventOther, 0))
	}
	f.append(evs...)
	r := NewRepository(99, f, testLogger())

	order, reason, err := r.CalcCurrentOrder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopScanCap, reason)
	assert.Empty(t, order)
}

func TestCalcCurrentOrderFullRoom(t *testing.T) {
	f := &fakeFetcher{}
	f.append(ev(1, EventMatchCreated, 1000))
	for i := 1; i <= 20; i++ {
		f.append(ev(int64(i+1), EventPlayerJoined, int64(i)))
	}
	r := NewRepository(99, f, testLogger())

	order, reason, err := r.CalcCurrentOrder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopFullRoom, reason)
	assert.Len(t, order, fullRoomPlayers)
}
