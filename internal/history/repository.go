// internal/history/repository.go
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ahrbot/ahrbot/internal/emitter"
)

// fetchLimit is the page size requested from the API.
const fetchLimit = 100

// ErrRepositoryFailed marks a repository whose fetcher failed once. The
// failure is permanent for the instance; every later call short-circuits.
var ErrRepositoryFailed = errors.New("history repository is in failed state")

// Repository buffers one match's event stream. All methods are
// single-flight: a second call while a fetch is outstanding waits for it,
// since pagination cursors derive from buffer state.
type Repository struct {
	// UserDiscovered fires the first time a user id appears in any fetch.
	UserDiscovered *emitter.Emitter[User]
	// MatchRenamed fires when the match display name changes across
	// fetches.
	MatchRenamed *emitter.Emitter[string]

	matchID int64
	fetcher Fetcher
	logger  *logrus.Entry

	mu        sync.Mutex
	events    []Event // ascending by id
	users     map[int64]User
	matchName string
	latestID  int64 // server's latest id as of the last fetch
	failure   error
}

func NewRepository(matchID int64, fetcher Fetcher, logger *logrus.Entry) *Repository {
	return &Repository{
		UserDiscovered: emitter.New[User](),
		MatchRenamed:   emitter.New[string](),
		matchID:        matchID,
		fetcher:        fetcher,
		logger:         logger.WithField("match", matchID),
		users:          make(map[int64]User),
	}
}

// MatchID returns the match this repository buffers.
func (r *Repository) MatchID() int64 { return r.matchID }

// Failed reports whether the instance hit its terminal error.
func (r *Repository) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure != nil
}

// Username resolves a buffered user id to its name, or "" if undiscovered.
func (r *Repository) Username(userID int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[userID].Username
}

// EventCount reports the buffered event count.
func (r *Repository) EventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// UpdateToLatest fetches forward until the server's reported latest event
// id is buffered. Any fetch failure is terminal for this repository.
func (r *Repository) UpdateToLatest(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure != nil {
		return r.failure
	}
	for {
		var after int64
		if len(r.events) > 0 {
			after = r.events[len(r.events)-1].ID
		}
		page, err := r.fetchLocked(ctx, 0, after)
		if err != nil {
			return err
		}
		r.appendNewer(page.Events)
		if len(r.events) == 0 || r.events[len(r.events)-1].ID >= r.latestID {
			return nil
		}
		if len(page.Events) == 0 {
			// Server claims newer events exist but returned none; stop
			// rather than spin.
			r.logger.Warn("latest id ahead of an empty page")
			return nil
		}
	}
}

// Rewind pulls one older page before the buffered oldest event, returning
// the number of events gained. Zero means the origin is already buffered.
func (r *Repository) Rewind(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rewindLocked(ctx)
}

func (r *Repository) rewindLocked(ctx context.Context) (int, error) {
	if r.failure != nil {
		return 0, r.failure
	}
	if len(r.events) == 0 {
		page, err := r.fetchLocked(ctx, 0, 0)
		if err != nil {
			return 0, err
		}
		r.appendNewer(page.Events)
		return len(r.events), nil
	}

	oldest := r.events[0].ID
	page, err := r.fetchLocked(ctx, oldest, 0)
	if err != nil {
		return 0, err
	}
	var older []Event
	for _, ev := range page.Events {
		if ev.ID < oldest {
			older = append(older, ev)
		}
	}
	r.events = append(older, r.events...)
	return len(older), nil
}

// fetchLocked performs one fetch and merges page metadata. Assumes the
// lock is held.
func (r *Repository) fetchLocked(ctx context.Context, before, after int64) (*Page, error) {
	page, err := r.fetcher.Fetch(ctx, r.matchID, fetchLimit, before, after)
	if err != nil {
		r.failure = fmt.Errorf("%w: %v", ErrRepositoryFailed, err)
		r.logger.WithError(err).Error("history fetch failed, repository disabled")
		return nil, r.failure
	}

	r.latestID = page.LatestEventID

	for _, u := range page.Users {
		if _, seen := r.users[u.ID]; !seen {
			r.users[u.ID] = u
			r.UserDiscovered.Emit(u)
		}
	}

	if page.Match.Name != "" && page.Match.Name != r.matchName {
		if r.matchName != "" {
			r.logger.WithField("name", page.Match.Name).Info("match renamed")
			r.MatchRenamed.Emit(page.Match.Name)
		}
		r.matchName = page.Match.Name
	}
	return page, nil
}

// appendNewer merges events strictly newer than the buffered latest.
func (r *Repository) appendNewer(events []Event) {
	var newest int64
	if len(r.events) > 0 {
		newest = r.events[len(r.events)-1].ID
	}
	for _, ev := range events {
		if ev.ID > newest {
			r.events = append(r.events, ev)
			newest = ev.ID
		}
	}
}
