// internal/history/fetcher.go

// Package history reconstructs host order for a room from the external
// paginated match-history API.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Event detail types reported by the API.
const (
	EventMatchCreated   = "match-created"
	EventMatchDisbanded = "match-disbanded"
	EventHostChanged    = "host-changed"
	EventPlayerJoined   = "player-joined"
	EventPlayerLeft     = "player-left"
	EventPlayerKicked   = "player-kicked"
	EventOther          = "other"
)

type Match struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type EventDetail struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Score struct {
	UserID int64 `json:"user_id"`
	Score  int64 `json:"score"`
}

type Game struct {
	ID     int64   `json:"id"`
	Scores []Score `json:"scores"`
}

// Event is one entry of a match's history stream. UserID is zero for
// events without an acting user.
type Event struct {
	ID        int64       `json:"id"`
	Detail    EventDetail `json:"detail"`
	Game      *Game       `json:"game,omitempty"`
	Timestamp string      `json:"timestamp"`
	UserID    int64       `json:"user_id"`
}

type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	CountryCode string `json:"country_code,omitempty"`
}

// Page is one fetch result: a slice of the event stream plus the users
// referenced by it and the server's current latest event id.
type Page struct {
	Match         Match   `json:"match"`
	Events        []Event `json:"events"`
	Users         []User  `json:"users"`
	LatestEventID int64   `json:"latest_event_id"`
}

// Fetcher is the minimal contract the repository consumes. before/after
// are exclusive event-id cursors; zero means unset.
type Fetcher interface {
	Fetch(ctx context.Context, matchID int64, limit int, before, after int64) (*Page, error)
}

// HTTPFetcher talks to GET <base>/matches/{id}?limit=&before=&after=.
type HTTPFetcher struct {
	base   string
	client *http.Client
}

func NewHTTPFetcher(base string) *HTTPFetcher {
	return &HTTPFetcher{
		base:   base,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, matchID int64, limit int, before, after int64) (*Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before > 0 {
		q.Set("before", strconv.FormatInt(before, 10))
	}
	if after > 0 {
		q.Set("after", strconv.FormatInt(after, 10))
	}
	u := fmt.Sprintf("%s/matches/%d?%s", f.base, matchID, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch match %d history: %w", matchID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch match %d history: unexpected status %s", matchID, resp.Status)
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode match %d history: %w", matchID, err)
	}
	return &page, nil
}
