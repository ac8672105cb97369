// internal/lobby/lobby.go

// Package lobby implements the multiplayer room state machine: roster,
// host pointer, match status, and the command surface plugins drive.
//
// Concurrency model: one logical event loop. Every inbound transport
// event, timer callback, and front-end operation runs as a single "turn"
// under the lobby mutex; event handlers run synchronously inside the turn.
// Methods documented as turn-context must only be called from handlers or
// from within Do.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ahrbot/ahrbot/internal/bancho"
	"github.com/ahrbot/ahrbot/internal/emitter"
	"github.com/ahrbot/ahrbot/internal/limiter"
	"github.com/ahrbot/ahrbot/internal/models"
	"github.com/ahrbot/ahrbot/internal/parser"
)

// Status is the lobby lifecycle state. Transitions are monotonic except
// Entered and Leaving during close.
type Status int

const (
	Standby Status = iota
	Making
	Entering
	Entered
	Leaving
	Left
)

func (s Status) String() string {
	return [...]string{"Standby", "Making", "Entering", "Entered", "Leaving", "Left"}[s]
}

var (
	ErrEmptyTitle       = errors.New("lobby title is empty")
	ErrInvalidChannel   = errors.New("channel reference is not a tournament channel")
	ErrWrongStatus      = errors.New("operation not allowed in current lobby status")
	ErrSettingsInFlight = errors.New("settings load already in flight")
	ErrUnknownPlayer    = errors.New("player is not in the lobby")
)

// BotName is the protocol peer all room commands are addressed to.
const BotName = "BanchoBot"

var reTourneyChannel = regexp.MustCompile(`^#mp_(\d+)$`)

// Config carries per-lobby options; no process-wide singletons.
type Config struct {
	// AuthorizedUsers hold elevated command authority regardless of host.
	AuthorizedUsers []string
	// ChatTokens / ChatPeriod feed the outgoing rate limiter.
	ChatTokens int
	ChatPeriod time.Duration
}

// DefaultConfig matches the server's public flood limits.
func DefaultConfig() Config {
	return Config{ChatTokens: 10, ChatPeriod: 5 * time.Second}
}

// Lobby is the aggregate. Construct with New, then Make or Enter a room.
type Lobby struct {
	Events *Events

	cfg       Config
	transport bancho.Transport
	limiter   *limiter.Limiter
	logger    *logrus.Entry

	mu sync.Mutex // the turn lock

	status      Status
	id          string
	name        string
	channel     string
	historyURL  string
	roster      *models.Roster
	members     map[string]*models.Player
	host        *models.Player
	hostPending *models.Player
	isMatching  bool

	mapID    int64
	mapTitle string

	matchPlayers  int
	finishedCount int

	settingsParser *parser.SettingsParser
	settingsDone   chan struct{}

	enterDone chan struct{}
	closeDone chan struct{}

	transportToks []func()
}

// New wires a lobby onto transport. The transport must already be (or soon
// be) connected; the lobby never reconnects on its own.
func New(transport bancho.Transport, cfg Config, logger *logrus.Entry) *Lobby {
	if cfg.ChatTokens == 0 {
		cfg.ChatTokens = DefaultConfig().ChatTokens
		cfg.ChatPeriod = DefaultConfig().ChatPeriod
	}
	l := &Lobby{
		Events:    newEvents(),
		cfg:       cfg,
		transport: transport,
		logger:    logger,
		status:    Standby,
		roster:    models.NewRoster(),
		members:   make(map[string]*models.Player),
	}
	l.limiter = limiter.New(func(target, text string) {
		if err := transport.Say(target, text); err != nil {
			logger.WithError(err).Warn("say failed")
		}
	}, cfg.ChatTokens, cfg.ChatPeriod, logger)

	ev := transport.Events()
	msgTok := ev.Message.On(l.onTransportMessage)
	joinTok := ev.Joined.On(l.onTransportJoined)
	partTok := ev.Parted.On(l.onTransportParted)
	errTok := ev.NetError.On(l.onTransportError)
	l.transportToks = []func(){
		func() { ev.Message.Off(msgTok) },
		func() { ev.Joined.Off(joinTok) },
		func() { ev.Parted.Off(partTok) },
		func() { ev.NetError.Off(errTok) },
	}
	return l
}

// Do runs fn as one lobby turn. Timer callbacks and out-of-turn callers
// use this to enter the loop; fn must not call Do again.
func (l *Lobby) Do(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}

// Accessors below are turn-context: call from handlers or within Do.

func (l *Lobby) Status() Status              { return l.status }
func (l *Lobby) ID() string                  { return l.id }
func (l *Lobby) Name() string                { return l.name }
func (l *Lobby) Channel() string             { return l.channel }
func (l *Lobby) HistoryURL() string          { return l.historyURL }
func (l *Lobby) Host() *models.Player        { return l.host }
func (l *Lobby) HostPending() *models.Player { return l.hostPending }
func (l *Lobby) IsMatching() bool            { return l.isMatching }
func (l *Lobby) MapID() int64                { return l.mapID }
func (l *Lobby) MapTitle() string            { return l.mapTitle }
func (l *Lobby) PlayerCount() int            { return len(l.members) }

// GetPlayer returns the in-lobby player for name, or nil. Turn-context.
func (l *Lobby) GetPlayer(name string) *models.Player {
	return l.members[models.NormalizeName(name)]
}

// GetOrCreatePlayer resolves name against the session roster without
// touching membership. Turn-context.
func (l *Lobby) GetOrCreatePlayer(name string) *models.Player {
	return l.roster.GetOrCreate(name)
}

// Make creates a new room titled title and resolves once the bot's own
// join of the created channel is confirmed. Fails synchronously outside
// Standby or with an empty title.
func (l *Lobby) Make(ctx context.Context, title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	l.mu.Lock()
	if l.status != Standby {
		l.mu.Unlock()
		return fmt.Errorf("%w: make requires Standby, lobby is %s", ErrWrongStatus, l.status)
	}
	l.status = Making
	l.name = title
	done := make(chan struct{})
	l.enterDone = done
	l.mu.Unlock()

	l.limiter.Say(BotName, "!mp make "+title)
	return l.waitEntered(ctx, done)
}

// Enter joins an existing tournament channel. The reference must normalize
// to the #mp_<id> shape.
func (l *Lobby) Enter(ctx context.Context, channel string) error {
	channel = strings.TrimSpace(channel)
	m := reTourneyChannel.FindStringSubmatch(channel)
	if m == nil {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	}
	l.mu.Lock()
	if l.status != Standby {
		l.mu.Unlock()
		return fmt.Errorf("%w: enter requires Standby, lobby is %s", ErrWrongStatus, l.status)
	}
	l.status = Entering
	l.channel = channel
	l.id = m[1]
	done := make(chan struct{})
	l.enterDone = done
	l.mu.Unlock()

	if err := l.transport.Join(channel); err != nil {
		l.Do(func() { l.status = Standby; l.enterDone = nil })
		return err
	}
	return l.waitEntered(ctx, done)
}

func (l *Lobby) waitEntered(ctx context.Context, done chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		l.Do(func() {
			if l.status == Making || l.status == Entering {
				l.status = Standby
				l.enterDone = nil
			}
		})
		return ctx.Err()
	}
}

// Close issues the room close command, waits for the bot's own departure,
// then disconnects the transport. Requires Entered.
func (l *Lobby) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.status != Entered {
		l.mu.Unlock()
		return fmt.Errorf("%w: close requires Entered, lobby is %s", ErrWrongStatus, l.status)
	}
	l.status = Leaving
	done := make(chan struct{})
	l.closeDone = done
	l.mu.Unlock()

	l.limiter.Say(l.channel, "!mp close")

	select {
	case <-done:
	case <-ctx.Done():
		l.Do(func() {
			if l.status == Leaving {
				l.status = Entered
				l.closeDone = nil
			}
		})
		return ctx.Err()
	}
	l.Dispose("lobby closed")
	return nil
}

// LoadSettings issues a settings dump and feeds bot lines to an incremental
// parser until completion, then reconciles local state. Single-flight:
// a second call while one is running fails.
func (l *Lobby) LoadSettings(ctx context.Context) error {
	l.mu.Lock()
	if l.status != Entered {
		l.mu.Unlock()
		return fmt.Errorf("%w: settings load requires Entered, lobby is %s", ErrWrongStatus, l.status)
	}
	if l.settingsParser != nil {
		l.mu.Unlock()
		return ErrSettingsInFlight
	}
	l.settingsParser = parser.NewSettingsParser()
	done := make(chan struct{})
	l.settingsDone = done
	l.mu.Unlock()

	l.limiter.Say(l.channel, "!mp settings")

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		l.Do(func() {
			l.settingsParser = nil
			l.settingsDone = nil
		})
		return ctx.Err()
	}
}

// TransferHost marks p as the pending host and issues the transfer command.
// Resolution arrives later as a HostChanged event, succeeded or not.
// Turn-context.
func (l *Lobby) TransferHost(p *models.Player) error {
	if l.status != Entered {
		return fmt.Errorf("%w: transfer requires Entered, lobby is %s", ErrWrongStatus, l.status)
	}
	if _, ok := l.members[p.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, p.Name)
	}
	l.hostPending = p
	l.limiter.Say(l.channel, "!mp host "+p.Name)
	return nil
}

// AbortMatch issues the abort command. Turn-context.
func (l *Lobby) AbortMatch() {
	l.limiter.Say(l.channel, "!mp abort")
}

// SetPassword issues the room password command. Turn-context.
func (l *Lobby) SetPassword(pass string) {
	l.limiter.Say(l.channel, "!mp password "+pass)
}

// InvitePlayer issues an invite for the given handle. Turn-context.
func (l *Lobby) InvitePlayer(name string) {
	l.limiter.Say(l.channel, "!mp invite "+name)
}

// SendMessage queues a chat line for the lobby channel. Turn-context.
func (l *Lobby) SendMessage(text string) {
	l.limiter.Say(l.channel, text)
}

// SendMessagef formats and queues a chat line. Turn-context.
func (l *Lobby) SendMessagef(format string, args ...interface{}) {
	l.SendMessage(fmt.Sprintf(format, args...))
}

// SendPluginSignal publishes an opaque cross-plugin signal. Turn-context.
func (l *Lobby) SendPluginSignal(source, sigType string, args ...string) {
	l.logger.WithFields(logrus.Fields{"signal": sigType, "source": source}).Debug("plugin signal")
	l.Events.PluginSignal.Emit(PluginSignalEvent{Type: sigType, Args: args, Source: source})
}

// Players returns the current membership. Turn-context.
func (l *Lobby) Players() []*models.Player {
	out := make([]*models.Player, 0, len(l.members))
	for _, p := range l.members {
		out = append(out, p)
	}
	return out
}

// Dispose detaches transport handlers and drops the outgoing queue.
// Idempotent; used on teardown after Close or by front-ends on error.
func (l *Lobby) Dispose(reason string) {
	for _, off := range l.transportToks {
		off()
	}
	l.transportToks = nil
	l.limiter.Dispose()
	if err := l.transport.Disconnect(reason); err != nil {
		l.logger.WithError(err).Debug("disconnect failed")
	}
}

// unexpected raises the protocol-desync signal. Turn-context.
func (l *Lobby) unexpected(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	l.logger.WithError(err).Warn("unexpected state")
	l.Events.UnexpectedState.Emit(UnexpectedStateEvent{Err: err})
}

// authorityOf derives the command privilege for p.
func (l *Lobby) authorityOf(p *models.Player) Authority {
	if p.IsAuthorized || p.IsReferee {
		return AuthAuthorized
	}
	if l.host == p {
		return AuthHost
	}
	return AuthNone
}

// OffAll is a convenience for detaching a batch of subscription closures,
// used by plugins on teardown.
func OffAll(offs []func()) {
	for _, off := range offs {
		off()
	}
}

// Sub pairs an emitter subscription with its detach closure so plugins can
// collect them uniformly.
func Sub[T any](e *emitter.Emitter[T], fn func(T)) func() {
	tok := e.On(fn)
	return func() { e.Off(tok) }
}
