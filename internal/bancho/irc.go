// internal/bancho/irc.go
package bancho

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/irc.v4"
)

// IRCConfig carries the connection settings for the real chat server.
type IRCConfig struct {
	Addr     string // host:port
	Nick     string
	Password string
}

// IRCTransport implements Transport over a plain IRC connection.
type IRCTransport struct {
	cfg    IRCConfig
	logger *logrus.Entry
	events *Events

	mu     sync.Mutex
	conn   net.Conn
	client *irc.Client
	cancel context.CancelFunc
}

func NewIRCTransport(cfg IRCConfig, logger *logrus.Entry) *IRCTransport {
	return &IRCTransport{
		cfg:    cfg,
		logger: logger,
		events: NewEvents(),
	}
}

func (t *IRCTransport) Events() *Events { return t.events }
func (t *IRCTransport) Nick() string    { return t.cfg.Nick }

// Connect dials the server and starts the read loop. The loop runs until
// Disconnect or a network error, which is surfaced as a NetError event.
func (t *IRCTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return fmt.Errorf("already connected to %s", t.cfg.Addr)
	}

	conn, err := net.Dial("tcp", t.cfg.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.cfg.Addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := irc.NewClient(conn, irc.ClientConfig{
		Nick:    t.cfg.Nick,
		Pass:    t.cfg.Password,
		User:    t.cfg.Nick,
		Name:    t.cfg.Nick,
		Handler: irc.HandlerFunc(t.handle),
	})
	t.conn = conn
	t.client = client
	t.cancel = cancel

	go func() {
		err := client.RunContext(ctx)
		if err != nil && ctx.Err() == nil {
			t.logger.WithError(err).Warn("irc read loop exited")
			t.events.NetError.Emit(err)
		}
	}()
	return nil
}

func (t *IRCTransport) handle(c *irc.Client, m *irc.Message) {
	switch m.Command {
	case "001":
		t.events.Registered.Emit(struct{}{})
	case "PRIVMSG":
		t.events.Message.Emit(Message{
			From: m.Prefix.Name,
			To:   m.Params[0],
			Text: m.Trailing(),
		})
	case "JOIN":
		t.events.Joined.Emit(Membership{Channel: m.Trailing(), Who: m.Prefix.Name})
	case "PART":
		t.events.Parted.Emit(Membership{
			Channel: m.Params[0],
			Who:     m.Prefix.Name,
			Reason:  m.Trailing(),
		})
	}
}

func (t *IRCTransport) Disconnect(msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	_ = t.client.Writef("QUIT :%s", msg)
	t.cancel()
	err := t.conn.Close()
	t.conn = nil
	t.client = nil
	return err
}

func (t *IRCTransport) Join(channel string) error {
	return t.writef("JOIN %s", channel)
}

func (t *IRCTransport) Part(channel, msg string) error {
	return t.writef("PART %s :%s", channel, msg)
}

func (t *IRCTransport) Say(target, text string) error {
	return t.writef("PRIVMSG %s :%s", target, text)
}

func (t *IRCTransport) writef(format string, args ...interface{}) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return fmt.Errorf("not connected")
	}
	return client.Writef(format, args...)
}
