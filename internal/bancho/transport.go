// internal/bancho/transport.go

// Package bancho defines the chat-transport boundary the lobby consumes,
// plus an IRC-backed implementation. The lobby never depends on a concrete
// transport type, only on Transport.
package bancho

import "github.com/ahrbot/ahrbot/internal/emitter"

// Message is one inbound chat line.
type Message struct {
	From string
	To   string
	Text string
}

// Membership is a channel join or part notification.
type Membership struct {
	Channel string
	Who     string
	Reason  string
}

// Events is the inbound event surface of a transport. Consumers register
// multi-shot handlers or one-shot continuations against future events.
type Events struct {
	Registered *emitter.Emitter[struct{}]
	Message    *emitter.Emitter[Message]
	Joined     *emitter.Emitter[Membership]
	Parted     *emitter.Emitter[Membership]
	NetError   *emitter.Emitter[error]
}

func NewEvents() *Events {
	return &Events{
		Registered: emitter.New[struct{}](),
		Message:    emitter.New[Message](),
		Joined:     emitter.New[Membership](),
		Parted:     emitter.New[Membership](),
		NetError:   emitter.New[error](),
	}
}

// Transport is the raw chat client contract.
type Transport interface {
	Connect() error
	Disconnect(msg string) error
	Join(channel string) error
	Part(channel, msg string) error
	Say(target, text string) error

	// Nick is the login name of this connection, used to recognize the
	// bot's own join/part confirmations.
	Nick() string
	Events() *Events
}
