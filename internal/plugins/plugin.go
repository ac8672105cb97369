// internal/plugins/plugin.go

// Package plugins holds the lobby plugins. Each plugin attaches handlers
// to the lobby's events and publishes opaque signals for other plugins;
// no plugin calls another directly.
package plugins

import (
	"github.com/sirupsen/logrus"

	"github.com/ahrbot/ahrbot/internal/lobby"
)

// base carries the attach/detach bookkeeping shared by every plugin.
// Forgetting to detach leaks handlers across lobby lifecycles, so plugins
// collect an off-closure for every subscription they make.
type base struct {
	name   string
	lobby  *lobby.Lobby
	logger *logrus.Entry
	offs   []func()
}

func newBase(name string, l *lobby.Lobby, logger *logrus.Entry) base {
	return base{name: name, lobby: l, logger: logger.WithField("plugin", name)}
}

func (b *base) track(off func()) {
	b.offs = append(b.offs, off)
}

// Detach unsubscribes every handler this plugin attached.
func (b *base) Detach() {
	lobby.OffAll(b.offs)
	b.offs = nil
}

func (b *base) Name() string { return b.name }
