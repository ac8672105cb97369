// cmd/ahrbot/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/ahrbot/ahrbot/internal/bancho"
	"github.com/ahrbot/ahrbot/internal/config"
	"github.com/ahrbot/ahrbot/internal/history"
	"github.com/ahrbot/ahrbot/internal/lobby"
	"github.com/ahrbot/ahrbot/internal/plugins"
)

func main() {
	title := flag.String("make", "", "create a new lobby with this title")
	channel := flag.String("enter", "", "enter an existing #mp_ channel")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	log := logger.WithField("component", "ahrbot")

	transport := bancho.NewIRCTransport(bancho.IRCConfig{
		Addr:     cfg.IRCAddr,
		Nick:     cfg.IRCNick,
		Password: cfg.IRCPassword,
	}, logger.WithField("component", "irc"))

	registered := make(chan struct{})
	transport.Events().Registered.Once(func(struct{}) { close(registered) })
	if err := transport.Connect(); err != nil {
		log.WithError(err).Fatal("connect failed")
	}
	select {
	case <-registered:
	case <-time.After(30 * time.Second):
		log.Fatal("login was not confirmed")
	}

	l := lobby.New(transport, lobby.Config{
		AuthorizedUsers: cfg.AuthorizedUsers,
		ChatTokens:      cfg.ChatTokens,
		ChatPeriod:      cfg.ChatPeriod,
	}, logger.WithField("component", "lobby"))

	rotation := plugins.NewHostRotation(l, logger.WithField("component", "plugins"))
	skip := plugins.NewSkipVote(l, plugins.SkipVoteConfig{
		VoteRate:   cfg.VoteRate,
		MinVotes:   cfg.MinVotes,
		Cooldown:   cfg.VoteCooldown,
		AFKTimeout: cfg.AFKTimeout,
		AFKMessage: cfg.AFKMessage,
		AFKSkip:    cfg.AFKSkip,
	}, logger.WithField("component", "plugins"))
	term := plugins.NewTerminator(l, cfg.TerminationGrace, logger.WithField("component", "plugins"))
	defer func() {
		term.Detach()
		skip.Detach()
		rotation.Detach()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	switch {
	case *title != "":
		err = l.Make(ctx, *title)
	case *channel != "":
		err = l.Enter(ctx, *channel)
	default:
		cancel()
		log.Fatal("pass -make <title> or -enter <#mp_channel>")
	}
	cancel()
	if err != nil {
		log.WithError(err).Fatal("could not enter a lobby")
	}
	l.Do(func() {
		log.WithField("channel", l.Channel()).Info("lobby ready")
	})

	if *channel != "" {
		restoreHostOrder(l, rotation, cfg, log)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	if err := l.Close(closeCtx); err != nil {
		log.WithError(err).Warn("close failed")
		l.Dispose("shutting down")
	}
}

// restoreHostOrder rebuilds the rotation queue of an adopted lobby from its
// match history: a settings dump establishes membership, then the history
// scan decides who is next. Failures fall back to join order.
func restoreHostOrder(l *lobby.Lobby, rotation *plugins.HostRotation, cfg *config.Config, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := l.LoadSettings(ctx); err != nil {
		log.WithError(err).Warn("settings load failed, keeping join order")
		return
	}

	var matchID int64
	l.Do(func() { matchID, _ = strconv.ParseInt(l.ID(), 10, 64) })
	if matchID == 0 {
		return
	}

	var fetcher history.Fetcher = history.NewHTTPFetcher(cfg.HistoryBaseURL)
	if cfg.RedisAddr != "" {
		if rdb, err := history.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB); err != nil {
			log.WithError(err).Warn("redis unavailable, history cache disabled")
		} else {
			fetcher = history.NewCachedFetcher(fetcher, rdb, log)
		}
	}

	repo := history.NewRepository(matchID, fetcher, log)
	order, reason, err := repo.CalcCurrentOrder(ctx)
	if err != nil {
		log.WithError(err).Warn("order reconstruction failed, keeping join order")
		return
	}

	names := make([]string, 0, len(order))
	for _, p := range order {
		names = append(names, p.Username)
	}
	log.WithFields(logrus.Fields{
		"players": len(names),
		"stop":    reason.String(),
	}).Info("host order restored from history")
	l.Do(func() { rotation.SeedOrder(names) })
}
