// internal/config/config.go

// Package config loads process configuration from the environment. The
// resulting struct is threaded through constructors explicitly.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	IRCAddr     string `envconfig:"IRC_ADDR" default:"irc.ppy.sh:6667"`
	IRCNick     string `envconfig:"IRC_NICK" required:"true"`
	IRCPassword string `envconfig:"IRC_PASSWORD" required:"true"`

	// AuthorizedUsers may run elevated commands such as *skipto.
	AuthorizedUsers []string `envconfig:"AUTHORIZED_USERS"`

	ChatTokens int           `envconfig:"CHAT_TOKENS" default:"10"`
	ChatPeriod time.Duration `envconfig:"CHAT_PERIOD" default:"5s"`

	VoteRate     float64       `envconfig:"VOTE_RATE" default:"0.5"`
	MinVotes     int           `envconfig:"MIN_VOTES" default:"2"`
	VoteCooldown time.Duration `envconfig:"VOTE_COOLDOWN" default:"5s"`

	AFKTimeout time.Duration `envconfig:"AFK_TIMEOUT" default:"90s"`
	AFKMessage string        `envconfig:"AFK_MESSAGE"`
	AFKSkip    bool          `envconfig:"AFK_SKIP" default:"true"`

	TerminationGrace time.Duration `envconfig:"TERMINATION_GRACE" default:"5m"`

	HistoryBaseURL string `envconfig:"HISTORY_BASE_URL" default:"https://osu.ppy.sh/community"`

	// RedisAddr enables the history page cache when set.
	RedisAddr string `envconfig:"REDIS_ADDR"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the AHR-prefixed environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("ahr", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}
