// Package config loads runtime configuration from flags, environment
// variables and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully-resolved set of knobs the server needs at startup.
type Config struct {
	ListenAddr string
	PostgresDSN string

	GameServerMailboxCapacity int
	RoomMailboxCapacity       int
	PlayerMailboxCapacity     int

	IdleRoomGrace time.Duration
	SendTimeout   time.Duration
	PingPeriod    time.Duration

	LogLevel string
}

// Load parses CLI flags, layers in POKERROOM_-prefixed environment
// variables and a .env file if present, and returns the merged result.
// A missing .env file is not an error; an unreadable one is.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, err
	}

	flags := pflag.NewFlagSet("pokerroom-server", pflag.ContinueOnError)
	flags.String("listen-addr", ":8080", "HTTP listen address")
	flags.String("postgres-dsn", "", "Postgres connection string (required)")
	flags.Int("gameserver-mailbox-capacity", 64, "GameServer registry mailbox capacity")
	flags.Int("room-mailbox-capacity", 32, "per-Room mailbox capacity")
	flags.Int("player-mailbox-capacity", 16, "per-Player mailbox capacity")
	flags.Duration("idle-room-grace", 5*time.Minute, "how long an empty room stays alive before closing")
	flags.Duration("send-timeout", 2*time.Second, "timeout for a single actor-to-actor send")
	flags.Duration("ping-period", 54*time.Second, "interval between liveness pings sent to each client")
	flags.String("log-level", "info", "zap log level (debug, info, warn, error)")

	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("POKERROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:                v.GetString("listen-addr"),
		PostgresDSN:               v.GetString("postgres-dsn"),
		GameServerMailboxCapacity: v.GetInt("gameserver-mailbox-capacity"),
		RoomMailboxCapacity:       v.GetInt("room-mailbox-capacity"),
		PlayerMailboxCapacity:     v.GetInt("player-mailbox-capacity"),
		IdleRoomGrace:             v.GetDuration("idle-room-grace"),
		SendTimeout:               v.GetDuration("send-timeout"),
		PingPeriod:                v.GetDuration("ping-period"),
		LogLevel:                  v.GetString("log-level"),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, errors.New("config: postgres DSN is required (--postgres-dsn or POKERROOM_POSTGRES_DSN)")
	}
	return cfg, nil
}
