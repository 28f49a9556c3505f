package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonatan-kruse/typebout/internal/game"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "TYPEBOUT"

const (
	QuoteSourceStatic   = "static"
	QuoteSourcePostgres = "postgres"
	QuoteSourceMongo    = "mongo"
)

type Config struct {
	Port            int
	Bind            string
	AllowedOrigins  []string
	PublicURL       string
	JWTSecret       string
	AllowGuestsOnly bool

	RoomCapacity      int
	MaxRooms          int
	Countdown         int
	BroadcastInterval time.Duration
	RaceTimeout       time.Duration
	FinishedTTL       time.Duration

	QuoteSource   string
	PostgresURL   string
	MongoURI      string
	MongoDatabase string

	WordRate  float64
	WordBurst int

	LogLevel string
	LogJSON  bool
}

// Register adds every setting as a flag on fs, with its default.
func Register(fs *pflag.FlagSet, c *Config) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	d := game.DefaultSettings()
	fs.IntVarP(&c.Port, "port", "p", 8080, "port to listen on (env: TYPEBOUT_PORT)")
	fs.StringVarP(&c.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: TYPEBOUT_BIND)")
	fs.StringSliceVar(&c.AllowedOrigins, "allowed-origins", []string{"http://localhost:3000"}, "origins allowed to connect, * for any (env: TYPEBOUT_ALLOWED_ORIGINS)")
	fs.StringVar(&c.PublicURL, "public-url", "", "externally visible base URL used in invite links (env: TYPEBOUT_PUBLIC_URL)")
	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "HS256 secret for account access tokens (env: TYPEBOUT_JWT_SECRET)")
	fs.BoolVar(&c.AllowGuestsOnly, "allow-guests-only", false, "run without a jwt secret, accepting guests only (env: TYPEBOUT_ALLOW_GUESTS_ONLY)")

	fs.IntVar(&c.RoomCapacity, "room-capacity", d.Capacity, "players per room, 2-8 (env: TYPEBOUT_ROOM_CAPACITY)")
	fs.IntVar(&c.MaxRooms, "max-rooms", d.MaxRooms, "maximum concurrent rooms (env: TYPEBOUT_MAX_ROOMS)")
	fs.IntVar(&c.Countdown, "countdown", d.Countdown, "countdown seconds before a race (env: TYPEBOUT_COUNTDOWN)")
	fs.DurationVar(&c.BroadcastInterval, "broadcast-interval", d.BroadcastInterval, "standings broadcast interval (env: TYPEBOUT_BROADCAST_INTERVAL)")
	fs.DurationVar(&c.RaceTimeout, "race-timeout", d.RaceTimeout, "race length limit, 0 disables (env: TYPEBOUT_RACE_TIMEOUT)")
	fs.DurationVar(&c.FinishedTTL, "finished-ttl", d.FinishedTTL, "time a finished room waits for a rematch (env: TYPEBOUT_FINISHED_TTL)")

	fs.StringVar(&c.QuoteSource, "quote-source", QuoteSourceStatic, "quote backend: static, postgres or mongo (env: TYPEBOUT_QUOTE_SOURCE)")
	fs.StringVar(&c.PostgresURL, "postgres-url", "", "postgres connection string (env: TYPEBOUT_POSTGRES_URL)")
	fs.StringVar(&c.MongoURI, "mongo-uri", "", "mongodb connection uri (env: TYPEBOUT_MONGO_URI)")
	fs.StringVar(&c.MongoDatabase, "mongo-database", "typebout", "mongodb database name (env: TYPEBOUT_MONGO_DATABASE)")

	fs.Float64Var(&c.WordRate, "word-rate", 20, "sustained words per second per connection (env: TYPEBOUT_WORD_RATE)")
	fs.IntVar(&c.WordBurst, "word-burst", 40, "word burst per connection (env: TYPEBOUT_WORD_BURST)")

	fs.StringVar(&c.LogLevel, "log-level", "info", "trace, debug, info, warn or error (env: TYPEBOUT_LOG_LEVEL)")
	fs.BoolVar(&c.LogJSON, "log-json", false, "log JSON instead of console output (env: TYPEBOUT_LOG_JSON)")
}

// ApplyEnv fills every flag not given on the command line from its
// TYPEBOUT_* environment variable.
func ApplyEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
			}
		}
	})
	return errors.Join(errs...)
}

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.JWTSecret == "" && !c.AllowGuestsOnly {
		return errors.New("--jwt-secret is required unless --allow-guests-only is set")
	}
	if c.MaxRooms < 1 {
		return fmt.Errorf("invalid max rooms: %d", c.MaxRooms)
	}
	if c.Countdown < 0 {
		return fmt.Errorf("invalid countdown: %d", c.Countdown)
	}
	if c.BroadcastInterval <= 0 {
		return fmt.Errorf("invalid broadcast interval: %s", c.BroadcastInterval)
	}
	if c.RaceTimeout < 0 || c.FinishedTTL < 0 {
		return errors.New("race timeout and finished ttl must not be negative")
	}
	switch c.QuoteSource {
	case QuoteSourceStatic:
	case QuoteSourcePostgres:
		if c.PostgresURL == "" {
			return errors.New("--postgres-url is required for the postgres quote source")
		}
	case QuoteSourceMongo:
		if c.MongoURI == "" {
			return errors.New("--mongo-uri is required for the mongo quote source")
		}
	default:
		return fmt.Errorf("unknown quote source %q", c.QuoteSource)
	}
	if c.WordRate <= 0 || c.WordBurst < 1 {
		return errors.New("word rate and burst must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid public url %q", c.PublicURL)
		}
	}
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// BaseURL is the public URL invite links point at.
func (c *Config) BaseURL() string {
	if c.PublicURL != "" {
		return strings.TrimRight(c.PublicURL, "/")
	}
	return "http://localhost:" + strconv.Itoa(c.Port)
}

func (c *Config) GameSettings() game.Settings {
	return game.Settings{
		Capacity:          c.RoomCapacity,
		MaxRooms:          c.MaxRooms,
		Countdown:         c.Countdown,
		BroadcastInterval: c.BroadcastInterval,
		RaceTimeout:       c.RaceTimeout,
		FinishedTTL:       c.FinishedTTL,
	}
}
