package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonatan-kruse/typebout/internal/api"
	"github.com/jonatan-kruse/typebout/internal/config"
	"github.com/jonatan-kruse/typebout/internal/game"
	"github.com/jonatan-kruse/typebout/internal/identity"
	"github.com/jonatan-kruse/typebout/internal/quote"
	"github.com/jonatan-kruse/typebout/internal/ws"
	staticserver "github.com/jonatan-kruse/typebout/static"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const version = "v0.4.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "typebout:", err)
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	cfg := &config.Config{}
	var envFile string

	cmd := &cobra.Command{
		Use:           "typebout",
		Short:         "Real-time multiplayer typing races.",
		Args:          cobra.NoArgs,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			return config.ApplyEnv(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			setupLogging(cfg)
			return serve(cmd.Context(), cfg)
		},
	}

	config.Register(cmd.Flags(), cfg)
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.AddCommand(newImportCmd())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("typebout {{.Version}}\n")
	return cmd
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.LogJSON {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(cw)
}

func serve(ctx context.Context, cfg *config.Config) error {
	quotes, closeQuotes, err := openQuotes(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuotes()

	var verifier identity.TokenVerifier
	if cfg.JWTSecret != "" {
		verifier = identity.NewJWTVerifier(cfg.JWTSecret)
	} else {
		log.Warn().Msg("no jwt secret configured, accepting guests only")
	}
	resolver := identity.NewResolver(verifier)

	rm := game.NewRoomManager(cfg.GameSettings(), quotes)
	defer rm.Close()

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.Logger())
	r.Use(api.CORS(cfg.AllowedOrigins))

	api.New(rm, cfg.BaseURL()).Register(r)

	sock := ws.New(rm, resolver, ws.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		WordRate:       cfg.WordRate,
		WordBurst:      cfg.WordBurst,
	})
	io := sock.Mount(r)
	defer io.Close()

	staticserver.Register(r)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Str("quotes", cfg.QuoteSource).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openQuotes builds the configured quote source. Database sources fall back
// to the embedded quotes when they fail.
func openQuotes(ctx context.Context, cfg *config.Config) (quote.Source, func(), error) {
	switch cfg.QuoteSource {
	case config.QuoteSourcePostgres:
		if err := quote.Migrate(cfg.PostgresURL); err != nil {
			return nil, nil, fmt.Errorf("migrate quotes: %w", err)
		}
		pg, err := quote.NewPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return quote.WithFallback(pg, quote.Default()), pg.Close, nil
	case config.QuoteSourceMongo:
		m, err := quote.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		closeMongo := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.Close(ctx); err != nil {
				log.Error().Err(err).Msg("close mongo")
			}
		}
		return quote.WithFallback(m, quote.Default()), closeMongo, nil
	default:
		d := quote.Default()
		log.Info().Int("quotes", d.Len()).Msg("using embedded quotes")
		return d, func() {}, nil
	}
}
