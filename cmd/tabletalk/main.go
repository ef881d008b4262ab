// tabletalk is a conversational agent service: the model decides per turn
// whether to answer directly or query the application database through a
// read-only SQL tool, streaming events to the client over SSE.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpolasek/tabletalk/tabletalk/api"
	"github.com/hpolasek/tabletalk/tabletalk/config"
	"github.com/hpolasek/tabletalk/tabletalk/db"
	"github.com/hpolasek/tabletalk/tabletalk/harness"
	"github.com/hpolasek/tabletalk/tabletalk/harness/adapters"
	ports "github.com/hpolasek/tabletalk/tabletalk/harness/ports"
	"github.com/hpolasek/tabletalk/tabletalk/sqltool"
	"github.com/hpolasek/tabletalk/tabletalk/transcript"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	database, err := db.Connect(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	store := transcript.NewStore(database)

	runSQL, err := sqltool.NewTool(sqltool.NewExecutor(database), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build run_sql tool")
	}

	session := harness.NewSession(
		store,
		adapters.Factory(cfg.Engine.Model, cfg.Engine.BaseURL),
		[]ports.Tool{runSQL},
		harness.DefaultCredentialResolver{Default: cfg.Engine.APIKey},
		harness.Config{
			EnforceSafety: cfg.Harness.EnforceSafety,
			Policy: harness.Policy{
				MaxRounds:     cfg.Harness.MaxRounds,
				EngineTimeout: cfg.Harness.EngineTimeout,
				ToolTimeout:   cfg.Harness.ToolTimeout,
			},
			CycleTimeout: cfg.Harness.CycleTimeout,
		},
		logger,
	)

	// Harness policy is read per cycle, so it can follow the config file
	// live. Server and database settings still require a restart.
	config.Watch(func(fresh config.Config) {
		session.UpdatePolicy(harness.Policy{
			MaxRounds:     fresh.Harness.MaxRounds,
			EngineTimeout: fresh.Harness.EngineTimeout,
			ToolTimeout:   fresh.Harness.ToolTimeout,
		})
		logger.Info().
			Int("max_rounds", fresh.Harness.MaxRounds).
			Msg("config file changed, applied harness policy")
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewServer(store, session, logger).Handler(),
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
