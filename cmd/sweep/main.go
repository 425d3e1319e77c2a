// Command sweep runs one invitation cleanup pass against the configured store
// and exits. Schedule it externally when in-process sweeping is disabled.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/joho/godotenv"

	"learnhub.dev/internal/app"
	"learnhub.dev/internal/config"
	"learnhub.dev/internal/obs"
)

func main() {
	log := obs.Logger()
	timeout := flag.Duration("timeout", 5*time.Minute, "Upper bound for the whole sweep")
	flag.Parse()

	// A local .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	obs.SetDebug(cfg.Debug)
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("LEARNHUB_PG_DSN is required; the in-memory store has nothing to sweep")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	svc, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open services")
	}
	defer svc.Close()

	report, err := svc.Invitations.SweepExpired(ctx, time.Now(), cfg.InvitationMaxAge)
	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Int("invitations", report.Invitations).
		Int("identities", report.Identities).
		Int("skipped", report.Skipped).
		Msg("invitation sweep")
	if err != nil {
		svc.Close()
		cancel()
		log.Fatal().Msg("sweep incomplete")
	}
}
