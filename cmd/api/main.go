package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron"

	"learnhub.dev/internal/app"
	"learnhub.dev/internal/config"
	"learnhub.dev/internal/httpapi"
	"learnhub.dev/internal/ids"
	"learnhub.dev/internal/obs"
	"learnhub.dev/internal/session"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	log := obs.Logger()

	// A local .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	obs.SetDebug(cfg.Debug)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	svc, err := app.Open(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("open services")
	}
	defer svc.Close()

	secret := cfg.SessionSecret
	if secret == "" {
		if secret, err = ids.Secret(32); err != nil {
			log.Fatal().Err(err).Msg("generate session secret")
		}
		log.Warn().Msg("LEARNHUB_SESSION_SECRET not set, sessions will not survive a restart")
	}
	signer, err := session.NewTokenSigner([]byte(secret), cfg.SessionTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("session signer")
	}

	registry := session.NewRegistry(session.Settings{
		LoginBlocked:        cfg.LoginBlocked,
		MaxSessions:         cfg.MaxSessions,
		RejectExternalEntry: cfg.RejectExternalEntry,
	})
	auth, err := session.NewAuthenticator(session.Deps{
		Registry:    registry,
		Roles:       svc.Roles,
		Identities:  svc.Identities,
		Groups:      svc.Groups,
		Invitations: svc.Invitations,
		Locales:     session.NewLocales(cfg.Locales, cfg.DefaultLocale),
	},
		session.WithHostResolver(net.DefaultResolver, cfg.DNSTimeout),
		session.WithSSOCookieMarker(cfg.SSOCookieMarker),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("authenticator")
	}

	sessions := session.NewTable()
	api, err := httpapi.New(httpapi.Deps{
		Auth:             auth,
		Sessions:         sessions,
		Signer:           signer,
		Groups:           svc.Groups,
		Policies:         svc.Policies,
		Identities:       svc.Identities,
		Invitations:      svc.Invitations,
		Ready:            svc,
		Version:          version,
		InvitationMaxAge: cfg.InvitationMaxAge,
		LoginRate:        cfg.LoginRate,
		LoginBurst:       cfg.LoginBurst,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("http api")
	}

	jobs := cron.New()
	if cfg.SweepSchedule != "" {
		err := jobs.AddFunc(cfg.SweepSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			report, err := svc.Invitations.SweepExpired(ctx, time.Now(), cfg.InvitationMaxAge)
			ev := log.Info()
			if err != nil {
				ev = log.Error().Err(err)
			}
			ev.Int("invitations", report.Invitations).
				Int("identities", report.Identities).
				Int("skipped", report.Skipped).
				Msg("invitation sweep")
		})
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.SweepSchedule).Msg("schedule sweep")
		}
	}
	err = jobs.AddFunc("@every 1m", func() {
		for _, s := range sessions.Prune(time.Now().Add(-cfg.SessionIdleTimeout)) {
			if _, err := auth.Logout(context.Background(), s, nil); err != nil {
				log.Warn().Err(err).Str("session_id", s.ID()).Msg("idle logout failed")
			}
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("schedule session pruning")
	}
	jobs.Start()
	defer jobs.Stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("version", version).Str("addr", srv.Addr).Msg("starting learnhub-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("stopped")
}
