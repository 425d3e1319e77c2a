package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"learnhub.dev/internal/migrate"
	"learnhub.dev/internal/obs"
)

func main() {
	log := obs.Logger()
	var (
		dsn            = flag.String("dsn", os.Getenv("LEARNHUB_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "Directory of SQL migrations (default: embedded schema)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal().Msg("missing DSN: provide via -dsn or LEARNHUB_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal().Msg("usage: migrate [up|down|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	migrations := migrate.Schema()
	if *migrationsPath != "" {
		migrations = os.DirFS(*migrationsPath)
	}
	mgr := migrate.NewManager(db, migrations)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var status []migrate.Status
		status, err = mgr.Status(ctx)
		for _, st := range status {
			if st.AppliedAt == nil {
				fmt.Printf("%s\tpending\n", st.Name)
				continue
			}
			fmt.Printf("%s\tapplied %s\n", st.Name, st.AppliedAt.UTC().Format(time.RFC3339))
		}
	default:
		log.Fatal().Str("command", flag.Arg(0)).Msg("unknown command")
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("migrate failed")
	}
}
