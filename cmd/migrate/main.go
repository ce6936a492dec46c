package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sameieportalen.no/internal/config"
	"sameieportalen.no/internal/migrate"
	"sameieportalen.no/internal/obs"
)

const usage = "usage: migrate [-dsn DSN] up|down|seed|status"

func main() {
	if err := run(); err != nil {
		obs.Component("migrate").WithError(err).Fatal("migrate failed")
	}
}

func run() error {
	log := obs.Component("migrate")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dsn := flag.String("dsn", cfg.PostgresDSN, "PostgreSQL DSN")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	if *dsn == "" {
		return errors.New("missing DSN: provide via -dsn or SAMEIE_PG_DSN")
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, migrate.Migrations(), migrate.Seeds())

	switch flag.Arg(0) {
	case "up":
		n, err := mgr.Up(ctx)
		if err != nil {
			return err
		}
		log.WithField("applied", n).Info("schema up to date")
	case "down":
		name, err := mgr.Down(ctx)
		if err != nil {
			return err
		}
		log.WithField("migration", name).Info("rolled back")
	case "seed":
		n, err := mgr.Seed(ctx, cfg.AdminEmails)
		if err != nil {
			return err
		}
		log.WithField("files", n).WithField("admins", len(cfg.AdminEmails)).Info("seeded")
	case "status":
		history, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		for _, a := range history {
			fmt.Printf("%s\t%s\n", a.Name, a.AppliedAt.Format(time.RFC3339))
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	return nil
}
