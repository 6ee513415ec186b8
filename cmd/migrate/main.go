package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"plantstore-be/internal/config"
	"plantstore-be/internal/db"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// migrator is the part of *migrate.Migrate the runner drives.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
}

func main() {
	mode := flag.String("mode", "up", "migration mode: up, down, reset or version")
	steps := flag.Int("steps", 0, "number of migrations to apply (up) or roll back (down, default 1)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	database, err := db.NewDatabase(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	driver, err := postgres.WithInstance(database, &postgres.Config{})
	if err != nil {
		log.Fatalf("creating postgres driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL(cfg.MigrationsDir), "postgres", driver)
	if err != nil {
		log.Fatalf("creating migrate instance: %v", err)
	}

	if err := run(m, *mode, *steps); err != nil {
		log.Fatal(err)
	}
}

func sourceURL(dir string) string {
	return "file://" + filepath.ToSlash(dir)
}

func run(m migrator, mode string, steps int) error {
	var err error
	switch mode {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps <= 0 {
			steps = 1
		}
		err = m.Steps(-steps)
	case "reset":
		err = m.Down()
	case "version":
	default:
		return fmt.Errorf("unknown mode: %s (use 'up', 'down', 'reset' or 'version')", mode)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("No migrations to apply")
		err = nil
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", mode, err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Println("Database has no applied migrations")
		return nil
	case err != nil:
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	if dirty {
		return fmt.Errorf("database is dirty at version %d, fix it and force the version", version)
	}
	log.Printf("Database at migration version %d", version)
	return nil
}
