package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/darsh8000an/study-buddy-matcher/internal/config"
	"github.com/darsh8000an/study-buddy-matcher/internal/database"
	"github.com/darsh8000an/study-buddy-matcher/internal/logging"
)

const usage = "usage: migrate up | down | steps N | status"

var errUsage = errors.New(usage)

type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Status() (database.MigrationStatus, error)
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("Loading config", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}

	m, err := database.NewMigrator(cfg.Database.DSN(), cfg.Store.MigrationsDir)
	if err != nil {
		logging.Error("Opening migrations", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}

	err = execute(m, os.Args[1:], os.Stdout)
	if closeErr := m.Close(); err == nil {
		err = closeErr
	}
	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logging.Error("Migration failed", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
}

func execute(m migrator, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "steps":
		if len(args) != 2 {
			return errUsage
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", errUsage, args[1])
		}
		return m.Steps(n)
	case "status":
		status, err := m.Status()
		if err != nil {
			return err
		}
		switch {
		case !status.Applied:
			_, err = fmt.Fprintln(out, "no migrations applied")
		case status.Dirty:
			_, err = fmt.Fprintf(out, "version %d (dirty)\n", status.Version)
		default:
			_, err = fmt.Fprintf(out, "version %d\n", status.Version)
		}
		return err
	default:
		return errUsage
	}
}
