package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/config"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/database"
)

const migrateUsage = "usage: mailbeacon migrate up|down|reset|version|force <version>"

// migrator is the schema control surface of database.MigrationManager
type migrator interface {
	Up() error
	Down() error
	Reset() error
	Version() (uint, bool, error)
	Force(version int) error
}

// migrateCommand is a parsed `migrate` subcommand
type migrateCommand struct {
	action  string
	version int
}

func parseMigrateArgs(args []string) (migrateCommand, error) {
	if len(args) == 0 {
		return migrateCommand{}, errors.New(migrateUsage)
	}

	cmd := migrateCommand{action: args[0]}
	switch cmd.action {
	case "up", "down", "reset", "version":
		if len(args) != 1 {
			return migrateCommand{}, errors.New(migrateUsage)
		}
	case "force":
		if len(args) != 2 {
			return migrateCommand{}, errors.New(migrateUsage)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return migrateCommand{}, fmt.Errorf("invalid migration version %q", args[1])
		}
		cmd.version = v
	default:
		return migrateCommand{}, errors.New(migrateUsage)
	}
	return cmd, nil
}

// runMigrate runs a migrate subcommand against the configured database
func runMigrate(args []string, logger log.Logger) error {
	cmd, err := parseMigrateArgs(args)
	if err != nil {
		return err
	}

	cfg := config.AppConfigInstance.DatabaseConfig
	if err := database.EnsureDatabase(cfg, logger); err != nil {
		return err
	}
	return applyMigration(database.NewMigrationManager(cfg, logger), cmd, logger)
}

func applyMigration(m migrator, cmd migrateCommand, logger log.Logger) error {
	switch cmd.action {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "reset":
		return m.Reset()
	case "force":
		if err := m.Force(cmd.version); err != nil {
			return fmt.Errorf("failed to force migration version: %w", err)
		}
		level.Info(logger).Log("msg", "migration version forced", "version", cmd.version)
		return nil
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	level.Info(logger).Log("msg", "migration version", "version", version, "dirty", dirty)
	return nil
}
