package db

import (
	stderrors "errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migration applies every pending migration found in migratePath.
func Migration(dbStr, migratePath string) error {
	if dbStr == "" {
		return fmt.Errorf("migration: empty database connection string")
	}
	if migratePath == "" {
		return fmt.Errorf("migration: empty migrations path")
	}

	m, err := migrate.New("file://"+migratePath, dbStr)
	if err != nil {
		return fmt.Errorf("migration: init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: up: %w", err)
	}
	return nil
}
