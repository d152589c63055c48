package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"kasa-backend/internal/cashsession"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate kasa komutlarını (plpgsql fonksiyonları) kurar. Tablolar önce
// AutoMigrate ile oluşturulmuş olmalı.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

var procedures = map[string]func(*cashsession.Capabilities){
	"cash_open_session":        func(c *cashsession.Capabilities) { c.AtomicOpen = true },
	"cash_close_session":       func(c *cashsession.Capabilities) { c.AtomicClose = true },
	"cash_validate_close":      func(c *cashsession.Capabilities) { c.ValidateClose = true },
	"cash_force_close_session": func(c *cashsession.Capabilities) { c.ForceClose = true },
}

// ProbeCapabilities hangi atomik komutların kurulu olduğunu pg_proc'tan okur.
// Başlangıçta bir kez çağrılır.
func (s *Store) ProbeCapabilities(ctx context.Context) (cashsession.Capabilities, error) {
	names := make([]string, 0, len(procedures))
	for name := range procedures {
		names = append(names, name)
	}

	var found []string
	err := s.db.WithContext(ctx).
		Raw("SELECT proname FROM pg_proc WHERE proname IN ?", names).
		Scan(&found).Error
	if err != nil {
		return cashsession.Capabilities{}, classifyError("probe capabilities", err)
	}

	var caps cashsession.Capabilities
	for _, name := range found {
		if set, ok := procedures[name]; ok {
			set(&caps)
		}
	}
	return caps, nil
}
