package migrate

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Dir is where goose finds the SQL migrations, relative to the process
// working directory.
const Dir = "db/migrations"

// Run brings the crawl schema up to date at boot. It opens its own
// short-lived connection so the shared pool's settings never apply to
// migration statements.
func Run(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("migrate: open: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: dialect: %w", err)
	}
	if err := goose.Up(db, Dir); err != nil {
		return fmt.Errorf("migrate: up: %w", err)
	}
	return nil
}
