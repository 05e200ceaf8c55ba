package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// goose runs on database/sql; lib/pq registers the "postgres" driver.
	_ "github.com/lib/pq"
)

const openTimeout = 10 * time.Second

// OpenPostgres opens a dedicated single-connection handle for schema changes,
// kept apart from the application's gorm pool and its query logging.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	conn.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return conn, nil
}
