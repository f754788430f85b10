package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type dialectKind int

const (
	dialectPostgres dialectKind = iota
	dialectSQLite
)

func (d dialectKind) String() string {
	switch d {
	case dialectPostgres:
		return "postgres"
	case dialectSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS participants (
		participant_id BIGINT PRIMARY KEY,
		username TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		is_bot BOOLEAN NOT NULL,
		is_premium BOOLEAN NOT NULL,
		is_scam BOOLEAN NOT NULL,
		is_fake BOOLEAN NOT NULL,
		is_verified BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		conversation_id BIGINT PRIMARY KEY,
		title TEXT NOT NULL,
		is_group BOOLEAN NOT NULL,
		is_channel BOOLEAN NOT NULL,
		is_direct BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		conversation_id BIGINT NOT NULL,
		message_id BIGINT NOT NULL,
		sender_id BIGINT,
		text TEXT NOT NULL,
		sent_at TIMESTAMP NOT NULL,
		is_historical BOOLEAN NOT NULL,
		PRIMARY KEY (conversation_id, message_id)
	)`,
	`CREATE INDEX IF NOT EXISTS messages_historical_idx
		ON messages (conversation_id, is_historical, message_id)`,
	`CREATE TABLE IF NOT EXISTS participant_counts (
		conversation_id BIGINT NOT NULL,
		participant_count BIGINT NOT NULL,
		observed_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS participant_counts_conversation_idx
		ON participant_counts (conversation_id, observed_at)`,
	`CREATE TABLE IF NOT EXISTS backfill_cursors (
		conversation_id BIGINT PRIMARY KEY,
		last_backfilled_message_id BIGINT NOT NULL
	)`,
}

// openByDSN selects the SQL driver by DSN scheme: postgres:// goes to lib/pq,
// sqlite:// (or a bare path) goes to go-sqlite3.
func openByDSN(dsn string) (*sql.DB, dialectKind, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, 0, errors.New("empty database DSN")
	}
	scheme := ""
	if i := strings.Index(dsn, "://"); i >= 0 {
		scheme = strings.ToLower(dsn[:i])
	}
	switch scheme {
	case "postgres", "postgresql":
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, 0, errors.Wrap(err, "open postgres")
		}
		return db, dialectPostgres, nil
	case "", "sqlite", "sqlite3", "file":
		path := dsn
		if scheme != "" {
			path = dsn[len(scheme)+len("://"):]
		}
		db, err := sql.Open("sqlite3", "file:"+path+"?_loc=UTC")
		if err != nil {
			return nil, 0, errors.Wrap(err, "open sqlite")
		}
		// A pooled second connection to the same :memory: DSN would open a
		// distinct empty database, and concurrent writers trip SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		return db, dialectSQLite, nil
	default:
		return nil, 0, fmt.Errorf("unsupported database scheme: %s", scheme)
	}
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}

// rebind rewrites ?-style placeholders to the dialect's native form. Queries
// in this package contain no literal question marks.
func (d dialectKind) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
