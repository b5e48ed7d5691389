package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a KV backed by PostgreSQL for server-hosted deployments of the
// client core (one row per surface-qualified key).
//
// Ownership model:
//   - Postgres does NOT own the pgx pool. The caller must close the pool.
//   - Close() is therefore a no-op.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures Postgres behavior.
type PostgresOption func(*Postgres) error

// WithSchema sets the DB schema used by this store (default: "jobwire").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *Postgres) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("store: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("store: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgres constructs a Postgres-backed KV.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) (*Postgres, error) {
	st := &Postgres{
		pool:   pool,
		schema: "jobwire",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("store: nil pool")
	}
	return st, nil
}

// Get returns the value for key, reporting presence explicitly.
func (s *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.pool == nil {
		return nil, false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	table := pgIdent(s.schema, "client_state")

	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM `+table+` WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores value under key, overwriting any previous value.
func (s *Postgres) Set(ctx context.Context, key string, value []byte) error {
	if s == nil || s.pool == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	table := pgIdent(s.schema, "client_state")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+table+` (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, time.Now().UTC(),
	)
	return err
}

// Delete removes key; deleting an absent key is a no-op.
func (s *Postgres) Delete(ctx context.Context, key string) error {
	if s == nil || s.pool == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	table := pgIdent(s.schema, "client_state")

	_, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE key = $1`, key)
	return err
}

// Close is a no-op because the pool is owned by the caller.
func (s *Postgres) Close() error { return nil }

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
