package identity

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the user directory over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
// Schema identifiers are quoted with pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// DefaultSchema is the Postgres schema used when WithSchema is not given.
const DefaultSchema = "messenger"

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

//go:embed schema.sql
var schemaSQL string

// WithSchema sets the Postgres schema used by the store.
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !PgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
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
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// Migrate creates the schema and the users table if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := strings.ReplaceAll(schemaSQL, "{{schema}}", pgx.Identifier{s.schema}.Sanitize())
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("identity: migrate: %w", err)
	}
	return nil
}

// CreateUser inserts a new user row.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if err := ValidateUsername(in.Username); err != nil {
		return User{}, err
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, invalid(op, "password hash is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewUserID(now)
	if err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (id, username, username_norm, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, in.Username, NormalizeUsername(in.Username), in.PasswordHash, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return User{ID: id, Username: in.Username, CreatedAt: now}, nil
}

// GetUserAuthByUsername loads a user and its password hash by case-insensitive username.
func (s *PostgresStore) GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	const op = "identity.GetUserAuthByUsername"

	users := pgIdent(s.schema, "users")
	var ua UserAuth
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, created_at, password_hash
		   FROM `+users+`
		  WHERE username_norm = $1`,
		NormalizeUsername(username),
	).Scan(&ua.User.ID, &ua.User.Username, &ua.User.CreatedAt, &ua.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAuth{}, notFound(op)
		}
		return UserAuth{}, err
	}
	return ua, nil
}

// ExistsByUsername reports whether username is registered, matching exactly.
func (s *PostgresStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	users := pgIdent(s.schema, "users")
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+users+` WHERE username = $1)`,
		username,
	).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// SearchByPrefix returns users whose normalized username starts with prefix.
func (s *PostgresStore) SearchByPrefix(ctx context.Context, prefix string, limit int) ([]User, error) {
	users := pgIdent(s.schema, "users")
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, created_at
		   FROM `+users+`
		  WHERE username_norm LIKE $1 || '%' ESCAPE '\'
		  ORDER BY username_norm
		  LIMIT $2`,
		escapeLike(NormalizeUsername(prefix)), clampSearchLimit(limit),
	)
	if err != nil {
		return nil, err
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) {
		var u User
		err := row.Scan(&u.ID, &u.Username, &u.CreatedAt)
		return u, err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PgIdentIsValid checks if a string is a safe Postgres identifier.
func PgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case strings.Contains(c, "username"):
		return "username", true
	default:
		return "unique", true
	}
}
