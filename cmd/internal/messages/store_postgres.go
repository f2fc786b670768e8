package messages

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// The pgx pool is owned by the caller; Close is a no-op.
// DrainUnopened is a single UPDATE ... RETURNING statement: under READ COMMITTED a
// concurrent drain blocks on the row locks and then re-evaluates opened = false,
// so each row is returned to exactly one caller.
type PostgresStore struct {
	pool    *pgxpool.Pool
	schema  string
	userFKs bool
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// DefaultSchema matches the identity store's default so both tables live together.
const DefaultSchema = "messenger"

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var (
	//go:embed schema.sql
	schemaSQL string

	//go:embed schema_users_fk.sql
	schemaUsersFKSQL string
)

// WithSchema sets the DB schema used by this store.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("messages: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return errors.New("messages: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithUserForeignKeys makes Migrate add sender/receiver foreign keys to
// <schema>.users(username). The users table must already exist.
func WithUserForeignKeys() PostgresOption {
	return func(s *PostgresStore) error {
		s.userFKs = true
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
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
		return nil, errors.New("messages: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Migrate applies the embedded messages DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	q := pgx.Identifier{s.schema}.Sanitize()

	if _, err := s.pool.Exec(ctx, strings.ReplaceAll(schemaSQL, "{{schema}}", q)); err != nil {
		return fmt.Errorf("messages: migrate: %w", err)
	}
	if s.userFKs {
		if _, err := s.pool.Exec(ctx, strings.ReplaceAll(schemaUsersFKSQL, "{{schema}}", q)); err != nil {
			return fmt.Errorf("messages: migrate user fks: %w", err)
		}
	}
	return nil
}

// Insert stores a new unopened message and returns it with its sequence id.
func (s *PostgresStore) Insert(ctx context.Context, in InsertInput) (Message, error) {
	if in.Sender == "" || in.Receiver == "" {
		return Message{}, errors.New("messages: invalid insert")
	}

	messages := pgIdent(s.schema, "messages")
	m := Message{
		Sender:   in.Sender,
		Receiver: in.Receiver,
		Text:     in.Text,
		Date:     in.Date,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+messages+` (sender, receiver, message, date, opened)
		 VALUES ($1, $2, $3, $4, false)
		 RETURNING id`,
		in.Sender, in.Receiver, in.Text, in.Date,
	).Scan(&m.ID)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return Message{}, OpError{Op: "messages.Insert", Kind: ErrRecipientNotFound, Err: err}
		}
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// DrainUnopened atomically marks and returns unopened sender->receiver messages.
func (s *PostgresStore) DrainUnopened(ctx context.Context, sender, receiver string) ([]Message, error) {
	messages := pgIdent(s.schema, "messages")
	rows, err := s.pool.Query(ctx,
		`WITH drained AS (
		     UPDATE `+messages+`
		        SET opened = true
		      WHERE sender = $1 AND receiver = $2 AND opened = false
		  RETURNING id, sender, receiver, message, date, opened
		 )
		 SELECT id, sender, receiver, message, date, opened
		   FROM drained
		  ORDER BY date ASC, id ASC`,
		sender, receiver,
	)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// FetchConversation returns one offset window of the conversation as q.User sees it.
func (s *PostgresStore) FetchConversation(ctx context.Context, q ConversationQuery) ([]Message, error) {
	messages := pgIdent(s.schema, "messages")
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender, receiver, message, date, opened
		   FROM `+messages+`
		  WHERE (sender = $1 AND receiver = $2)
		     OR (sender = $2 AND receiver = $1 AND opened)
		  ORDER BY date ASC, id ASC
		 OFFSET $3
		  LIMIT $4`,
		q.User, q.Partner, q.Skip, q.Take,
	)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.Sender, &m.Receiver, &m.Text, &m.Date, &m.Opened)
		return m, err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Message{}
	}
	return out, nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}
