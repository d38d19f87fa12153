package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresStore reads users from the users table and role membership from one table
// per role, each keyed by user_id.
type PostgresStore struct {
	db         DBTX
	roleTables map[string]string
}

func NewPostgresStore(db DBTX, tables []RoleTable) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("postgres connection required")
	}
	roleTables := make(map[string]string, len(tables))
	for _, t := range tables {
		roleTables[t.Role] = pgx.Identifier{t.Table}.Sanitize()
	}
	return &PostgresStore{db: db, roleTables: roleTables}, nil
}

const selectUser = `SELECT id::text, username, email, password_hash FROM users WHERE `

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findOne(ctx, selectUser+`username = $1`, username)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, selectUser+`email = $1`, email)
}

// HasRole reports false for roles with no configured table and for ids that are not
// UUIDs. The id is compared as a uuid so the user_id key index serves the probe.
func (s *PostgresStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	table, ok := s.roleTables[role]
	if !ok || uuid.Validate(userID) != nil {
		return false, nil
	}

	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE user_id = $1::uuid)`, table)
	if err := s.db.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: role %s lookup: %v", ErrStoreUnavailable, role, err)
	}
	return exists, nil
}

func (s *PostgresStore) findOne(ctx context.Context, query, arg string) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &u, nil
}
