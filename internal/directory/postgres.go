package directory

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ivanhoe/elixirconf-chat/internal/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PgDirectory struct {
	conn *sql.DB
}

func NewPgDirectory(dsn string) (*PgDirectory, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	d := &PgDirectory{conn: db}
	if err := d.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// migrate applies the embedded schema files in lexical order.
func (d *PgDirectory) migrate() error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}

		stmt, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return err
		}

		if _, err := d.conn.Exec(string(stmt)); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
	}

	return nil
}

func (d *PgDirectory) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

func (d *PgDirectory) Ping() error {
	return d.conn.Ping()
}

func (d *PgDirectory) GetUser(ctx context.Context, id int) (types.User, error) {
	row := d.conn.QueryRowContext(ctx,
		"SELECT id, username, email, moderator, created_at, updated_at "+
			"FROM users WHERE id = $1 LIMIT 1",
		id,
	)

	return scanUser(row)
}

func (d *PgDirectory) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	row := d.conn.QueryRowContext(ctx,
		"SELECT id, username, email, moderator, created_at, updated_at "+
			"FROM users WHERE email = $1 LIMIT 1",
		normalizeEmail(email),
	)

	return scanUser(row)
}

func (d *PgDirectory) CreateUser(ctx context.Context, params CreateUserParams) (types.User, error) {
	pwdHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	row := d.conn.QueryRowContext(ctx,
		"INSERT INTO users (username, email, password_hash, moderator, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) "+
			"RETURNING id, username, email, moderator, created_at, updated_at",
		params.Username,
		normalizeEmail(params.EmailAddress),
		string(pwdHash),
		params.Moderator,
		time.Now().UTC(),
	)

	return scanUser(row)
}

func (d *PgDirectory) VerifyCredentials(ctx context.Context, email, password string) (types.User, error) {
	row := d.conn.QueryRowContext(ctx,
		"SELECT id, username, email, moderator, password_hash, created_at, updated_at "+
			"FROM users WHERE email = $1 LIMIT 1",
		normalizeEmail(email),
	)

	var u types.User
	var pwdHash string
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.Moderator,
		&pwdHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(pwdHash), []byte(password)); err != nil {
		return types.User{}, ErrNotFound
	}

	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanUser(row *sql.Row) (types.User, error) {
	var u types.User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.Moderator,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}

	return u, nil
}
