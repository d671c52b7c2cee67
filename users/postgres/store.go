// Package postgres provides a PostgreSQL-backed users.Repo built on pgx.
package postgres

import (
	"context"
	"time"

	"github.com/Lipoic/Lipoic-Server/users"
	"github.com/Lipoic/Lipoic-Server/users/postgres/migrations"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

const uniqueViolation = "23505"

var _ users.Repo = (*Store)(nil)

// Config holds the pool settings.
type Config struct {
	ConnectionString string
	MaxConns         int32
	RetryAttempts    int
	RetryInterval    time.Duration
}

// Store implements users.Repo over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool, retrying with a linear backoff while the database comes up,
// and applies the bundled migrations.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Wrap(err, "[postgres.Connect] parse config")
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var pool *pgxpool.Pool
	attempts := max(cfg.RetryAttempts, 1)
	for i := range attempts {
		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
			pool = nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("postgres not ready")
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "[postgres.Connect] waiting for database")
		case <-time.After(time.Duration(i+1) * interval):
		}
	}
	if pool == nil {
		return nil, errors.Wrap(err, "[postgres.Connect] open pool")
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool. Migrations are not applied.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded goose migrations through a database/sql bridge
// sharing the pool's connections.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return errors.Wrap(err, "[postgres.Migrate] goose provider")
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "[postgres.Migrate] apply migrations")
	}
	for _, r := range results {
		log.Info().Str("migration", r.Source.Path).Dur("took", r.Duration).Msg("migration applied")
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Truncate removes every account. Intended for test databases.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE users CASCADE`)
	return errors.Wrap(err, "[Store.Truncate]")
}

func (s *Store) Create(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = users.NormalizeEmail(user.Email)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (id, username, email, password_hash, verified_email, modes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			user.ID, user.Username, user.Email, user.PasswordHash, user.VerifiedEmail,
			modeStrings(user.Modes), user.CreatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return users.ErrDuplicateEmail
			}
			return errors.Wrap(err, "[Store.Create] insert user")
		}
		for _, c := range user.Connects {
			if err := upsertConnect(ctx, tx, user.ID, c); err != nil {
				return err
			}
		}
		for _, ip := range user.LoginIPs {
			if err := insertLoginIP(ctx, tx, user.ID, ip); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return s.getUser(ctx, `LOWER(email) = LOWER($1)`, users.NormalizeEmail(email))
}

func (s *Store) GetByID(ctx context.Context, id string) (*users.User, error) {
	return s.getUser(ctx, `id = $1`, id)
}

func (s *Store) SetVerified(ctx context.Context, email string, verified bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET verified_email = $1 WHERE LOWER(email) = LOWER($2)`,
		verified, users.NormalizeEmail(email),
	)
	if err != nil {
		return errors.Wrap(err, "[Store.SetVerified] update")
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (s *Store) ConfirmEmail(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET verified_email = TRUE, password_hash = '' WHERE id = $1`, userID)
	if err != nil {
		return errors.Wrap(err, "[Store.ConfirmEmail] update")
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, userID, username string, modes []users.Mode) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET username = $1, modes = $2 WHERE id = $3`, username, modeStrings(modes), userID)
	if err != nil {
		return errors.Wrap(err, "[Store.UpdateProfile] update")
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (s *Store) LinkProvider(ctx context.Context, userID string, connect users.Connect) error {
	if err := s.exists(ctx, userID); err != nil {
		return err
	}
	return upsertConnect(ctx, s.pool, userID, connect)
}

func (s *Store) RecordLogin(ctx context.Context, userID, ip string) error {
	if err := s.exists(ctx, userID); err != nil {
		return err
	}
	if ip == "" {
		return nil
	}
	return insertLoginIP(ctx, s.pool, userID, ip)
}

func (s *Store) exists(ctx context.Context, userID string) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1`, userID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return users.ErrNotFound
	}
	return errors.Wrap(err, "[Store.exists] select")
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*users.User, error) {
	var (
		u     users.User
		modes []string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, verified_email, modes, created_at
		FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.VerifiedEmail, &modes, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, users.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Store.getUser] select user")
	}
	for _, m := range modes {
		u.Modes = append(u.Modes, users.Mode(m))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT provider, name, email FROM user_connects WHERE user_id = $1 ORDER BY provider`, u.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.getUser] select connects")
	}
	u.Connects, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (users.Connect, error) {
		var c users.Connect
		err := row.Scan(&c.Provider, &c.Name, &c.Email)
		return c, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Store.getUser] collect connects")
	}

	ipRows, err := s.pool.Query(ctx,
		`SELECT ip FROM user_login_ips WHERE user_id = $1 ORDER BY first_seen_at, ip`, u.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.getUser] select login ips")
	}
	u.LoginIPs, err = pgx.CollectRows(ipRows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "[Store.getUser] collect login ips")
	}
	return &u, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func upsertConnect(ctx context.Context, db execer, userID string, c users.Connect) error {
	_, err := db.Exec(ctx,
		`INSERT INTO user_connects (user_id, provider, name, email) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, provider) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email`,
		userID, c.Provider, c.Name, c.Email,
	)
	return errors.Wrap(err, "[postgres.upsertConnect]")
}

func insertLoginIP(ctx context.Context, db execer, userID, ip string) error {
	_, err := db.Exec(ctx,
		`INSERT INTO user_login_ips (user_id, ip) VALUES ($1, $2) ON CONFLICT (user_id, ip) DO NOTHING`,
		userID, ip,
	)
	return errors.Wrap(err, "[postgres.insertLoginIP]")
}

func modeStrings(modes []users.Mode) []string {
	out := make([]string, len(modes))
	for i, m := range modes {
		out[i] = string(m)
	}
	return out
}

// Ping checks the pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.pool.Ping(ctx), "[Store.Ping]")
}
