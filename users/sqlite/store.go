// Package sqlite provides a SQLite-backed users.Repo.
package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lipoic/Lipoic-Server/users"
	"github.com/Lipoic/Lipoic-Server/users/sqlite/migrations"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var _ users.Repo = (*Store)(nil)

// Store implements users.Repo over a single SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at path and applies the bundled migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("[sqlite.Open] storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlite.Open] open")
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY under concurrent signups.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[sqlite.Open] ping")
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		return errors.Wrap(err, "[sqlite.migrate] goose provider")
	}
	if _, err := provider.Up(ctx); err != nil {
		return errors.Wrap(err, "[sqlite.migrate] apply migrations")
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	user.Email = users.NormalizeEmail(user.Email)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "[Store.Create] begin")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, verified_email, modes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.VerifiedEmail,
		joinModes(user.Modes), user.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
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
		if err := insertLoginIP(ctx, tx, user.ID, ip, user.CreatedAt); err != nil {
			return err
		}
	}

	return errors.Wrap(tx.Commit(), "[Store.Create] commit")
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return s.getUser(ctx, `email = ? COLLATE NOCASE`, users.NormalizeEmail(email))
}

func (s *Store) GetByID(ctx context.Context, id string) (*users.User, error) {
	return s.getUser(ctx, `id = ?`, id)
}

func (s *Store) SetVerified(ctx context.Context, email string, verified bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET verified_email = ? WHERE email = ? COLLATE NOCASE`,
		verified, users.NormalizeEmail(email),
	)
	if err != nil {
		return errors.Wrap(err, "[Store.SetVerified] update")
	}
	return requireRow(res)
}

func (s *Store) ConfirmEmail(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET verified_email = 1, password_hash = '' WHERE id = ?`, userID)
	if err != nil {
		return errors.Wrap(err, "[Store.ConfirmEmail] update")
	}
	return requireRow(res)
}

func (s *Store) UpdateProfile(ctx context.Context, userID, username string, modes []users.Mode) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, modes = ? WHERE id = ?`, username, joinModes(modes), userID)
	if err != nil {
		return errors.Wrap(err, "[Store.UpdateProfile] update")
	}
	return requireRow(res)
}

func (s *Store) LinkProvider(ctx context.Context, userID string, connect users.Connect) error {
	if err := s.exists(ctx, userID); err != nil {
		return err
	}
	return upsertConnect(ctx, s.db, userID, connect)
}

func (s *Store) RecordLogin(ctx context.Context, userID, ip string) error {
	if err := s.exists(ctx, userID); err != nil {
		return err
	}
	if ip == "" {
		return nil
	}
	return insertLoginIP(ctx, s.db, userID, ip, s.now())
}

func (s *Store) exists(ctx context.Context, userID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return users.ErrNotFound
	}
	return errors.Wrap(err, "[Store.exists] select")
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*users.User, error) {
	var (
		u         users.User
		modes     string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, verified_email, modes, created_at
		FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.VerifiedEmail, &modes, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, users.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Store.getUser] select user")
	}
	u.Modes = splitModes(modes)
	u.CreatedAt = time.UnixMilli(createdAt).UTC()

	// Rows are drained before the next query: the pool holds a single connection.
	if u.Connects, err = s.loadConnects(ctx, u.ID); err != nil {
		return nil, err
	}
	if u.LoginIPs, err = s.loadLoginIPs(ctx, u.ID); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) loadConnects(ctx context.Context, userID string) ([]users.Connect, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, name, email FROM user_connects WHERE user_id = ? ORDER BY provider`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.loadConnects] select")
	}
	defer rows.Close()

	var connects []users.Connect
	for rows.Next() {
		var c users.Connect
		if err := rows.Scan(&c.Provider, &c.Name, &c.Email); err != nil {
			return nil, errors.Wrap(err, "[Store.loadConnects] scan")
		}
		connects = append(connects, c)
	}
	return connects, errors.Wrap(rows.Err(), "[Store.loadConnects] rows")
}

func (s *Store) loadLoginIPs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ip FROM user_login_ips WHERE user_id = ? ORDER BY first_seen_at, ip`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.loadLoginIPs] select")
	}
	defer rows.Close()

	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, errors.Wrap(err, "[Store.loadLoginIPs] scan")
		}
		ips = append(ips, ip)
	}
	return ips, errors.Wrap(rows.Err(), "[Store.loadLoginIPs] rows")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertConnect(ctx context.Context, db execer, userID string, c users.Connect) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO user_connects (user_id, provider, name, email) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET name = excluded.name, email = excluded.email`,
		userID, c.Provider, c.Name, c.Email,
	)
	return errors.Wrap(err, "[sqlite.upsertConnect]")
}

func insertLoginIP(ctx context.Context, db execer, userID, ip string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO user_login_ips (user_id, ip, first_seen_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, ip) DO NOTHING`,
		userID, ip, at.UnixMilli(),
	)
	return errors.Wrap(err, "[sqlite.insertLoginIP]")
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[sqlite.requireRow]")
	}
	if n == 0 {
		return users.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

func joinModes(modes []users.Mode) string {
	parts := make([]string, len(modes))
	for i, m := range modes {
		parts[i] = string(m)
	}
	return strings.Join(parts, ",")
}

func splitModes(s string) []users.Mode {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	modes := make([]users.Mode, 0, len(parts))
	for _, p := range parts {
		modes = append(modes, users.Mode(p))
	}
	return modes
}

// Ping checks the database file is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "[Store.Ping]")
}
