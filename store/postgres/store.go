// Package postgres implements identity.UserStore on PostgreSQL through the
// pgx database/sql driver. Schema changes are goose migrations embedded in
// the binary.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/pulseapp/identity"
	"github.com/pulseapp/identity/store/postgres/migrations"
)

const uniqueViolation = "23505"

const tfaFlag = int64(identity.FlagTFAEnabled)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

// Open connects to dsn, applies pending migrations and returns the store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectUser = `SELECT id, email, username, password_hash, password_salt, flags,
       tfa_secret, backup_code_salt, last_login
  FROM users
 WHERE `

func (s *Store) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	return s.findOne(ctx, selectUser+"email = $1", email)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*identity.User, error) {
	return s.findOne(ctx, selectUser+"username = $1", username)
}

func (s *Store) FindByID(ctx context.Context, userID string) (*identity.User, error) {
	return s.findOne(ctx, selectUser+"id = $1", userID)
}

func (s *Store) findOne(ctx context.Context, query, arg string) (*identity.User, error) {
	var (
		u         identity.User
		flags     int64
		secret    sql.NullString
		codeSalt  sql.NullString
		lastLogin sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.PasswordSalt, &flags,
		&secret, &codeSalt, &lastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, storeError(err)
	}
	u.Flags = identity.UserFlags(flags)
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time
	}

	if u.Flags.Has(identity.FlagTFAEnabled) {
		codes, err := backupCodes(ctx, s.db, u.ID)
		if err != nil {
			return nil, err
		}
		u.TFA = &identity.TFAProfile{
			Secret:         secret.String,
			BackupCodeSalt: codeSalt.String,
			BackupCodes:    codes,
		}
	}
	return &u, nil
}

func backupCodes(ctx context.Context, db DBTX, userID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT code_hash FROM user_backup_codes WHERE user_id = $1`, userID)
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, storeError(err)
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err)
	}
	return codes, nil
}

// Create inserts user. Uniqueness of email and username is enforced by the
// table constraints, so concurrent inserts cannot both succeed.
func (s *Store) Create(ctx context.Context, user *identity.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, username, password_hash, password_salt, flags)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.Username, user.PasswordHash, user.PasswordSalt, int64(user.Flags),
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "users_email_key":
			return identity.ErrEmailAlreadyUsed
		case "users_username_key":
			return identity.ErrUsernameAlreadyUsed
		}
	}
	return storeError(err)
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.execOne(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, userID, at.UTC())
}

func (s *Store) SetFlags(ctx context.Context, userID string, flags identity.UserFlags) error {
	return s.execOne(ctx, `UPDATE users SET flags = flags | $2 WHERE id = $1`, userID, int64(flags))
}

func (s *Store) ClearFlags(ctx context.Context, userID string, flags identity.UserFlags) error {
	return s.execOne(ctx, `UPDATE users SET flags = flags & ~$2::integer WHERE id = $1`, userID, int64(flags))
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError(err)
	}
	if n == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// EnableTFA stores the profile and sets the TFA flag in one transaction.
// The update only matches while the flag is clear.
func (s *Store) EnableTFA(ctx context.Context, userID string, profile identity.TFAProfile) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET flags = flags | $2, tfa_secret = $3, backup_code_salt = $4
              WHERE id = $1 AND flags & $2 = 0`,
			userID, tfaFlag, profile.Secret, profile.BackupCodeSalt,
		)
		if err != nil {
			return storeError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storeError(err)
		}
		if n == 0 {
			return s.missingOrEnabled(ctx, tx, userID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM user_backup_codes WHERE user_id = $1`, userID); err != nil {
			return storeError(err)
		}
		for _, code := range profile.BackupCodes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO user_backup_codes (user_id, code_hash) VALUES ($1, $2)`, userID, code); err != nil {
				return storeError(err)
			}
		}
		return nil
	})
}

func (s *Store) missingOrEnabled(ctx context.Context, tx *sql.Tx, userID string) error {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return storeError(err)
	}
	if !exists {
		return identity.ErrUserNotFound
	}
	return identity.ErrTFAAlreadyEnabled
}

func (s *Store) DisableTFA(ctx context.Context, userID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET flags = flags & ~$2::integer, tfa_secret = NULL, backup_code_salt = NULL
              WHERE id = $1`,
			userID, tfaFlag,
		)
		if err != nil {
			return storeError(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return storeError(err)
		} else if n == 0 {
			return identity.ErrUserNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_backup_codes WHERE user_id = $1`, userID); err != nil {
			return storeError(err)
		}
		return nil
	})
}

// ConsumeBackupCode deletes the code row. Exactly one concurrent caller
// sees a deleted row.
func (s *Store) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_backup_codes WHERE user_id = $1 AND code_hash = $2`, userID, codeHash)
	if err != nil {
		return false, storeError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeError(err)
	}
	return n == 1, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeError(err)
	}
	return nil
}

func storeError(err error) error {
	return fmt.Errorf("%w: %v", identity.ErrStoreUnavailable, err)
}
