package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apierr "github.com/akilapilapitiya/TrueGate-sub001/internal/auth"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/models"
	"go.uber.org/zap"
)

// Schema for the credential store. Emails are stored case-normalized and act
// as the primary key. login_attempts and locked are only ever changed through
// single atomic UPDATE statements so concurrent failures cannot undercount.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    email TEXT PRIMARY KEY,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    birth_date TEXT NOT NULL DEFAULT '',
    gender TEXT NOT NULL DEFAULT '',
    contact TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT 'user',
    hashed_password TEXT NOT NULL,
    verified INTEGER NOT NULL DEFAULT 0,
    verification_token TEXT,
    verification_expires DATETIME,
    reset_token TEXT,
    reset_expires DATETIME,
    login_attempts INTEGER NOT NULL DEFAULT 0,
    locked INTEGER NOT NULL DEFAULT 0,
    allowed_ips TEXT NOT NULL DEFAULT '',
    last_login DATETIME,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_reset_token ON users(reset_token);
CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
`

const userColumns = `email, first_name, last_name, birth_date, gender, contact,
       role, hashed_password, verified, verification_token, verification_expires,
       reset_token, reset_expires, login_attempts, locked, allowed_ips,
       last_login, created_at, updated_at`

// ListOptions filters and paginates the admin user listing.
type ListOptions struct {
	Page    int
	PerPage int
	Search  string
	Role    models.Role
}

// SQLiteStore is the credential store adapter. Single-document updates are
// atomic at the database level, which the login-attempt and secret-consumption
// paths rely on.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at dbPath and ensures the schema.
func Open(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Serialized writes; SQLite only supports one writer at a time anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// DB exposes the underlying handle so the audit store can share it.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// NormalizeEmail lowercases and trims an email for use as the record key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Insert creates a new user record. A duplicate email maps to ErrUserExists.
func (s *SQLiteStore) Insert(ctx context.Context, user *models.User) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (
            email, first_name, last_name, birth_date, gender, contact, role,
            hashed_password, verified, verification_token, verification_expires,
            allowed_ips, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, NormalizeEmail(user.Email), user.FirstName, user.LastName, user.BirthDate,
		user.Gender, user.Contact, user.Role, user.HashedPassword,
		boolToInt(user.Verified), nullString(user.VerificationToken),
		user.VerificationExpires, strings.Join(user.AllowedIPs, ","), now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apierr.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByEmail loads a user record. Storage errors on this read path collapse
// into ErrUserNotFound so auth decisions fail closed without leaking details;
// the underlying error still goes to the log.
func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT `+userColumns+`
        FROM users WHERE email = ?
    `, NormalizeEmail(email))

	user, err := scanUser(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("user lookup failed", zap.Error(err))
		}
		return nil, apierr.ErrUserNotFound
	}
	return user, nil
}

// FindByResetToken loads the user holding an unexpired reset secret.
func (s *SQLiteStore) FindByResetToken(ctx context.Context, resetToken string) (*models.User, error) {
	if resetToken == "" {
		return nil, apierr.ErrUserNotFound
	}

	row := s.db.QueryRowContext(ctx, `
        SELECT `+userColumns+`
        FROM users WHERE reset_token = ?
    `, resetToken)

	user, err := scanUser(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("reset token lookup failed", zap.Error(err))
		}
		return nil, apierr.ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile applies the allow-listed profile fields only. Email, role, and
// password columns are not reachable from here.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, email string, update models.ProfileUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now()}

	set := func(column string, value *string) {
		if value != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *value)
		}
	}
	set("first_name", update.FirstName)
	set("last_name", update.LastName)
	set("birth_date", update.BirthDate)
	set("gender", update.Gender)
	set("contact", update.Contact)

	args = append(args, NormalizeEmail(email))
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE email = ?", args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return requireRow(res)
}

// Delete removes a user record.
func (s *SQLiteStore) Delete(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM users WHERE email = ?", NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireRow(res)
}

// RecordLoginFailure increments the attempt counter and derives the locked
// flag in one statement, so two concurrent failures cannot both observe the
// same counter value. Returns the post-increment state.
func (s *SQLiteStore) RecordLoginFailure(ctx context.Context, email string, threshold int) (attempts int, locked bool, err error) {
	var lockedInt int
	err = s.db.QueryRowContext(ctx, `
        UPDATE users SET
            login_attempts = login_attempts + 1,
            locked = CASE WHEN login_attempts + 1 >= ? THEN 1 ELSE locked END,
            updated_at = ?
        WHERE email = ?
        RETURNING login_attempts, locked
    `, threshold, time.Now(), NormalizeEmail(email)).Scan(&attempts, &lockedInt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, apierr.ErrUserNotFound
		}
		return 0, false, fmt.Errorf("record login failure: %w", err)
	}
	return attempts, lockedInt == 1, nil
}

// RecordLoginSuccess resets the attempt counter and stamps the login time.
func (s *SQLiteStore) RecordLoginSuccess(ctx context.Context, email string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE users SET
            login_attempts = 0,
            last_login = ?,
            updated_at = ?
        WHERE email = ?
    `, at, time.Now(), NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	return requireRow(res)
}

// Unlock clears the locked flag and the attempt counter. Lockout has no
// automatic expiry; this is the only way out.
func (s *SQLiteStore) Unlock(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE users SET locked = 0, login_attempts = 0, updated_at = ?
        WHERE email = ?
    `, time.Now(), NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("unlock user: %w", err)
	}
	return requireRow(res)
}

// SetPassword replaces the password hash.
func (s *SQLiteStore) SetPassword(ctx context.Context, email, hashedPassword string) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE users SET hashed_password = ?, updated_at = ?
        WHERE email = ?
    `, hashedPassword, time.Now(), NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return requireRow(res)
}

// SetResetToken stores a fresh reset secret, replacing any previous one.
func (s *SQLiteStore) SetResetToken(ctx context.Context, email, resetToken string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE users SET reset_token = ?, reset_expires = ?, updated_at = ?
        WHERE email = ?
    `, resetToken, expires, time.Now(), NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return requireRow(res)
}

// SetVerificationToken stores a fresh verification secret, invalidating any
// previous one.
func (s *SQLiteStore) SetVerificationToken(ctx context.Context, email, verificationToken string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE users SET verification_token = ?, verification_expires = ?, updated_at = ?
        WHERE email = ?
    `, verificationToken, expires, time.Now(), NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return requireRow(res)
}

// ConsumeResetToken replaces the password hash and clears the reset secret in
// one conditional update. Exactly one of any concurrent callers presenting the
// same secret wins; the rest see false.
func (s *SQLiteStore) ConsumeResetToken(ctx context.Context, email, resetToken, newHashedPassword string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
        UPDATE users SET
            hashed_password = ?,
            reset_token = NULL,
            reset_expires = NULL,
            updated_at = ?
        WHERE email = ? AND reset_token = ? AND reset_expires > ?
    `, newHashedPassword, time.Now(), NormalizeEmail(email), resetToken, time.Now())
	if err != nil {
		return false, fmt.Errorf("consume reset token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ConsumeVerificationToken marks the user verified and clears the secret in
// one conditional update, with the same exactly-once guarantee.
func (s *SQLiteStore) ConsumeVerificationToken(ctx context.Context, email, verificationToken string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
        UPDATE users SET
            verified = 1,
            verification_token = NULL,
            verification_expires = NULL,
            updated_at = ?
        WHERE email = ? AND verification_token = ? AND verification_expires > ?
    `, time.Now(), NormalizeEmail(email), verificationToken, time.Now())
	if err != nil {
		return false, fmt.Errorf("consume verification token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// List returns a page of users with optional name/email substring search and
// role filter, plus the total match count for the pagination envelope.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]models.User, int, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PerPage < 1 || opts.PerPage > 100 {
		opts.PerPage = 20
	}

	var where []string
	var args []any
	if opts.Search != "" {
		pattern := "%" + strings.ToLower(opts.Search) + "%"
		where = append(where,
			"(email LIKE ? OR lower(first_name) LIKE ? OR lower(last_name) LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}
	if opts.Role != "" {
		where = append(where, "role = ?")
		args = append(args, opts.Role)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	listArgs := append(append([]any{}, args...), opts.PerPage, (opts.Page-1)*opts.PerPage)
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+userColumns+`
        FROM users`+clause+`
        ORDER BY created_at DESC
        LIMIT ? OFFSET ?
    `, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *user)
	}

	return users, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var verified, locked int
	var verificationToken, resetToken sql.NullString
	var allowedIPs string

	err := row.Scan(
		&user.Email, &user.FirstName, &user.LastName, &user.BirthDate,
		&user.Gender, &user.Contact, &user.Role, &user.HashedPassword,
		&verified, &verificationToken, &user.VerificationExpires,
		&resetToken, &user.ResetExpires, &user.LoginAttempts, &locked,
		&allowedIPs, &user.LastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Verified = verified == 1
	user.Locked = locked == 1
	user.VerificationToken = verificationToken.String
	user.ResetToken = resetToken.String
	if allowedIPs != "" {
		user.AllowedIPs = strings.Split(allowedIPs, ",")
	}

	return &user, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apierr.ErrUserNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
