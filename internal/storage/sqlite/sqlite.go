// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package and
// the mattn/go-sqlite3 driver.
//
// Students are never physically removed: deletes set deleted_at, and every
// read filters on "deleted_at IS NULL". The UNIQUE constraint on email spans
// the whole table, so a soft-deleted student still reserves its address.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aanand-mishra/student-records-api/internal/config"
	"github.com/aanand-mishra/student-records-api/internal/storage"
	"github.com/aanand-mishra/student-records-api/internal/types"

	// Imported by name (not blank) so constraint violations can be
	// classified through sqlite3.Error; the import also registers the
	// "sqlite3" driver with database/sql.
	"github.com/mattn/go-sqlite3"
)

// schema is applied on every startup. Each statement is idempotent.
//
// The CHECK constraints make an empty string behave like a missing value,
// so inserts coming from the importer (which performs no pre-validation)
// are rejected by the store itself.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id           INTEGER  PRIMARY KEY AUTOINCREMENT,
		name         TEXT     NOT NULL CHECK (name <> ''),
		email        TEXT     NOT NULL UNIQUE CHECK (email <> ''),
		address      TEXT     NOT NULL CHECK (address <> ''),
		study_course TEXT     NOT NULL CHECK (study_course <> ''),
		created_at   DATETIME NOT NULL,
		updated_at   DATETIME NOT NULL,
		deleted_at   DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_students_name ON students (name)`,
	`CREATE TABLE IF NOT EXISTS users (
		id         INTEGER  PRIMARY KEY AUTOINCREMENT,
		name       TEXT     NOT NULL CHECK (name <> ''),
		email      TEXT     NOT NULL UNIQUE CHECK (email <> ''),
		password   TEXT     NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
}

const studentColumns = "id, name, email, address, study_course, created_at, updated_at, deleted_at"

// SQLite is the concrete implementation of storage.Storage.
// It holds a *sql.DB which is a connection pool managed by database/sql.
// A single *sql.DB is safe for concurrent use by multiple goroutines.
type SQLite struct {
	Db *sql.DB
}

var _ storage.Storage = (*SQLite)(nil)

// New opens the SQLite database at cfg.StoragePath (creating the parent
// directory when needed), applies the schema and returns a ready store.
func New(cfg *config.Config) (*SQLite, error) {
	if dir := filepath.Dir(cfg.StoragePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.New: create dir: %w", err)
		}
	}

	// sql.Open does NOT open a real connection yet. It just validates
	// the driver name and data source name (DSN). The busy timeout lets
	// concurrent writers wait for the file lock instead of failing.
	db, err := sql.Open("sqlite3", cfg.StoragePath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	s, err := NewWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB applies the schema to an already opened database handle.
func NewWithDB(db *sql.DB) (*SQLite, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("sqlite.New: apply schema: %w", err)
		}
	}
	return &SQLite{Db: db}, nil
}

// Close releases the connection pool.
func (s *SQLite) Close() error {
	return s.Db.Close()
}

// classify maps driver constraint failures onto the storage sentinels.
// Anything else is returned unchanged.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique:
			return storage.ErrDuplicateEmail
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
			return storage.ErrMissingField
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (types.Student, error) {
	var (
		student   types.Student
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&student.ID,
		&student.Name,
		&student.Email,
		&student.Address,
		&student.StudyCourse,
		&student.CreatedAt,
		&student.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return types.Student{}, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		student.DeletedAt = &t
	}
	return student, nil
}

func (s *SQLite) queryStudents(ctx context.Context, op, query string, args ...any) ([]types.Student, error) {
	rows, err := s.Db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	// Returning [] instead of null in JSON is better API behaviour.
	students := make([]types.Student, 0)
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		students = append(students, student)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iteration: %w", op, err)
	}
	return students, nil
}

// CreateStudent inserts a new row into the students table.
// Placeholders (?) keep user input out of the SQL text.
func (s *SQLite) CreateStudent(ctx context.Context, student types.Student) (types.Student, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		`INSERT INTO students (name, email, address, study_course, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	student.Email = types.NormalizeEmail(student.Email)

	result, err := stmt.ExecContext(ctx,
		student.Name, student.Email, student.Address, student.StudyCourse, now, now)
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: %w", classify(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: last insert id: %w", err)
	}

	student.ID = id
	student.CreatedAt = now
	student.UpdatedAt = now
	student.DeletedAt = nil
	return student, nil
}

// GetStudentByID fetches exactly one live student row by primary key.
func (s *SQLite) GetStudentByID(ctx context.Context, id int64) (types.Student, error) {
	row := s.Db.QueryRowContext(ctx,
		"SELECT "+studentColumns+" FROM students WHERE id = ? AND deleted_at IS NULL LIMIT 1", id)

	student, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Student{}, fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return types.Student{}, fmt.Errorf("GetStudentByID: scan: %w", err)
	}
	return student, nil
}

// GetStudentByEmail returns the first live student holding email.
func (s *SQLite) GetStudentByEmail(ctx context.Context, email string) (types.Student, error) {
	row := s.Db.QueryRowContext(ctx,
		"SELECT "+studentColumns+" FROM students WHERE email = ? AND deleted_at IS NULL ORDER BY id LIMIT 1",
		email)

	student, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Student{}, fmt.Errorf("no student found with email %q: %w", email, storage.ErrNotFound)
	}
	if err != nil {
		return types.Student{}, fmt.Errorf("GetStudentByEmail: scan: %w", err)
	}
	return student, nil
}

// ListStudents returns one page of live students plus the live total.
func (s *SQLite) ListStudents(ctx context.Context, limit, offset int) ([]types.Student, int64, error) {
	var total int64
	err := s.Db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM students WHERE deleted_at IS NULL").Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListStudents: count: %w", err)
	}

	// SQLite reads a negative OFFSET as 0, which would repeat page one.
	if offset < 0 {
		return make([]types.Student, 0), total, nil
	}

	students, err := s.queryStudents(ctx, "ListStudents",
		"SELECT "+studentColumns+" FROM students WHERE deleted_at IS NULL ORDER BY id LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return students, total, nil
}

// SearchStudents matches name exactly OR email after lowercasing it.
func (s *SQLite) SearchStudents(ctx context.Context, name, email string) ([]types.Student, error) {
	var (
		clauses []string
		args    []any
	)
	if name != "" {
		clauses = append(clauses, "name = ?")
		args = append(args, name)
	}
	if email != "" {
		clauses = append(clauses, "email = ?")
		args = append(args, types.NormalizeEmail(email))
	}

	query := "SELECT " + studentColumns + " FROM students WHERE deleted_at IS NULL"
	if len(clauses) > 0 {
		query += " AND (" + strings.Join(clauses, " OR ") + ")"
	}
	query += " ORDER BY id"

	return s.queryStudents(ctx, "SearchStudents", query, args...)
}

// UpdateStudent overwrites the mutable columns of a live student and
// re-fetches it so the caller gets exactly what is stored.
func (s *SQLite) UpdateStudent(ctx context.Context, student types.Student) (types.Student, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		`UPDATE students
		    SET name = ?, email = ?, address = ?, study_course = ?, updated_at = ?
		  WHERE id = ? AND deleted_at IS NULL`,
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("UpdateStudent: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx,
		student.Name,
		types.NormalizeEmail(student.Email),
		student.Address,
		student.StudyCourse,
		time.Now().UTC(),
		student.ID,
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("UpdateStudent: %w", classify(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return types.Student{}, fmt.Errorf("UpdateStudent: rows affected: %w", err)
	}
	if affected == 0 {
		return types.Student{}, fmt.Errorf("no student found with id %d: %w", student.ID, storage.ErrNotFound)
	}

	return s.GetStudentByID(ctx, student.ID)
}

// DeleteStudentByID soft-deletes a student row by primary key.
func (s *SQLite) DeleteStudentByID(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	result, err := s.Db.ExecContext(ctx,
		"UPDATE students SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
		now, now, id)
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: exec: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

// DeleteStudentsByEmail soft-deletes every live row holding email.
func (s *SQLite) DeleteStudentsByEmail(ctx context.Context, email string) (int64, error) {
	now := time.Now().UTC()
	result, err := s.Db.ExecContext(ctx,
		"UPDATE students SET deleted_at = ?, updated_at = ? WHERE email = ? AND deleted_at IS NULL",
		now, now, email)
	if err != nil {
		return 0, fmt.Errorf("DeleteStudentsByEmail: exec: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteStudentsByEmail: rows affected: %w", err)
	}
	return affected, nil
}

// CreateUser inserts an account row. The caller supplies the password hash.
func (s *SQLite) CreateUser(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.Email = types.NormalizeEmail(user.Email)

	result, err := s.Db.ExecContext(ctx,
		"INSERT INTO users (name, email, password, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		user.Name, user.Email, user.PasswordHash, now, now)
	if err != nil {
		return types.User{}, fmt.Errorf("CreateUser: %w", classify(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return types.User{}, fmt.Errorf("CreateUser: last insert id: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return user, nil
}

// GetUserByEmail fetches an account by exact email.
func (s *SQLite) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	var user types.User
	err := s.Db.QueryRowContext(ctx,
		"SELECT id, name, email, password, created_at, updated_at FROM users WHERE email = ? LIMIT 1",
		email,
	).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.User{}, fmt.Errorf("no user found with email %q: %w", email, storage.ErrNotFound)
	}
	if err != nil {
		return types.User{}, fmt.Errorf("GetUserByEmail: scan: %w", err)
	}
	return user, nil
}
