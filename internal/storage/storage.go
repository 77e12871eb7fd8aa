// Package storage defines the repository contracts that any database
// backend must satisfy to work with this application.
//
// Handlers and the importer depend only on these interfaces, never on a
// concrete database. Two implementations exist:
//
//   - storage/sqlite: the production backend (go-sqlite3)
//   - storage/memory: an in-process store used by tests and by
//     storage_driver: memory
//
// Both implementations MUST agree on the behaviour documented here,
// including the sentinel errors below.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/student-records-api/internal/types"
)

// Sentinel errors. Callers compare with errors.Is because implementations
// wrap them with operation context.
var (
	// ErrNotFound means no live (non-deleted) record matched.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail means the write would break the unique-email rule.
	// Soft-deleted rows still hold their email.
	ErrDuplicateEmail = errors.New("the email has already been taken")

	// ErrMissingField means a required column was empty on insert/update.
	ErrMissingField = errors.New("required field is missing")
)

// StudentStorage is the student repository.
type StudentStorage interface {
	// CreateStudent inserts a new student. Email is lowercased on write.
	// Returns the stored record with ID and timestamps populated.
	CreateStudent(ctx context.Context, student types.Student) (types.Student, error)

	// GetStudentByID fetches one live student by primary key.
	GetStudentByID(ctx context.Context, id int64) (types.Student, error)

	// GetStudentByEmail returns the FIRST live student (lowest id) whose
	// stored email equals email exactly. No case folding is applied to the
	// lookup value.
	GetStudentByEmail(ctx context.Context, email string) (types.Student, error)

	// ListStudents returns one page of live students ordered by id, plus
	// the total number of live students.
	ListStudents(ctx context.Context, limit, offset int) ([]types.Student, int64, error)

	// SearchStudents returns live students whose name equals name OR whose
	// email equals lowercase(email). Empty criteria are ignored; with both
	// empty every live student is returned.
	SearchStudents(ctx context.Context, name, email string) ([]types.Student, error)

	// UpdateStudent overwrites name, email, address and study_course of the
	// live student with student.ID and returns the stored result.
	UpdateStudent(ctx context.Context, student types.Student) (types.Student, error)

	// DeleteStudentByID soft-deletes one live student.
	DeleteStudentByID(ctx context.Context, id int64) error

	// DeleteStudentsByEmail soft-deletes EVERY live student whose email
	// equals email exactly and returns how many were affected (may be 0).
	DeleteStudentsByEmail(ctx context.Context, email string) (int64, error)
}

// UserStorage is the account repository used by registration and login.
type UserStorage interface {
	// CreateUser inserts an account. Email is lowercased on write.
	CreateUser(ctx context.Context, user types.User) (types.User, error)

	// GetUserByEmail fetches an account by exact email.
	GetUserByEmail(ctx context.Context, email string) (types.User, error)
}

// Storage is the full database contract wired in main.
type Storage interface {
	StudentStorage
	UserStorage

	Close() error
}
