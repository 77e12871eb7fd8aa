// Package memory is an in-process implementation of storage.Storage.
//
// It mirrors the sqlite backend's observable behaviour (soft delete,
// table-wide unique email, empty-string-as-missing) and is used by handler
// and importer tests, and when storage_driver is "memory".
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aanand-mishra/student-records-api/internal/storage"
	"github.com/aanand-mishra/student-records-api/internal/types"
)

// Memory keeps rows in id order. All methods are safe for concurrent use.
type Memory struct {
	mu sync.RWMutex

	students      []types.Student
	users         []types.User
	nextStudentID int64
	nextUserID    int64

	// now is replaceable in tests.
	now func() time.Time
}

var _ storage.Storage = (*Memory)(nil)

// New returns an empty store.
func New() *Memory {
	return &Memory{
		nextStudentID: 1,
		nextUserID:    1,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func checkStudent(s types.Student) error {
	for _, v := range []string{s.Name, s.Email, s.Address, s.StudyCourse} {
		if v == "" {
			return storage.ErrMissingField
		}
	}
	return nil
}

// emailTaken reports whether any row other than exceptID holds email,
// soft-deleted rows included.
func (m *Memory) emailTaken(email string, exceptID int64) bool {
	for _, s := range m.students {
		if s.ID != exceptID && s.Email == email {
			return true
		}
	}
	return false
}

func (m *Memory) CreateStudent(_ context.Context, student types.Student) (types.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	student.Email = types.NormalizeEmail(student.Email)
	if err := checkStudent(student); err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: %w", err)
	}
	if m.emailTaken(student.Email, 0) {
		return types.Student{}, fmt.Errorf("CreateStudent: %w", storage.ErrDuplicateEmail)
	}

	now := m.now()
	student.ID = m.nextStudentID
	student.CreatedAt = now
	student.UpdatedAt = now
	student.DeletedAt = nil
	m.nextStudentID++

	m.students = append(m.students, student)
	return student, nil
}

func (m *Memory) GetStudentByID(_ context.Context, id int64) (types.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.students {
		if s.ID == id && s.DeletedAt == nil {
			return s, nil
		}
	}
	return types.Student{}, fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
}

func (m *Memory) GetStudentByEmail(_ context.Context, email string) (types.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.students {
		if s.Email == email && s.DeletedAt == nil {
			return s, nil
		}
	}
	return types.Student{}, fmt.Errorf("no student found with email %q: %w", email, storage.ErrNotFound)
}

func (m *Memory) live() []types.Student {
	out := make([]types.Student, 0, len(m.students))
	for _, s := range m.students {
		if s.DeletedAt == nil {
			out = append(out, s)
		}
	}
	return out
}

func (m *Memory) ListStudents(_ context.Context, limit, offset int) ([]types.Student, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	live := m.live()
	total := int64(len(live))

	if offset < 0 || offset >= len(live) {
		return make([]types.Student, 0), total, nil
	}
	end := len(live)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return live[offset:end], total, nil
}

func (m *Memory) SearchStudents(_ context.Context, name, email string) ([]types.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	email = types.NormalizeEmail(email)
	out := make([]types.Student, 0)
	for _, s := range m.live() {
		switch {
		case name == "" && email == "":
			out = append(out, s)
		case name != "" && s.Name == name:
			out = append(out, s)
		case email != "" && s.Email == email:
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) UpdateStudent(_ context.Context, student types.Student) (types.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	student.Email = types.NormalizeEmail(student.Email)
	for i, s := range m.students {
		if s.ID != student.ID || s.DeletedAt != nil {
			continue
		}
		if err := checkStudent(student); err != nil {
			return types.Student{}, fmt.Errorf("UpdateStudent: %w", err)
		}
		if m.emailTaken(student.Email, s.ID) {
			return types.Student{}, fmt.Errorf("UpdateStudent: %w", storage.ErrDuplicateEmail)
		}

		s.Name = student.Name
		s.Email = student.Email
		s.Address = student.Address
		s.StudyCourse = student.StudyCourse
		s.UpdatedAt = m.now()
		m.students[i] = s
		return s, nil
	}
	return types.Student{}, fmt.Errorf("no student found with id %d: %w", student.ID, storage.ErrNotFound)
}

func (m *Memory) DeleteStudentByID(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.students {
		if s.ID == id && s.DeletedAt == nil {
			now := m.now()
			m.students[i].DeletedAt = &now
			m.students[i].UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
}

func (m *Memory) DeleteStudentsByEmail(_ context.Context, email string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected int64
	now := m.now()
	for i, s := range m.students {
		if s.Email == email && s.DeletedAt == nil {
			deletedAt := now
			m.students[i].DeletedAt = &deletedAt
			m.students[i].UpdatedAt = now
			affected++
		}
	}
	return affected, nil
}

func (m *Memory) CreateUser(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user.Email = types.NormalizeEmail(user.Email)
	if user.Name == "" || user.Email == "" {
		return types.User{}, fmt.Errorf("CreateUser: %w", storage.ErrMissingField)
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return types.User{}, fmt.Errorf("CreateUser: %w", storage.ErrDuplicateEmail)
		}
	}

	now := m.now()
	user.ID = m.nextUserID
	user.CreatedAt = now
	user.UpdatedAt = now
	m.nextUserID++

	m.users = append(m.users, user)
	return user, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, fmt.Errorf("no user found with email %q: %w", email, storage.ErrNotFound)
}
