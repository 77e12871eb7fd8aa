// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles:
// handlers, storage, the importer and utils can all import types without
// depending on each other.
package types

import (
	"strings"
	"time"
)

// Student represents a student record in our system.
//
// Email is always stored lowercase (see NormalizeEmail). DeletedAt is set
// when the record is soft-deleted; soft-deleted students are never returned
// by the storage layer, so it is only ever nil in API responses.
type Student struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Address     string     `json:"address"`
	StudyCourse string     `json:"study_course"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// StudentSummary is the reduced shape returned by the list endpoint.
type StudentSummary struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Summary returns the list-view projection of s.
func (s Student) Summary() StudentSummary {
	return StudentSummary{Name: s.Name, Address: s.Address}
}

// User is an account that can obtain bearer tokens.
//
// PasswordHash carries json:"-" so it can never leak into a response body.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PageMeta describes where a page sits in the full result set.
type PageMeta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
}

// Page is the envelope for paginated list responses.
type Page[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}

// NewPageMeta computes the page metadata for a total row count.
// LastPage is never smaller than 1, even for an empty table.
func NewPageMeta(page, perPage int, total int64) PageMeta {
	last := 1
	if perPage > 0 && total > 0 {
		last = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return PageMeta{
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		LastPage:    last,
	}
}

// NormalizeEmail case-folds an email address the way it is stored.
// It does not trim: a value with surrounding spaces is stored as given.
func NormalizeEmail(email string) string {
	return strings.ToLower(email)
}
