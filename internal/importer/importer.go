// Package importer applies spreadsheet rows to the student store.
//
// Each row carries an action column. The row is classified into a closed
// Action, dispatched to exactly one handler, and any failure is recorded as
// a message while the batch carries on. There is no batch transaction:
// rows that succeed stay committed even when later rows fail.
//
//	src, err := importer.NewCSVSource(file)
//	outcome, err := importer.New(store).Run(ctx, src)
//	if outcome.Failed() { ... outcome.Errors ... }
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aanand-mishra/student-records-api/internal/logger"
	"github.com/aanand-mishra/student-records-api/internal/storage"
	"github.com/aanand-mishra/student-records-api/internal/types"
)

// Action is the classified value of a row's action column.
type Action int

const (
	ActionUnknown Action = iota
	ActionCreate
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseAction trims and lowercases raw before matching. Anything that is
// not create, update or delete (including "") is ActionUnknown.
func ParseAction(raw string) Action {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "create":
		return ActionCreate
	case "update":
		return ActionUpdate
	case "delete":
		return ActionDelete
	default:
		return ActionUnknown
	}
}

// Row is one data line of an import file. Line is the 1-based line in the
// source (the heading row is line 1).
type Row struct {
	Line        int
	Action      string
	Name        string
	Email       string
	Address     string
	StudyCourse string
}

// Outcome summarises a finished batch.
type Outcome struct {
	// Processed counts rows whose handler completed without error,
	// including updates that matched nothing.
	Processed int
	// Skipped counts rows whose action was not recognised.
	Skipped int
	// Errors holds one message per failed row, in source order.
	Errors []string
}

// Failed reports whether any row failed.
func (o Outcome) Failed() bool {
	return len(o.Errors) > 0
}

// Repository is the subset of storage the importer needs.
type Repository interface {
	CreateStudent(ctx context.Context, student types.Student) (types.Student, error)
	GetStudentByEmail(ctx context.Context, email string) (types.Student, error)
	UpdateStudent(ctx context.Context, student types.Student) (types.Student, error)
	DeleteStudentsByEmail(ctx context.Context, email string) (int64, error)
}

// Source yields rows one at a time. Next returns io.EOF after the last
// row. A *RowError reports a structurally broken row; the stream remains
// usable after it. Any other error ends the stream.
type Source interface {
	Next() (Row, error)
}

// RowError is a structural problem with a single source row.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Importer runs import batches against a Repository.
type Importer struct {
	repo Repository
}

// New returns an Importer backed by repo.
func New(repo Repository) *Importer {
	return &Importer{repo: repo}
}

// Run feeds every row of src, in order, through Apply and collects the
// results. The returned error is non-nil only when src itself fails in a
// way that ends the stream; the Outcome then describes the rows handled
// before the failure.
func (im *Importer) Run(ctx context.Context, src Source) (Outcome, error) {
	log := logger.FromContext(ctx)
	outcome := Outcome{Errors: make([]string, 0)}

	for {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var rowErr *RowError
		if errors.As(err, &rowErr) {
			outcome.Errors = append(outcome.Errors, rowErr.Error())
			continue
		}
		if err != nil {
			return outcome, fmt.Errorf("read import source: %w", err)
		}

		applied, err := im.Apply(ctx, row)
		switch {
		case err != nil:
			log.Debug("import row failed",
				slog.Int("line", row.Line),
				slog.String("error", err.Error()))
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("row %d: %s", row.Line, describe(err)))
		case !applied:
			log.Debug("import row skipped",
				slog.Int("line", row.Line),
				slog.String("action", row.Action))
			outcome.Skipped++
		default:
			outcome.Processed++
		}
	}

	log.Info("import finished",
		slog.Int("processed", outcome.Processed),
		slog.Int("skipped", outcome.Skipped),
		slog.Int("failed", len(outcome.Errors)))

	return outcome, nil
}

// Apply classifies one row and runs its handler. applied is false only for
// an unrecognised action, which is skipped without an error.
func (im *Importer) Apply(ctx context.Context, row Row) (applied bool, err error) {
	switch ParseAction(row.Action) {
	case ActionCreate:
		return true, im.create(ctx, row)
	case ActionUpdate:
		return true, im.updateFirstMatch(ctx, row)
	case ActionDelete:
		return true, im.deleteAllMatches(ctx, row)
	case ActionUnknown:
		return false, nil
	}
	return false, nil
}

// create inserts a new student. No validation happens here; the store's
// constraints (required columns, unique email) decide.
func (im *Importer) create(ctx context.Context, row Row) error {
	_, err := im.repo.CreateStudent(ctx, types.Student{
		Name:        row.Name,
		Email:       types.NormalizeEmail(row.Email),
		Address:     row.Address,
		StudyCourse: row.StudyCourse,
	})
	return err
}

// updateFirstMatch overwrites name, address and study_course of the first
// student whose stored email equals row.Email exactly. No match is a no-op.
func (im *Importer) updateFirstMatch(ctx context.Context, row Row) error {
	student, err := im.repo.GetStudentByEmail(ctx, row.Email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	student.Name = row.Name
	student.Address = row.Address
	student.StudyCourse = row.StudyCourse

	_, err = im.repo.UpdateStudent(ctx, student)
	return err
}

// deleteAllMatches soft-deletes every student whose email equals
// row.Email exactly.
func (im *Importer) deleteAllMatches(ctx context.Context, row Row) error {
	_, err := im.repo.DeleteStudentsByEmail(ctx, row.Email)
	return err
}

// describe turns storage sentinels into their plain message and leaves
// everything else as is.
func describe(err error) string {
	for _, sentinel := range []error{storage.ErrDuplicateEmail, storage.ErrMissingField, storage.ErrNotFound} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
