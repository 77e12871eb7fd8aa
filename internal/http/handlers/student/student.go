// Package student contains all HTTP handlers related to the Student resource.
//
// HANDLER PATTERN USED HERE: THE CLOSURE / FACTORY PATTERN:
// ────────────────────────────────────────────────────────────
// Go's router expects handler functions with the signature:
//
//	func(http.ResponseWriter, *http.Request)
//
// That signature has no room for extra parameters like a database.
// Each exported function here is a factory: it accepts the dependencies
// once at startup and returns the closure that runs on every request.
//
//	router.HandleFunc("POST /students", student.New(store))
package student

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/aanand-mishra/student-records-api/internal/config"
	"github.com/aanand-mishra/student-records-api/internal/http/handlers"
	"github.com/aanand-mishra/student-records-api/internal/http/middleware"
	"github.com/aanand-mishra/student-records-api/internal/importer"
	"github.com/aanand-mishra/student-records-api/internal/logger"
	"github.com/aanand-mishra/student-records-api/internal/storage"
	"github.com/aanand-mishra/student-records-api/internal/types"
	"github.com/aanand-mishra/student-records-api/internal/utils/request"
	"github.com/aanand-mishra/student-records-api/internal/utils/response"
)

// CreateStudentRequest is the POST /students body. Every field is required.
type CreateStudentRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Email       string `json:"email" validate:"required,email,max=255"`
	Address     string `json:"address" validate:"required,max=255"`
	StudyCourse string `json:"study_course" validate:"required,max=255"`
}

// UpdateStudentRequest is the PUT/PATCH /students/{id} body. Omitted
// (null) fields keep their stored value; present fields must be non-empty.
type UpdateStudentRequest struct {
	Name        *string `json:"name" validate:"omitnil,min=1,max=255"`
	Email       *string `json:"email" validate:"omitnil,email,max=255"`
	Address     *string `json:"address" validate:"omitnil,min=1,max=255"`
	StudyCourse *string `json:"study_course" validate:"omitnil,min=1,max=255"`
}

func (u UpdateStudentRequest) apply(s *types.Student) {
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.Email != nil {
		s.Email = *u.Email
	}
	if u.Address != nil {
		s.Address = *u.Address
	}
	if u.StudyCourse != nil {
		s.StudyCourse = *u.StudyCourse
	}
}

// DeleteResponse is returned by DELETE /students?email=...
type DeleteResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Deleted int64  `json:"deleted"`
}

// ImportResponse is returned by a fully successful import.
type ImportResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
}

var errInvalidID = errors.New("invalid id: must be an integer")

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, errInvalidID
	}
	return id, nil
}

// requestLog is the request logger, tagged with the caller's user id.
func requestLog(r *http.Request) *slog.Logger {
	log := logger.FromContext(r.Context())
	if userID, ok := middleware.UserID(r.Context()); ok {
		log = log.With(slog.Int64("user_id", userID))
	}
	return log
}

// writeStoreError maps storage sentinels onto status codes.
func writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		response.WriteJSON(w, http.StatusNotFound, response.Error("Student not found"))
	case errors.Is(err, storage.ErrDuplicateEmail):
		response.WriteJSON(w, http.StatusUnprocessableEntity,
			response.Error("The given data was invalid.", "field email has already been taken"))
	case errors.Is(err, storage.ErrMissingField):
		response.WriteJSON(w, http.StatusUnprocessableEntity,
			response.Error("The given data was invalid.", err.Error()))
	default:
		handlers.Internal(w, r, op, err)
	}
}

// GetList handles GET /students?page=&per_page=
// Returns only name and address of each student, plus page metadata.
func GetList(store storage.StudentStorage, pagination config.Pagination) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		perPage := min(request.PositiveInt(r, "per_page", pagination.DefaultPerPage), pagination.MaxPerPage)
		// (page-1)*perPage must not overflow.
		page := min(request.PositiveInt(r, "page", 1), math.MaxInt/perPage)

		requestLog(r).Info("listing students",
			slog.Int("page", page), slog.Int("per_page", perPage))

		students, total, err := store.ListStudents(r.Context(), perPage, (page-1)*perPage)
		if err != nil {
			handlers.Internal(w, r, "error listing students", err)
			return
		}

		data := make([]types.StudentSummary, 0, len(students))
		for _, s := range students {
			data = append(data, s.Summary())
		}

		response.WriteJSON(w, http.StatusOK, types.Page[types.StudentSummary]{
			Data: data,
			Meta: types.NewPageMeta(page, perPage, total),
		})
	}
}

// New handles POST /students and answers 201 with the stored record.
func New(store storage.StudentStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLog(r)
		log.Info("creating a student")

		var req CreateStudentRequest
		if !handlers.Bind(w, r, &req) {
			return
		}

		created, err := store.CreateStudent(r.Context(), types.Student{
			Name:        req.Name,
			Email:       req.Email,
			Address:     req.Address,
			StudyCourse: req.StudyCourse,
		})
		if err != nil {
			writeStoreError(w, r, "error creating student", err)
			return
		}

		log.Info("student created", slog.Int64("id", created.ID))
		response.WriteJSON(w, http.StatusCreated, created)
	}
}

// GetByID handles GET /students/{id}.
// An unknown id answers 200 with a JSON null body.
func GetByID(store storage.StudentStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLog(r)
		log.Info("getting a student", slog.String("id", r.PathValue("id")))

		id, err := parseID(r)
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		student, err := store.GetStudentByID(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			response.WriteJSON(w, http.StatusOK, nil)
			return
		}
		if err != nil {
			handlers.Internal(w, r, "error getting student", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, student)
	}
}

// Update handles PUT and PATCH /students/{id}. Only the fields present in
// the body change.
func Update(store storage.StudentStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLog(r)
		log.Info("updating a student", slog.String("id", r.PathValue("id")))

		id, err := parseID(r)
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		var req UpdateStudentRequest
		if !handlers.Bind(w, r, &req) {
			return
		}

		student, err := store.GetStudentByID(r.Context(), id)
		if err != nil {
			writeStoreError(w, r, "error loading student", err)
			return
		}

		req.apply(&student)
		updated, err := store.UpdateStudent(r.Context(), student)
		if err != nil {
			writeStoreError(w, r, "error updating student", err)
			return
		}

		log.Info("student updated", slog.Int64("id", id))
		response.WriteJSON(w, http.StatusOK, updated)
	}
}

// Delete handles DELETE /students/{id} and DELETE /students?email=...
//
//	by id    → 204, or 404 when no live student has that id
//	by email → 200 with the number soft-deleted, or 404 when none matched
//	neither  → 400
func Delete(store storage.StudentStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLog(r)

		if r.PathValue("id") != "" {
			id, err := parseID(r)
			if err != nil {
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
				return
			}

			log.Info("deleting a student", slog.Int64("id", id))
			if err := store.DeleteStudentByID(r.Context(), id); err != nil {
				writeStoreError(w, r, "error deleting student", err)
				return
			}

			w.WriteHeader(http.StatusNoContent)
			return
		}

		email := r.URL.Query().Get("email")
		if email == "" {
			response.WriteJSON(w, http.StatusBadRequest,
				response.Error("An id or an email is required to delete a student"))
			return
		}

		email = types.NormalizeEmail(email)
		log.Info("deleting students by email", slog.String("email", email))

		deleted, err := store.DeleteStudentsByEmail(r.Context(), email)
		if err != nil {
			handlers.Internal(w, r, "error deleting students", err)
			return
		}
		if deleted == 0 {
			response.WriteJSON(w, http.StatusNotFound, response.Error("Student not found"))
			return
		}

		response.WriteJSON(w, http.StatusOK, DeleteResponse{
			Status:  response.StatusSuccess,
			Message: fmt.Sprintf("%d student(s) deleted", deleted),
			Deleted: deleted,
		})
	}
}

// Search handles GET /students/search?name=&email=
// Matches name exactly OR email case-insensitively; with neither parameter
// every student is returned.
func Search(store storage.StudentStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		email := r.URL.Query().Get("email")
		requestLog(r).Info("searching students",
			slog.String("name", name), slog.String("email", email))

		students, err := store.SearchStudents(r.Context(), name, email)
		if err != nil {
			handlers.Internal(w, r, "error searching students", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, students)
	}
}

// Import handles POST /students/import with a multipart "file" field
// holding a .csv or .xlsx sheet.
//
//	200  every row applied or skipped
//	422  missing/unsupported file, or one or more rows failed (rows that
//	     succeeded stay applied)
//	500  the file could not be read
func Import(im *importer.Importer, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLog(r)
		log.Info("importing students")

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.WriteJSON(w, http.StatusRequestEntityTooLarge,
					response.Error(fmt.Sprintf("The file may not be greater than %d bytes", maxBytes)))
				return
			}
			response.WriteJSON(w, http.StatusUnprocessableEntity,
				response.Error("The given data was invalid.", "field file is required"))
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			response.WriteJSON(w, http.StatusUnprocessableEntity,
				response.Error("The given data was invalid.", "field file is required"))
			return
		}
		defer file.Close()

		src, err := importer.Open(header.Filename, file)
		switch {
		case errors.Is(err, importer.ErrUnsupportedFormat),
			errors.Is(err, importer.ErrEmptyFile),
			errors.Is(err, importer.ErrMissingActionColumn):
			response.WriteJSON(w, http.StatusUnprocessableEntity,
				response.Error("The given data was invalid.", err.Error()))
			return
		case err != nil:
			handlers.Internal(w, r, "error opening import file", err)
			return
		}
		defer src.Close()

		outcome, err := im.Run(r.Context(), src)
		if err != nil {
			log.Error("import aborted",
				slog.String("file", header.Filename),
				slog.Int("processed", outcome.Processed),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError,
				response.Error("Error importing students", outcome.Errors...))
			return
		}

		if outcome.Failed() {
			response.WriteJSON(w, http.StatusUnprocessableEntity,
				response.Error("Some rows could not be imported", outcome.Errors...))
			return
		}

		response.WriteJSON(w, http.StatusOK, ImportResponse{
			Status:    response.StatusSuccess,
			Message:   "Students imported successfully",
			Processed: outcome.Processed,
			Skipped:   outcome.Skipped,
		})
	}
}
