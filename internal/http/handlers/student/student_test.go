package student

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/aanand-mishra/student-records-api/internal/config"
	"github.com/aanand-mishra/student-records-api/internal/http/middleware"
	"github.com/aanand-mishra/student-records-api/internal/importer"
	"github.com/aanand-mishra/student-records-api/internal/storage"
	"github.com/aanand-mishra/student-records-api/internal/storage/memory"
	"github.com/aanand-mishra/student-records-api/internal/storage/sqlite"
	"github.com/aanand-mishra/student-records-api/internal/types"
)

// newServer mounts the student handlers on a bare mux, without auth.
func newServer(t *testing.T) (*memory.Memory, http.Handler) {
	t.Helper()
	store := memory.New()
	pagination := config.Pagination{DefaultPerPage: 2, MaxPerPage: 3}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /students", GetList(store, pagination))
	mux.HandleFunc("POST /students", New(store))
	mux.HandleFunc("GET /students/search", Search(store))
	mux.HandleFunc("POST /students/import", Import(importer.New(store), 1<<20))
	mux.HandleFunc("GET /students/{id}", GetByID(store))
	mux.HandleFunc("PUT /students/{id}", Update(store))
	mux.HandleFunc("PATCH /students/{id}", Update(store))
	mux.HandleFunc("DELETE /students/{id}", Delete(store))
	mux.HandleFunc("DELETE /students", Delete(store))
	return store, mux
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func seed(t *testing.T, store storage.StudentStorage, students ...types.Student) []types.Student {
	t.Helper()
	out := make([]types.Student, 0, len(students))
	for _, s := range students {
		created, err := store.CreateStudent(context.Background(), s)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func student(name, email string) types.Student {
	return types.Student{Name: name, Email: email, Address: name + " Street", StudyCourse: "CS"}
}

func TestNew(t *testing.T) {
	_, srv := newServer(t)

	w := do(srv, http.MethodPost, "/students",
		`{"name":"Ann","email":"ANN@X.com","address":"1 Rd","study_course":"CS"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var got types.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, "ann@x.com", got.Email)
	assert.Equal(t, "CS", got.StudyCourse)
	assert.NotContains(t, w.Body.String(), "deleted_at")

	w = do(srv, http.MethodPost, "/students",
		`{"name":"Ann 2","email":"ann@x.com","address":"2 Rd","study_course":"CS"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "field email has already been taken")

	w = do(srv, http.MethodPost, "/students", `{"name":"Bob","email":"bob@x.com"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"The given data was invalid.","errors":[
		"field address is required",
		"field study_course is required"]}`, w.Body.String())

	w = do(srv, http.MethodPost, "/students", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetByID(t *testing.T) {
	store, srv := newServer(t)
	seeded := seed(t, store, student("Ann", "ann@x.com"))

	w := do(srv, http.MethodGet, "/students/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got types.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, seeded[0].Email, got.Email)

	w = do(srv, http.MethodGet, "/students/99", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `null`, w.Body.String())

	w = do(srv, http.MethodGet, "/students/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetList_Paginates(t *testing.T) {
	store, srv := newServer(t)
	seed(t, store,
		student("Ann", "ann@x.com"),
		student("Bob", "bob@x.com"),
		student("Cid", "cid@x.com"),
		student("Dan", "dan@x.com"),
	)

	w := do(srv, http.MethodGet, "/students", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"data": [{"name":"Ann","address":"Ann Street"},{"name":"Bob","address":"Bob Street"}],
		"meta": {"current_page":1,"per_page":2,"total":4,"last_page":2}
	}`, w.Body.String())

	w = do(srv, http.MethodGet, "/students?page=2&per_page=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"data": [{"name":"Dan","address":"Dan Street"}],
		"meta": {"current_page":2,"per_page":3,"total":4,"last_page":2}
	}`, w.Body.String())

	// per_page is clamped, bad values fall back to defaults.
	var page types.Page[types.StudentSummary]
	w = do(srv, http.MethodGet, "/students?per_page=500&page=-1", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Meta.PerPage)
	assert.Equal(t, 1, page.Meta.CurrentPage)
	assert.Len(t, page.Data, 3)

	w = do(srv, http.MethodGet, "/students?page=9", "")
	assert.JSONEq(t, `{"data":[],"meta":{"current_page":9,"per_page":2,"total":4,"last_page":2}}`, w.Body.String())
}

func TestGetList_HugePageIsEmpty(t *testing.T) {
	db, err := sqlite.New(&config.Config{StoragePath: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stores := map[string]storage.StudentStorage{
		"memory": memory.New(),
		"sqlite": db,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			seed(t, store, student("Ann", "ann@x.com"), student("Bob", "bob@x.com"))
			list := GetList(store, config.Pagination{DefaultPerPage: 2, MaxPerPage: 3})

			target := fmt.Sprintf("/students?page=%d", math.MaxInt)
			w := httptest.NewRecorder()
			list(w, httptest.NewRequest(http.MethodGet, target, nil))
			require.Equal(t, http.StatusOK, w.Code)

			var page types.Page[types.StudentSummary]
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
			assert.Empty(t, page.Data)
			assert.Equal(t, int64(2), page.Meta.Total)
			assert.Equal(t, math.MaxInt/2, page.Meta.CurrentPage)
		})
	}
}

func TestUpdate(t *testing.T) {
	store, srv := newServer(t)
	seed(t, store, student("Ann", "ann@x.com"), student("Bob", "bob@x.com"))

	w := do(srv, http.MethodPatch, "/students/1", `{"name":"Annie","email":"ANNIE@x.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var got types.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Annie", got.Name)
	assert.Equal(t, "annie@x.com", got.Email)
	assert.Equal(t, "Ann Street", got.Address)

	w = do(srv, http.MethodPut, "/students/1", `{"email":"bob@x.com"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(srv, http.MethodPut, "/students/1", `{"name":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(srv, http.MethodPut, "/students/1", `{"email":"nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(srv, http.MethodPut, "/students/42", `{"name":"Ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"Student not found"}`, w.Body.String())

	w = do(srv, http.MethodPut, "/students/x", `{"name":"Ghost"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDelete(t *testing.T) {
	store, srv := newServer(t)
	seed(t, store, student("Ann", "ann@x.com"), student("Bob", "bob@x.com"))

	w := do(srv, http.MethodDelete, "/students/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = do(srv, http.MethodDelete, "/students/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(srv, http.MethodGet, "/students/1", "")
	assert.JSONEq(t, `null`, w.Body.String())

	w = do(srv, http.MethodDelete, "/students?email=BOB@x.com", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success","message":"1 student(s) deleted","deleted":1}`, w.Body.String())

	w = do(srv, http.MethodDelete, "/students?email=bob@x.com", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(srv, http.MethodDelete, "/students", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, total, err := store.ListStudents(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSearch(t *testing.T) {
	store, srv := newServer(t)
	seed(t, store, student("Ann", "ann@x.com"), student("Bob", "bob@x.com"), student("Cid", "cid@x.com"))

	names := func(w *httptest.ResponseRecorder) []string {
		t.Helper()
		require.Equal(t, http.StatusOK, w.Code)
		var got []types.Student
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		out := make([]string, 0, len(got))
		for _, s := range got {
			out = append(out, s.Name)
		}
		return out
	}

	assert.Equal(t, []string{"Ann"}, names(do(srv, http.MethodGet, "/students/search?name=Ann", "")))
	assert.Equal(t, []string{"Bob"}, names(do(srv, http.MethodGet, "/students/search?email=BOB@X.COM", "")))
	assert.Equal(t, []string{"Ann", "Cid"}, names(do(srv, http.MethodGet, "/students/search?name=Ann&email=cid@x.com", "")))
	assert.Empty(t, names(do(srv, http.MethodGet, "/students/search?name=ann", "")))
	assert.Len(t, names(do(srv, http.MethodGet, "/students/search", "")), 3)
}

func upload(t *testing.T, h http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/students/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestImport_CSV(t *testing.T) {
	store, srv := newServer(t)

	csv := "Action,Name,Email,Address,Study Course\n" +
		"create,Ann,ANN@X.com,1 Rd,CS\n" +
		"create,Bob,bob@x.com,2 Rd,Math\n" +
		"update,Ann Updated,ann@x.com,9 Rd,Physics\n" +
		"delete,,bob@x.com,,\n" +
		"archive,Cid,cid@x.com,3 Rd,CS\n"

	w := upload(t, srv, "students.csv", []byte(csv))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"status":"success","message":"Students imported successfully","processed":4,"skipped":1}`, w.Body.String())

	ann, err := store.GetStudentByEmail(context.Background(), "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Ann Updated", ann.Name)
	assert.Equal(t, "Physics", ann.StudyCourse)

	_, err = store.GetStudentByEmail(context.Background(), "bob@x.com")
	assert.Error(t, err)
	_, err = store.GetStudentByEmail(context.Background(), "cid@x.com")
	assert.Error(t, err)
}

func TestImport_UpdateMatchesStoredEmailExactly(t *testing.T) {
	store, srv := newServer(t)

	csv := "action,name,email,address,study_course\n" +
		"create,Ann,ANN@X.com,1 Rd,CS\n" +
		"update,Changed,ANN@X.com,9 Rd,Physics\n"

	w := upload(t, srv, "students.csv", []byte(csv))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	ann, err := store.GetStudentByEmail(context.Background(), "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Ann", ann.Name)
}

func TestImport_FailedRowsKeepTheRest(t *testing.T) {
	store, srv := newServer(t)

	csv := "action,name,email,address,study_course\n" +
		"create,Ann,ann@x.com,1 Rd,CS\n" +
		"create,Ann Again,ann@x.com,2 Rd,CS\n" +
		"create,,cid@x.com,3 Rd,CS\n" +
		"create,Dan,dan@x.com,4 Rd,CS\n"

	w := upload(t, srv, "students.csv", []byte(csv))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"Some rows could not be imported","errors":[
		"row 3: the email has already been taken",
		"row 4: required field is missing"]}`, w.Body.String())

	_, total, err := store.ListStudents(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestImport_XLSX(t *testing.T) {
	store, srv := newServer(t)

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"action", "name", "email", "address", "study_course"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"create", "Ann", "Ann@X.com", "1 Rd", "CS"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	w := upload(t, srv, "students.xlsx", buf.Bytes())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, err = store.GetStudentByEmail(context.Background(), "ann@x.com")
	assert.NoError(t, err)
}

func TestImport_RejectsBadUploads(t *testing.T) {
	_, srv := newServer(t)

	tests := []struct {
		name     string
		filename string
		content  string
		want     string
	}{
		{"no file", "", "", "field file is required"},
		{"wrong extension", "students.pdf", "action\ncreate\n", importer.ErrUnsupportedFormat.Error()},
		{"empty file", "students.csv", "", importer.ErrEmptyFile.Error()},
		{"no action column", "students.csv", "name,email\nAnn,ann@x.com\n", importer.ErrMissingActionColumn.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := upload(t, srv, tt.filename, []byte(tt.content))
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}

	w := do(srv, http.MethodPost, "/students/import", `{"file":"students.csv"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestImport_RejectsOversizedUpload(t *testing.T) {
	small := Import(importer.New(memory.New()), 100)

	csv := "action,name,email,address,study_course\n" +
		strings.Repeat("create,Ann,ann@x.com,1 Rd,CS\n", 40)

	w := upload(t, small, "students.csv", []byte(csv))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"The file may not be greater than 100 bytes"}`, w.Body.String())
}

func TestImport_DeletedEmailStaysReserved(t *testing.T) {
	store, srv := newServer(t)

	csv := "action,name,email,address,study_course\n" +
		"create,Ann,ann@x.com,1 Rd,CS\n" +
		"delete,,ann@x.com,,\n" +
		"create,Ann Again,ann@x.com,2 Rd,CS\n"

	w := upload(t, srv, "students.csv", []byte(csv))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"Some rows could not be imported","errors":[
		"row 4: the email has already been taken"]}`, w.Body.String())

	_, total, err := store.ListStudents(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

type staticVerifier int64

func (v staticVerifier) Verify(token string) (int64, error) {
	if token == "" {
		return 0, errors.New("empty token")
	}
	return int64(v), nil
}

func TestHandlersLogAuthenticatedUser(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))

	h := middleware.Authenticate(staticVerifier(7))(Search(memory.New()))
	req := httptest.NewRequest(http.MethodGet, "/students/search?name=Ann", nil)
	req.Header.Set("Authorization", "Bearer any")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, buf.String(), `msg="searching students"`)
	assert.Contains(t, buf.String(), "user_id=7")
}
