// Package router wires every route of the API onto one http.ServeMux.
//
// Route table:
//
//	POST   /register              → create an account, returns a token
//	POST   /login                 → exchange credentials for a token
//
//	(everything below needs "Authorization: Bearer <token>")
//	GET    /students              → paginated list (name, address)
//	POST   /students              → create a student
//	GET    /students/search       → search by name and/or email
//	POST   /students/import       → bulk import a .csv/.xlsx sheet
//	GET    /students/{id}         → one student
//	PUT    /students/{id}         → update a student
//	PATCH  /students/{id}         → update a student
//	DELETE /students/{id}         → soft-delete one student
//	DELETE /students?email=...    → soft-delete every student with that email
//
// "GET /students/search" is more specific than "GET /students/{id}", so
// ServeMux always prefers it for that literal path.
package router

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aanand-mishra/student-records-api/internal/config"
	"github.com/aanand-mishra/student-records-api/internal/http/handlers/account"
	"github.com/aanand-mishra/student-records-api/internal/http/handlers/student"
	"github.com/aanand-mishra/student-records-api/internal/http/middleware"
	"github.com/aanand-mishra/student-records-api/internal/importer"
	"github.com/aanand-mishra/student-records-api/internal/storage"
)

// Tokens both mints and checks bearer tokens.
type Tokens interface {
	account.TokenIssuer
	middleware.TokenVerifier
}

// Deps is everything the handlers need.
type Deps struct {
	Store    storage.Storage
	Tokens   Tokens
	Importer *importer.Importer
	Config   *config.Config
}

// New returns the fully wrapped application handler.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /register", account.Register(d.Store, d.Tokens))
	mux.HandleFunc("POST /login", account.Login(d.Store, d.Tokens))

	protect := middleware.Authenticate(d.Tokens)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protect(h))
	}

	handle("GET /students", student.GetList(d.Store, d.Config.Pagination))
	handle("POST /students", student.New(d.Store))
	handle("GET /students/search", student.Search(d.Store))
	handle("POST /students/import", student.Import(d.Importer, d.Config.MaxUploadBytes))
	handle("GET /students/{id}", student.GetByID(d.Store))
	handle("PUT /students/{id}", student.Update(d.Store))
	handle("PATCH /students/{id}", student.Update(d.Store))
	handle("DELETE /students/{id}", student.Delete(d.Store))
	handle("DELETE /students", student.Delete(d.Store))

	// Outermost first: request id, client ip, access log, panic recovery.
	return chimw.RequestID(
		chimw.RealIP(
			middleware.RequestLogger(
				chimw.Recoverer(mux),
			),
		),
	)
}
