package account

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/student-records-api/internal/storage/memory"
)

type fakeIssuer struct{}

func (fakeIssuer) Issue(userID int64) (string, error) {
	return fmt.Sprintf("token-%d", userID), nil
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestRegister(t *testing.T) {
	store := memory.New()
	register := Register(store, fakeIssuer{})

	w := post(register, "/register", `{"name":"Ann","email":"ANN@Example.com","password":"secret"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "token-1", resp.Token)
	assert.Equal(t, "ann@example.com", resp.User.Email)
	assert.NotContains(t, w.Body.String(), "secret")
	assert.NotContains(t, w.Body.String(), "password")

	// Same address in another case is still taken.
	w = post(register, "/register", `{"name":"Ann","email":"ann@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"The given data was invalid.","errors":["field email has already been taken"]}`, w.Body.String())
}

func TestRegister_RejectsBadInput(t *testing.T) {
	register := Register(memory.New(), fakeIssuer{})

	w := post(register, "/register", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(register, "/register", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(register, "/register", `{"name":"","email":"not-an-email","password":"x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"The given data was invalid.","errors":[
		"field name is required",
		"field email must be a valid email address"]}`, w.Body.String())

	w = post(register, "/register",
		`{"name":"Ann","email":"ann@x.com","password":"`+strings.Repeat("p", 73)+`"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestLogin(t *testing.T) {
	store := memory.New()
	w := post(Register(store, fakeIssuer{}), "/register", `{"name":"Ann","email":"ann@x.com","password":"secret"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	login := Login(store, fakeIssuer{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"correct credentials", `{"email":"ann@x.com","password":"secret"}`, http.StatusOK},
		{"email in another case", `{"email":"ANN@X.COM","password":"secret"}`, http.StatusOK},
		{"wrong password", `{"email":"ann@x.com","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"email":"bob@x.com","password":"secret"}`, http.StatusUnauthorized},
		{"missing password", `{"email":"ann@x.com"}`, http.StatusUnprocessableEntity},
		{"empty body", ``, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(login, "/login", tt.body)
			assert.Equal(t, tt.want, w.Code)

			switch tt.want {
			case http.StatusOK:
				var resp AuthResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "token-1", resp.Token)
				assert.Equal(t, "User logged in successfully", resp.Message)
			case http.StatusUnauthorized:
				assert.JSONEq(t, `{"status":"error","message":"Invalid credentials"}`, w.Body.String())
			}
		})
	}
}
