package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"gitlab.ozon.dev/qwestard/laundry/internal/audit"
	"gitlab.ozon.dev/qwestard/laundry/internal/models"
)

type staticResolver struct {
	user  models.User
	token string
}

func (r staticResolver) Resolve(id, token string) (models.User, error) {
	if id != r.user.ID || token != r.token {
		return models.User{}, errors.New("unknown")
	}
	return r.user, nil
}

type recordingAuditor struct {
	logs []audit.AuditLog
}

func (a *recordingAuditor) Log(r audit.AuditLog) { a.logs = append(a.logs, r) }

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(u.ID))
	})
}

func TestAuthMiddleware(t *testing.T) {
	resolver := staticResolver{user: models.User{ID: "u1"}, token: "t1"}
	h := AuthMiddleware(resolver, http.MethodPost)(echoUser())

	req := httptest.NewRequest(http.MethodPost, "/requests", nil)
	req.SetBasicAuth("u1", "t1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/requests", nil)
	req.SetBasicAuth("u1", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req = httptest.NewRequest(http.MethodPost, "/requests", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code, "other methods pass through")
}

func TestLogMiddleware(t *testing.T) {
	a := &recordingAuditor{}
	h := LogMiddleware(a, http.MethodPost)(echoUser())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/requests", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/requests", nil))

	if assert.Len(t, a.logs, 1) {
		assert.Equal(t, "/requests", a.logs[0].Endpoint)
		assert.Equal(t, "POST /requests", a.logs[0].Request)
	}
}

func TestMethodInList(t *testing.T) {
	assert.True(t, methodInList("PUT", []string{"POST", "PUT"}))
	assert.False(t, methodInList("GET", nil))
}
