package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/abroad-advisor/internal/domain"
	"github.com/ashureev/abroad-advisor/internal/identity"
)

const testUser = "anon_0123456789abcdef0123456789abcdef"

func newProfileRouter(repo *fakeRepo) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(identity.WithIdentity(req.Context(), testUser, "tab-1")))
		})
	})
	NewProfileHandler(NewHandler(repo, nil)).RegisterRoutes(r)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetProfileEmpty(t *testing.T) {
	rec := do(newProfileRouter(newFakeRepo()), http.MethodGet, "/api/profile", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var p domain.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, testUser, p.UserID)
	assert.True(t, p.IsEmpty())
}

func TestPutProfile(t *testing.T) {
	repo := newFakeRepo()
	h := newProfileRouter(repo)

	rec := do(h, http.MethodPut, "/api/profile", `{
		"name": " Lin ",
		"gpa": 3.6,
		"test_scores": {"toefl": "110"},
		"target_countries": ["US"],
		"target_degree": "MS"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	saved, err := repo.GetProfile(context.Background(), testUser)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "Lin", saved.Name)
	assert.InDelta(t, 3.6, *saved.GPA, 1e-9)
	assert.Equal(t, "110", saved.TestScores["toefl"])

	rec = do(h, http.MethodGet, "/api/profile", "")
	var p domain.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, []string{"US"}, p.TargetCountries)
}

func TestPutProfileValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"not json", `{`, http.StatusBadRequest},
		{"gpa above default scale", `{"gpa": 4.5}`, http.StatusBadRequest},
		{"gpa above custom scale", `{"gpa": 101, "gpa_scale": 100}`, http.StatusBadRequest},
		{"negative scale", `{"gpa_scale": -1}`, http.StatusBadRequest},
		{"gpa on custom scale", `{"gpa": 88, "gpa_scale": 100}`, http.StatusOK},
		{"too large", `{"notes": "` + strings.Repeat("x", defaultMaxRequestBodySize) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newProfileRouter(newFakeRepo()), http.MethodPut, "/api/profile", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestDeleteProfile(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.UpsertProfile(context.Background(), &domain.Profile{UserID: testUser, Name: "Lin"}))

	rec := do(newProfileRouter(repo), http.MethodDelete, "/api/profile", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	p, err := repo.GetProfile(context.Background(), testUser)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestGetMe(t *testing.T) {
	repo := newFakeRepo()
	h := newProfileRouter(repo)

	rec := do(h, http.MethodGet, "/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	now := time.Now()
	require.NoError(t, repo.UpsertUser(context.Background(), &domain.User{
		UserID: testUser, Username: "applicant-abcdef", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}))
	rec = do(h, http.MethodGet, "/api/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"`+testUser+`","username":"applicant-abcdef","session_id":"tab-1"}`, rec.Body.String())
}
