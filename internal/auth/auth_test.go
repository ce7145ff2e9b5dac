package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouneyrac/moodle-local-hub/internal/auth"
	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/store/memory"
)

func TestExtractToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		expect string
	}{
		{
			name:   "bearer header",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc123") },
			expect: "abc123",
		},
		{
			name:   "wstoken query parameter",
			setup:  func(r *http.Request) { r.URL.RawQuery = "wstoken=qry456" },
			expect: "qry456",
		},
		{
			name: "header wins over query",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer hdr")
				r.URL.RawQuery = "wstoken=qry"
			},
			expect: "hdr",
		},
		{
			name:   "non-bearer header ignored",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcg==") },
			expect: "",
		},
		{
			name:   "no token",
			setup:  func(_ *http.Request) {},
			expect: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/courses", nil)
			tt.setup(req)
			assert.Equal(t, tt.expect, auth.ExtractToken(req))
		})
	}
}

func TestMiddlewareResolvesRegisteredSite(t *testing.T) {
	t.Parallel()

	st := memory.New()
	site, err := st.UpsertSite(context.Background(), &model.Site{
		Name: "Example", URL: "https://moodle.example.org",
	})
	require.NoError(t, err)
	require.NoError(t, st.UpsertCommunication(context.Background(), &model.Communication{
		Token: "valid-token", SiteID: site.ID, RemoteURL: site.URL,
	}))

	var captured auth.Caller
	handler := auth.Middleware(st)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = auth.CallerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, captured.Resolved())
	require.True(t, captured.Registered())
	assert.Equal(t, site.ID, captured.Site.ID)
	assert.Equal(t, "valid-token", captured.Token)
}

func TestMiddlewareUnknownTokenIsUnresolved(t *testing.T) {
	t.Parallel()

	var captured auth.Caller
	handler := auth.Middleware(memory.New())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = auth.CallerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/courses?wstoken=nope", nil)
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "nope", captured.Token)
	assert.False(t, captured.Resolved())
	assert.False(t, captured.Registered())
}

// brokenResolver fails every lookup, as a store outage would.
type brokenResolver struct{ err error }

func (b brokenResolver) ResolveCommunication(context.Context, string) (*model.Communication, error) {
	return nil, b.err
}

func (b brokenResolver) FindSiteByURL(context.Context, string) (*model.Site, error) {
	return nil, b.err
}

func TestMiddlewareResolverFailureWritesErrorEnvelope(t *testing.T) {
	t.Parallel()

	handler := auth.Middleware(brokenResolver{err: errors.New("connection refused")})(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run when resolution fails")
		}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error": "failed to resolve caller", "code": "internal"}`, rec.Body.String())
}

func TestMiddlewareNoTokenIsPublic(t *testing.T) {
	t.Parallel()

	var captured auth.Caller
	handler := auth.Middleware(memory.New())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = auth.CallerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses", nil))

	assert.Equal(t, auth.Caller{}, captured)
}

func TestOwnsCourse(t *testing.T) {
	t.Parallel()

	caller := auth.Caller{Site: &model.Site{ID: 3}}
	assert.True(t, caller.OwnsCourse(&model.Course{SiteID: 3}))
	assert.False(t, caller.OwnsCourse(&model.Course{SiteID: 4}))
	assert.False(t, auth.Caller{}.OwnsCourse(&model.Course{SiteID: 3}))
}
