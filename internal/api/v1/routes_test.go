package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/mouneyrac/moodle-local-hub/internal/api/v1"
	"github.com/mouneyrac/moodle-local-hub/internal/auth"
	"github.com/mouneyrac/moodle-local-hub/internal/authz"
	"github.com/mouneyrac/moodle-local-hub/internal/hub"
	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/quota"
	"github.com/mouneyrac/moodle-local-hub/internal/store/memory"
)

type fixture struct {
	store   *memory.Store
	handler http.Handler
}

func newFixture(t *testing.T, defaultMax *int64) *fixture {
	t.Helper()

	st := memory.New()
	svc := hub.New(st,
		&quota.Limiter{DefaultMax: defaultMax},
		hub.LocalCredentials{},
		hub.InfoConfig{
			Name:         "Test Hub",
			ContactEmail: "admin@hub.example.org",
			Privacy:      model.SitePrivacyPublished,
			Language:     "en",
			URL:          "https://hub.example.org",
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return &fixture{
		store:   st,
		handler: auth.Middleware(st)(v1.Router(svc, authz.DefaultChecker())),
	}
}

// seedSite registers a site with a bound token and returns the token.
func (f *fixture) seedSite(t *testing.T, url string) string {
	t.Helper()
	ctx := context.Background()

	site, err := f.store.UpsertSite(ctx, &model.Site{
		Name:         "Example",
		Description:  "Example site",
		ContactName:  "Admin",
		ContactEmail: "admin@moodle.example.org",
		Privacy:      model.SitePrivacyPublished,
		Language:     "en",
		URL:          url,
		Visible:      true,
		Active:       true,
	})
	require.NoError(t, err)

	token := "token-" + url
	require.NoError(t, f.store.UpsertCommunication(ctx, &model.Communication{
		Token: token, SiteID: site.ID, RemoteURL: url,
	}))
	return token
}

func (f *fixture) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func courseBody(siteCourseID int64) map[string]any {
	return map[string]any{
		"courses": []map[string]any{{
			"sitecourseid":   siteCourseID,
			"fullname":       "Course",
			"shortname":      "crs",
			"description":    "A course",
			"language":       "en",
			"publishername":  "Admin",
			"publisheremail": "admin@moodle.example.org",
			"enrollable":     true,
			"downloadable":   true,
			"privacy":        1,
		}},
	}
}

func TestGetInfo(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/info", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var info hub.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "Test Hub", info.Name)
}

func TestRegisterCoursesEndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	token := f.seedSite(t, "https://a.example.org")

	rec := f.do(t, http.MethodPost, "/courses", token, courseBody(1))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		CourseIDs []int64 `json:"courseids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.CourseIDs, 1)
	assert.Positive(t, resp.CourseIDs[0])
}

func TestRegisterCoursesWithoutTokenForbidden(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/courses", "", courseBody(1))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterCoursesQuotaExceeded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, int64Ptr(1))
	token := f.seedSite(t, "https://q.example.org")

	rec := f.do(t, http.MethodPost, "/courses", token, courseBody(1))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/courses", token, courseBody(2))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "quotaexceeded", body["code"])
	assert.EqualValues(t, 1, body["limit"])
}

func TestRegisterCoursesValidationError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	token := f.seedSite(t, "https://v.example.org")

	body := courseBody(1)
	body["courses"].([]map[string]any)[0]["fullname"] = ""
	rec := f.do(t, http.MethodPost, "/courses", token, body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validationerror", resp["code"])
	assert.Contains(t, resp["fields"], "courses[0].fullname")
}

func TestRegisterCoursesMalformedBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	token := f.seedSite(t, "https://m.example.org")

	req := httptest.NewRequest(http.MethodPost, "/courses", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnregisterCourses(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	token := f.seedSite(t, "https://u.example.org")

	rec := f.do(t, http.MethodPost, "/courses", token, courseBody(1))
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		CourseIDs []int64 `json:"courseids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = f.do(t, http.MethodPost, "/courses/unregister", token,
		map[string]any{"courseids": resp.CourseIDs})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	count, err := f.store.CountCourses(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetCoursesFiltersAndParams(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	token := f.seedSite(t, "https://g.example.org")

	rec := f.do(t, http.MethodPost, "/courses", token, courseBody(1))
	require.Equal(t, http.StatusCreated, rec.Code)

	restricted := courseBody(2)
	restricted["courses"].([]map[string]any)[0]["privacy"] = 0
	rec = f.do(t, http.MethodPost, "/courses", token, restricted)
	require.Equal(t, http.StatusCreated, rec.Code)

	// The public listing carries the public course, with the owner-only
	// fields redacted; the restricted course stays hidden.
	rec = f.do(t, http.MethodGet, "/courses", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Courses []hub.CourseDetail `json:"courses"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Courses, 1)
	assert.Nil(t, listing.Courses[0].SiteCourseID)

	// The publisher sees both with allsitecourses, unredacted.
	rec = f.do(t, http.MethodGet, "/courses?allsitecourses=true", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Courses, 2)
	require.NotNil(t, listing.Courses[0].SiteCourseID)

	rec = f.do(t, http.MethodGet, "/courses?enrollable=notabool", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/courses?ids=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSites(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.seedSite(t, "https://s1.example.org")
	f.seedSite(t, "https://s2.example.org")

	rec := f.do(t, http.MethodGet, "/sites", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Sites []hub.SiteSummary `json:"sites"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Len(t, listing.Sites, 2)

	rec = f.do(t, http.MethodGet, "/sites?urls=https://s1.example.org", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Len(t, listing.Sites, 1)
}

func TestUpdateSiteInfoAndUnregister(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	// Provision a token with no site yet.
	require.NoError(t, f.store.UpsertCommunication(ctx, &model.Communication{
		Token: "fresh", RemoteURL: "https://n.example.org",
	}))

	payload := map[string]any{
		"name":         "New Site",
		"description":  "Just registered",
		"contactname":  "Admin",
		"contactemail": "admin@n.example.org",
		"privacy":      "named",
		"language":     "en",
		"url":          "https://n.example.org",
	}
	rec := f.do(t, http.MethodPost, "/sites", "fresh", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var saved model.Site
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.NotZero(t, saved.ID)

	rec = f.do(t, http.MethodDelete, "/site", "fresh", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	count, err := f.store.CountSites(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpdateSiteInfoUnresolvedTokenUnauthorized(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	// Seed one registered site so "site" capabilities exist for comparison.
	f.seedSite(t, "https://x.example.org")

	rec := f.do(t, http.MethodPost, "/sites", "unknown-token", map[string]any{"name": "X"})
	// An unresolvable token only gets anonymous grants, which exclude
	// registration updates.
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func int64Ptr(v int64) *int64 { return &v }
