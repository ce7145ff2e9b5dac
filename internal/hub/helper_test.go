package hub_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mouneyrac/moodle-local-hub/internal/auth"
	"github.com/mouneyrac/moodle-local-hub/internal/hub"
	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/quota"
	"github.com/mouneyrac/moodle-local-hub/internal/store"
	"github.com/mouneyrac/moodle-local-hub/internal/store/memory"
)

func int64Ptr(v int64) *int64 { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHub(st store.Store, defaultMax *int64) *hub.Hub {
	limiter := &quota.Limiter{DefaultMax: defaultMax}
	info := hub.InfoConfig{
		Name:         "Test Hub",
		Description:  "A hub for tests",
		ContactName:  "Hub Admin",
		ContactEmail: "admin@hub.example.org",
		Privacy:      model.SitePrivacyPublished,
		Language:     "en",
		URL:          "https://hub.example.org",
	}
	return hub.New(st, limiter, hub.LocalCredentials{}, info, discardLogger())
}

func validSite(url string) *model.Site {
	return &model.Site{
		Name:         "Example Moodle",
		Description:  "An example installation",
		ContactName:  "Site Admin",
		ContactEmail: "admin@moodle.example.org",
		Privacy:      model.SitePrivacyPublished,
		Language:     "en",
		URL:          url,
	}
}

func validSubmission(siteCourseID int64) hub.CourseSubmission {
	return hub.CourseSubmission{Course: model.Course{
		SiteCourseID:   siteCourseID,
		FullName:       "Introduction to Testing",
		ShortName:      "test101",
		Description:    "Learn to test",
		Language:       "en",
		PublisherName:  "Site Admin",
		PublisherEmail: "admin@moodle.example.org",
		Enrollable:     true,
		Downloadable:   true,
		Privacy:        model.CoursePrivacyPublic,
	}}
}

// registeredCaller seeds a site with a bound token and returns the caller
// the auth middleware would produce for it.
func registeredCaller(t *testing.T, st *memory.Store, url string) auth.Caller {
	t.Helper()
	ctx := context.Background()

	seed := validSite(url)
	seed.Visible = true
	seed.Active = true
	site, err := st.UpsertSite(ctx, seed)
	require.NoError(t, err)
	comm := &model.Communication{Token: "token-" + url, SiteID: site.ID, RemoteURL: url}
	require.NoError(t, st.UpsertCommunication(ctx, comm))

	return auth.Caller{Token: comm.Token, Communication: comm, Site: site}
}

// provisionedCaller returns a caller holding a token that is bound to a
// remote URL but not yet to a site, the state before first registration.
func provisionedCaller(t *testing.T, st *memory.Store, url string) auth.Caller {
	t.Helper()

	comm := &model.Communication{Token: "fresh-" + url, RemoteURL: url}
	require.NoError(t, st.UpsertCommunication(context.Background(), comm))
	return auth.Caller{Token: comm.Token, Communication: comm}
}
