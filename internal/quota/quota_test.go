package quota_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/quota"
	"github.com/mouneyrac/moodle-local-hub/internal/store/memory"
)

func int64Ptr(v int64) *int64 { return &v }

func seedSite(t *testing.T, st *memory.Store, publicationMax *int64) *model.Site {
	t.Helper()
	site, err := st.UpsertSite(context.Background(), &model.Site{
		Name:           "Test Site",
		URL:            "https://moodle.example.org",
		PublicationMax: publicationMax,
	})
	require.NoError(t, err)
	return site
}

func seedCourse(t *testing.T, st *memory.Store, siteID, publishedAt int64, enrollable, downloadable bool) {
	t.Helper()
	_, err := st.InsertCourse(context.Background(), &model.Course{
		SiteID:        siteID,
		FullName:      "Course",
		ShortName:     "crs",
		Enrollable:    enrollable,
		Downloadable:  downloadable,
		TimePublished: publishedAt,
	})
	require.NoError(t, err)
}

func TestCheckUnlimitedWhenNoLimitConfigured(t *testing.T) {
	t.Parallel()

	st := memory.New()
	site := seedSite(t, st, nil)
	now := time.Now()
	for i := 0; i < 50; i++ {
		seedCourse(t, st, site.ID, now.Unix(), true, true)
	}

	limiter := &quota.Limiter{Now: func() time.Time { return now }}
	decision, err := limiter.Check(context.Background(), st, site)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.False(t, decision.Disabled)
}

func TestCheckDisabledWhenLimitZero(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		defaultMax *int64
		siteMax    *int64
	}{
		{name: "global zero", defaultMax: int64Ptr(0)},
		{name: "site override zero", defaultMax: int64Ptr(10), siteMax: int64Ptr(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := memory.New()
			site := seedSite(t, st, tt.siteMax)

			limiter := &quota.Limiter{DefaultMax: tt.defaultMax}
			decision, err := limiter.Check(context.Background(), st, site)
			require.NoError(t, err)
			assert.False(t, decision.Allowed)
			assert.True(t, decision.Disabled)
			assert.Zero(t, decision.WaitSeconds)
		})
	}
}

func TestCheckAllowsUnderLimit(t *testing.T) {
	t.Parallel()

	st := memory.New()
	site := seedSite(t, st, nil)
	now := time.Now()
	for i := 0; i < 9; i++ {
		seedCourse(t, st, site.ID, now.Add(-2*time.Hour).Unix(), true, true)
	}

	limiter := &quota.Limiter{DefaultMax: int64Ptr(10), Now: func() time.Time { return now }}
	decision, err := limiter.Check(context.Background(), st, site)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.EqualValues(t, 10, decision.Limit)
}

func TestCheckDeniesAtLimitWithWait(t *testing.T) {
	t.Parallel()

	st := memory.New()
	site := seedSite(t, st, nil)
	now := time.Now()
	// Oldest in-window publication is 2 hours old, so a slot frees up in 22h.
	seedCourse(t, st, site.ID, now.Add(-2*time.Hour).Unix(), true, true)
	for i := 0; i < 9; i++ {
		seedCourse(t, st, site.ID, now.Add(-30*time.Minute).Unix(), true, true)
	}

	limiter := &quota.Limiter{DefaultMax: int64Ptr(10), Now: func() time.Time { return now }}
	decision, err := limiter.Check(context.Background(), st, site)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.False(t, decision.Disabled)
	assert.EqualValues(t, 10, decision.Limit)
	assert.EqualValues(t, 22*60*60, decision.WaitSeconds)
}

func TestCheckIgnoresPublicationsOutsideWindowAndNonCounting(t *testing.T) {
	t.Parallel()

	st := memory.New()
	site := seedSite(t, st, nil)
	now := time.Now()
	// Aged out of the window entirely.
	seedCourse(t, st, site.ID, now.Add(-25*time.Hour).Unix(), true, true)
	// Link-only and non-downloadable courses never count.
	seedCourse(t, st, site.ID, now.Unix(), false, true)
	seedCourse(t, st, site.ID, now.Unix(), true, false)

	limiter := &quota.Limiter{DefaultMax: int64Ptr(1), Now: func() time.Time { return now }}
	decision, err := limiter.Check(context.Background(), st, site)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCheckSiteOverrideBeatsGlobalDefault(t *testing.T) {
	t.Parallel()

	st := memory.New()
	site := seedSite(t, st, int64Ptr(20))
	now := time.Now()
	for i := 0; i < 15; i++ {
		seedCourse(t, st, site.ID, now.Add(-time.Hour).Unix(), true, true)
	}

	limiter := &quota.Limiter{DefaultMax: int64Ptr(10), Now: func() time.Time { return now }}
	decision, err := limiter.Check(context.Background(), st, site)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.EqualValues(t, 20, decision.Limit)
}

func TestCheckWaitNeverBelowOneSecond(t *testing.T) {
	t.Parallel()

	st := memory.New()
	site := seedSite(t, st, nil)
	now := time.Now()
	// Right at the window edge: the slot frees up almost immediately.
	seedCourse(t, st, site.ID, now.Add(-quota.Window).Add(time.Second).Unix(), true, true)

	limiter := &quota.Limiter{DefaultMax: int64Ptr(1), Now: func() time.Time { return now }}
	decision, err := limiter.Check(context.Background(), st, site)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.GreaterOrEqual(t, decision.WaitSeconds, int64(1))
}
