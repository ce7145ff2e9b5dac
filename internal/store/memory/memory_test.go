package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/store"
	"github.com/mouneyrac/moodle-local-hub/internal/store/memory"
)

func seedSite(t *testing.T, st *memory.Store, url string, visible bool) *model.Site {
	t.Helper()
	site, err := st.UpsertSite(context.Background(), &model.Site{
		Name:    "Site " + url,
		URL:     url,
		Visible: visible,
	})
	require.NoError(t, err)
	return site
}

func TestUpsertSiteAssignsAndKeepsIDs(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()

	first := seedSite(t, st, "https://a.example.org", true)
	assert.Equal(t, int64(1), first.ID)

	// Re-registering the same URL reuses the existing record.
	again, err := st.UpsertSite(ctx, &model.Site{Name: "Renamed", URL: "https://a.example.org"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	found, err := st.FindSiteByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", found.Name)

	count, err := st.CountSites(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestFindSiteNotFound(t *testing.T) {
	t.Parallel()

	st := memory.New()
	_, err := st.FindSiteByURL(context.Background(), "https://nope.example.org")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.FindSiteByID(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListSitesFilters(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()

	seedSite(t, st, "https://visible.example.org", true)
	seedSite(t, st, "https://hidden.example.org", false)

	sites, err := st.ListSites(ctx, store.SiteFilter{OnlyVisible: true})
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "https://visible.example.org", sites[0].URL)

	sites, err = st.ListSites(ctx, store.SiteFilter{Search: "HIDDEN"})
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "https://hidden.example.org", sites[0].URL)

	sites, err = st.ListSites(ctx, store.SiteFilter{URLs: []string{"https://visible.example.org"}})
	require.NoError(t, err)
	assert.Len(t, sites, 1)
}

func TestInTxRollbackRestoresState(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()
	site := seedSite(t, st, "https://a.example.org", true)

	sentinel := errors.New("boom")
	err := st.InTx(ctx, func(tx store.Store) error {
		if _, err := tx.InsertCourse(ctx, &model.Course{SiteID: site.ID, SiteCourseID: 1, FullName: "A"}); err != nil {
			return err
		}
		if err := tx.DeleteSite(ctx, site.ID); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	// Both mutations inside the failed unit of work are gone.
	count, err := st.CountCourses(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = st.FindSiteByID(ctx, site.ID)
	assert.NoError(t, err)
}

func TestInTxCommitKeepsState(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()
	site := seedSite(t, st, "https://a.example.org", true)

	err := st.InTx(ctx, func(tx store.Store) error {
		_, err := tx.InsertCourse(ctx, &model.Course{SiteID: site.ID, SiteCourseID: 1, FullName: "A"})
		return err
	})
	require.NoError(t, err)

	count, err := st.CountCourses(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestListCoursesStripsLineItems(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()

	id, err := st.InsertCourse(ctx, &model.Course{
		SiteID:       1,
		SiteCourseID: 1,
		FullName:     "A",
		Visible:      true,
		Contents:     []model.CourseContent{{ModuleType: "activity", ModuleName: "forum", ContentCount: 3}},
		Outcomes:     []string{"Read music"},
	})
	require.NoError(t, err)

	courses, err := st.ListCourses(ctx, store.CourseFilter{})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Nil(t, courses[0].Contents)
	assert.Nil(t, courses[0].Outcomes)

	contents, err := st.CourseContents(ctx, id)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "forum", contents[0].ModuleName)

	outcomes, err := st.CourseOutcomes(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Read music"}, outcomes)
}

func TestListCoursesVisibilityFilter(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()

	_, err := st.InsertCourse(ctx, &model.Course{SiteID: 1, SiteCourseID: 1, FullName: "Visible", Visible: true})
	require.NoError(t, err)
	_, err = st.InsertCourse(ctx, &model.Course{SiteID: 2, SiteCourseID: 1, FullName: "Hidden", Visible: false})
	require.NoError(t, err)

	courses, err := st.ListCourses(ctx, store.CourseFilter{OnlyVisible: true})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "Visible", courses[0].FullName)

	// The hidden course's own site still sees it.
	courses, err = st.ListCourses(ctx, store.CourseFilter{OnlyVisible: true, InvisibleSiteID: 2})
	require.NoError(t, err)
	assert.Len(t, courses, 2)
}

func TestDeleteCourseDropsSocialData(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()

	id, err := st.InsertCourse(ctx, &model.Course{SiteID: 1, SiteCourseID: 1, FullName: "A"})
	require.NoError(t, err)
	require.NoError(t, st.AddComment(ctx, id, model.Comment{Comment: "nice", Commentator: "Ann"}))
	require.NoError(t, st.AddRating(ctx, id, 8))

	require.NoError(t, st.DeleteCourse(ctx, id))

	comments, err := st.CommentsFor(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, comments)

	ratings, err := st.RatingsFor(ctx, []int64{id})
	require.NoError(t, err)
	assert.Empty(t, ratings)
}

func TestRatingsForAggregates(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()

	id, err := st.InsertCourse(ctx, &model.Course{SiteID: 1, SiteCourseID: 1, FullName: "A"})
	require.NoError(t, err)
	require.NoError(t, st.AddRating(ctx, id, 6))
	require.NoError(t, st.AddRating(ctx, id, 9))

	ratings, err := st.RatingsFor(ctx, []int64{id, 999})
	require.NoError(t, err)
	require.Contains(t, ratings, id)
	assert.NotContains(t, ratings, int64(999))

	r := ratings[id]
	require.NotNil(t, r.Aggregate)
	assert.InDelta(t, 7.5, *r.Aggregate, 0.0001)
	assert.Equal(t, int64(2), r.Count)
	assert.Equal(t, int64(model.RatingScaleID), r.ScaleID)
}

func TestUpsertCommunicationRebindsToken(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()

	comm := &model.Communication{Token: "tok", RemoteURL: "https://a.example.org"}
	require.NoError(t, st.UpsertCommunication(ctx, comm))
	firstID := comm.ID

	rebound := &model.Communication{Token: "tok", SiteID: 5, RemoteURL: "https://a.example.org"}
	require.NoError(t, st.UpsertCommunication(ctx, rebound))
	assert.Equal(t, firstID, rebound.ID)

	resolved, err := st.ResolveCommunication(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(5), resolved.SiteID)

	require.NoError(t, st.DeleteCommunication(ctx, "tok"))
	_, err = st.ResolveCommunication(ctx, "tok")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
