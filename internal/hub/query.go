package hub

import (
	"context"
	"fmt"

	"github.com/mouneyrac/moodle-local-hub/internal/auth"
	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/store"
)

// GetCourses runs a faceted catalog search. Only visible courses are
// returned, except that a registered site asking for allsitecourses also
// sees its own unlisted courses. Owner-only fields are stripped from
// courses the caller does not own.
func (h *Hub) GetCourses(ctx context.Context, caller auth.Caller, q CourseQuery) ([]CourseDetail, error) {
	filter := store.CourseFilter{
		IDs:              q.Options.IDs,
		SiteCourseIDs:    q.Options.SiteCourseIDs,
		Search:           q.Search,
		Coverage:         q.Options.Coverage,
		LicenceShortName: q.Options.LicenceShortName,
		Subject:          q.Options.Subject,
		Audience:         q.Options.Audience,
		EducationalLevel: q.Options.EducationalLevel,
		Language:         q.Options.Language,
		Enrollable:       q.Enrollable,
		Downloadable:     q.Downloadable,
		OnlyVisible:      true,
	}
	if q.Options.AllSiteCourses && caller.Registered() {
		filter.InvisibleSiteID = caller.Site.ID
	}

	courses, err := h.store.ListCourses(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	ids := make([]int64, len(courses))
	for i := range courses {
		ids[i] = courses[i].ID
	}
	ratings, err := h.store.RatingsFor(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}

	details := make([]CourseDetail, 0, len(courses))
	for i := range courses {
		detail, err := h.courseDetail(ctx, caller, &courses[i], ratings)
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	return details, nil
}

func (h *Hub) courseDetail(
	ctx context.Context,
	caller auth.Caller,
	course *model.Course,
	ratings map[int64]model.Rating,
) (*CourseDetail, error) {
	contents, err := h.store.CourseContents(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load course contents: %w", err)
	}
	outcomeNames, err := h.store.CourseOutcomes(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load course outcomes: %w", err)
	}
	comments, err := h.store.CommentsFor(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}

	outcomes := make([]Outcome, len(outcomeNames))
	for i, name := range outcomeNames {
		outcomes[i] = Outcome{FullName: name}
	}

	detail := &CourseDetail{
		ID:                 course.ID,
		SiteID:             course.SiteID,
		FullName:           course.FullName,
		ShortName:          course.ShortName,
		Description:        course.Description,
		Language:           course.Language,
		PublisherName:      course.PublisherName,
		ContributorNames:   course.ContributorNames,
		Coverage:           course.Coverage,
		CreatorName:        course.CreatorName,
		LicenceShortName:   course.LicenceShortName,
		Subject:            course.Subject,
		Audience:           course.Audience,
		EducationalLevel:   course.EducationalLevel,
		CreatorNotes:       course.CreatorNotes,
		CreatorNotesFormat: course.CreatorNotesFormat,
		DemoURL:            course.DemoURL,
		CourseURL:          course.CourseURL,
		Enrollable:         course.Enrollable,
		Downloadable:       course.Downloadable,
		Screenshots:        course.Screenshots,
		TimePublished:      course.TimePublished,
		TimeModified:       course.TimeModified,
		Contents:           contents,
		Outcomes:           outcomes,
		Comments:           comments,
	}

	// Owner-only fields are omitted, not nulled, for everyone else.
	if caller.OwnsCourse(course) {
		email := course.PublisherEmail
		privacy := course.Privacy
		siteCourseID := course.SiteCourseID
		detail.PublisherEmail = &email
		detail.Privacy = &privacy
		detail.SiteCourseID = &siteCourseID
	}

	if rating, ok := ratings[course.ID]; ok {
		r := rating
		detail.Rating = &r
	}
	return detail, nil
}

// GetSites searches the visible site directory and returns the public
// projection of each match.
func (h *Hub) GetSites(ctx context.Context, _ auth.Caller, q SiteQuery) ([]SiteSummary, error) {
	sites, err := h.store.ListSites(ctx, store.SiteFilter{
		Search:      q.Search,
		URLs:        q.URLs,
		OnlyVisible: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	summaries := make([]SiteSummary, len(sites))
	for i := range sites {
		summaries[i] = SiteSummary{ID: sites[i].ID, Name: sites[i].Name, URL: sites[i].URL}
	}
	return summaries, nil
}
