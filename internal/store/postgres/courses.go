package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/store"
)

const (
	courseTable  = "hub_course"
	contentTable = "hub_course_content"
	outcomeTable = "hub_course_outcome"
)

var courseColumns = []string{
	"id", "siteid", "sitecourseid", "fullname", "shortname", "description",
	"language", "publishername", "publisheremail", "contributornames",
	"coverage", "creatorname", "licenceshortname", "subject", "audience",
	"educationallevel", "creatornotes", "creatornotesformat", "demourl",
	"courseurl", "enrollable", "downloadable", "screenshots", "privacy",
	"visible", "timepublished", "timemodified",
}

var courseInsertColumns = courseColumns[1:]

func courseInsertValues(c *model.Course) []any {
	return []any{
		c.SiteID, c.SiteCourseID, c.FullName, c.ShortName, c.Description,
		c.Language, c.PublisherName, c.PublisherEmail, c.ContributorNames,
		c.Coverage, c.CreatorName, c.LicenceShortName, c.Subject, c.Audience,
		c.EducationalLevel, c.CreatorNotes, c.CreatorNotesFormat, c.DemoURL,
		c.CourseURL, c.Enrollable, c.Downloadable, c.Screenshots, c.Privacy,
		c.Visible, c.TimePublished, c.TimeModified,
	}
}

// InsertCourse inserts a course with its content and outcome line items and
// returns the assigned id.
func (s *Store) InsertCourse(ctx context.Context, course *model.Course) (int64, error) {
	query, args, err := builder.Insert(courseTable).
		Columns(courseInsertColumns...).
		Values(courseInsertValues(course)...).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build course insert: %w", err)
	}

	var id int64
	if err := s.q.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert course: %w", err)
	}

	if err := s.insertLineItems(ctx, id, course); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateCourse rewrites the course row and replaces its line items. Used by
// the registration update path when a site republishes an existing course.
func (s *Store) UpdateCourse(ctx context.Context, course *model.Course) error {
	update := builder.Update(courseTable).Where(sq.Eq{"id": course.ID})
	vals := courseInsertValues(course)
	for i, col := range courseInsertColumns {
		update = update.Set(col, vals[i])
	}

	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build course update: %w", err)
	}
	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update course: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	if err := s.deleteLineItems(ctx, course.ID); err != nil {
		return err
	}
	return s.insertLineItems(ctx, course.ID, course)
}

func (s *Store) insertLineItems(ctx context.Context, courseID int64, course *model.Course) error {
	if len(course.Contents) > 0 {
		insert := builder.Insert(contentTable).
			Columns("courseid", "moduletype", "modulename", "contentcount")
		for _, c := range course.Contents {
			insert = insert.Values(courseID, c.ModuleType, c.ModuleName, c.ContentCount)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build content insert: %w", err)
		}
		if _, err := s.q.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert course contents: %w", err)
		}
	}

	if len(course.Outcomes) > 0 {
		insert := builder.Insert(outcomeTable).Columns("courseid", "fullname")
		for _, o := range course.Outcomes {
			insert = insert.Values(courseID, o)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build outcome insert: %w", err)
		}
		if _, err := s.q.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert course outcomes: %w", err)
		}
	}
	return nil
}

func (s *Store) deleteLineItems(ctx context.Context, courseID int64) error {
	for _, table := range []string{contentTable, outcomeTable} {
		query, args, err := builder.Delete(table).Where(sq.Eq{"courseid": courseID}).ToSql()
		if err != nil {
			return fmt.Errorf("failed to build line item delete: %w", err)
		}
		if _, err := s.q.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete line items from %s: %w", table, err)
		}
	}
	return nil
}

// ListCourses returns courses matching the filter, ordered by full name.
// Line items are not loaded; use CourseContents and CourseOutcomes.
func (s *Store) ListCourses(ctx context.Context, f store.CourseFilter) ([]model.Course, error) {
	q := builder.Select(courseColumns...).From(courseTable).OrderBy("fullname ASC", "id ASC")

	if len(f.IDs) > 0 {
		q = q.Where(sq.Eq{"id": f.IDs})
	}
	if f.SiteID != 0 {
		q = q.Where(sq.Eq{"siteid": f.SiteID})
	}
	if len(f.SiteCourseIDs) > 0 {
		q = q.Where(sq.Eq{"sitecourseid": f.SiteCourseIDs})
	}
	if f.Coverage != "" {
		q = q.Where(sq.Eq{"coverage": f.Coverage})
	}
	if f.LicenceShortName != "" {
		q = q.Where(sq.Eq{"licenceshortname": f.LicenceShortName})
	}
	if f.Subject != "" {
		q = q.Where(sq.Eq{"subject": f.Subject})
	}
	if f.Audience != "" {
		q = q.Where(sq.Eq{"audience": f.Audience})
	}
	if f.EducationalLevel != "" {
		q = q.Where(sq.Eq{"educationallevel": f.EducationalLevel})
	}
	if f.Language != "" {
		q = q.Where(sq.Eq{"language": f.Language})
	}
	if f.Enrollable != nil {
		q = q.Where(sq.Eq{"enrollable": *f.Enrollable})
	}
	if f.Downloadable != nil {
		q = q.Where(sq.Eq{"downloadable": *f.Downloadable})
	}
	if f.PublishedAfter > 0 {
		q = q.Where(sq.Gt{"timepublished": f.PublishedAfter})
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where(sq.Or{
			sq.ILike{"fullname": like},
			sq.ILike{"shortname": like},
			sq.ILike{"description": like},
		})
	}
	if f.OnlyVisible {
		if f.InvisibleSiteID != 0 {
			q = q.Where(sq.Or{sq.Eq{"visible": true}, sq.Eq{"siteid": f.InvisibleSiteID}})
		} else {
			q = q.Where(sq.Eq{"visible": true})
		}
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build course list query: %w", err)
	}

	var courses []model.Course
	if err := pgxscan.Select(ctx, s.q, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	return courses, nil
}

// DeleteCourse removes a course and its line items.
func (s *Store) DeleteCourse(ctx context.Context, id int64) error {
	if err := s.deleteLineItems(ctx, id); err != nil {
		return err
	}
	query, args, err := builder.Delete(courseTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build course delete: %w", err)
	}
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}
	return nil
}

// DeleteSiteCourses removes every course belonging to a site.
func (s *Store) DeleteSiteCourses(ctx context.Context, siteID int64) error {
	courses, err := s.ListCourses(ctx, store.CourseFilter{SiteID: siteID})
	if err != nil {
		return err
	}
	for _, c := range courses {
		if err := s.DeleteCourse(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// CountCourses returns the total number of catalog entries.
func (s *Store) CountCourses(ctx context.Context) (int64, error) {
	return s.count(ctx, courseTable)
}

// CourseContents returns the content line items of a course in insertion order.
func (s *Store) CourseContents(ctx context.Context, courseID int64) ([]model.CourseContent, error) {
	query, args, err := builder.
		Select("moduletype", "modulename", "contentcount").
		From(contentTable).
		Where(sq.Eq{"courseid": courseID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build content query: %w", err)
	}

	var contents []model.CourseContent
	if err := pgxscan.Select(ctx, s.q, &contents, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list course contents: %w", err)
	}
	return contents, nil
}

// CourseOutcomes returns the outcome names of a course in insertion order.
func (s *Store) CourseOutcomes(ctx context.Context, courseID int64) ([]string, error) {
	query, args, err := builder.
		Select("fullname").
		From(outcomeTable).
		Where(sq.Eq{"courseid": courseID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build outcome query: %w", err)
	}

	var outcomes []string
	if err := pgxscan.Select(ctx, s.q, &outcomes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list course outcomes: %w", err)
	}
	return outcomes, nil
}
