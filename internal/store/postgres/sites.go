package postgres

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/store"
)

const siteTable = "hub_site"

var siteColumns = []string{
	"id", "name", "description", "contactname", "contactemail", "contactphone",
	"imageurl", "privacy", "language", "url", "users", "courses", "street",
	"regioncode", "countrycode", "geolocation", "contactable", "emailalert",
	"enrolments", "posts", "questions", "resources",
	"participantnumberaverage", "modulenumberaverage", "moodleversion",
	"moodlerelease", "visible", "active", "publicationmax", "timeregistered",
	"timemodified",
}

// siteInsertColumns excludes the generated id.
var siteInsertColumns = siteColumns[1:]

func siteInsertValues(s *model.Site) []any {
	return []any{
		s.Name, s.Description, s.ContactName, s.ContactEmail, s.ContactPhone,
		s.ImageURL, s.Privacy, s.Language, s.URL, s.Users, s.Courses, s.Street,
		s.RegionCode, s.CountryCode, s.Geolocation, s.Contactable, s.EmailAlert,
		s.Enrolments, s.Posts, s.Questions, s.Resources,
		s.ParticipantNumberAverage, s.ModuleNumberAverage, s.MoodleVersion,
		s.MoodleRelease, s.Visible, s.Active, s.PublicationMax,
		s.TimeRegistered, s.TimeModified,
	}
}

// FindSiteByURL returns the site registered under the given canonical URL.
func (s *Store) FindSiteByURL(ctx context.Context, url string) (*model.Site, error) {
	return s.findSite(ctx, sq.Eq{"url": url})
}

// FindSiteByID returns the site with the given id.
func (s *Store) FindSiteByID(ctx context.Context, id int64) (*model.Site, error) {
	return s.findSite(ctx, sq.Eq{"id": id})
}

func (s *Store) findSite(ctx context.Context, pred any) (*model.Site, error) {
	query, args, err := builder.Select(siteColumns...).From(siteTable).Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build site query: %w", err)
	}

	var site model.Site
	if err := pgxscan.Get(ctx, s.q, &site, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query site: %w", err)
	}
	return &site, nil
}

// ListSites returns sites matching the filter, ordered by name.
func (s *Store) ListSites(ctx context.Context, f store.SiteFilter) ([]model.Site, error) {
	q := builder.Select(siteColumns...).From(siteTable).OrderBy("name ASC")
	if f.OnlyVisible {
		q = q.Where(sq.Eq{"visible": true})
	}
	if len(f.URLs) > 0 {
		q = q.Where(sq.Eq{"url": f.URLs})
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where(sq.Or{
			sq.ILike{"name": like},
			sq.ILike{"description": like},
			sq.ILike{"url": like},
		})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build site list query: %w", err)
	}

	var sites []model.Site
	if err := pgxscan.Select(ctx, s.q, &sites, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return sites, nil
}

// UpsertSite inserts a new site record, or updates the existing one in place
// when the id is set or the URL already exists.
func (s *Store) UpsertSite(ctx context.Context, site *model.Site) (*model.Site, error) {
	var q sq.Sqlizer
	if site.ID != 0 {
		update := builder.Update(siteTable).Where(sq.Eq{"id": site.ID})
		vals := siteInsertValues(site)
		for i, col := range siteInsertColumns {
			update = update.Set(col, vals[i])
		}
		q = update.Suffix("RETURNING " + joinColumns(siteColumns))
	} else {
		q = builder.Insert(siteTable).
			Columns(siteInsertColumns...).
			Values(siteInsertValues(site)...).
			Suffix("ON CONFLICT (url) DO UPDATE SET " + upsertSetClause() +
				" RETURNING " + joinColumns(siteColumns))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build site upsert: %w", err)
	}

	var saved model.Site
	if err := pgxscan.Get(ctx, s.q, &saved, query, args...); err != nil {
		return nil, fmt.Errorf("failed to upsert site: %w", err)
	}
	return &saved, nil
}

// DeleteSite removes the site record. Courses are removed separately so the
// caller controls the unit of work.
func (s *Store) DeleteSite(ctx context.Context, id int64) error {
	query, args, err := builder.Delete(siteTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build site delete: %w", err)
	}
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	return nil
}

// CountSites returns the number of registered sites.
func (s *Store) CountSites(ctx context.Context) (int64, error) {
	return s.count(ctx, siteTable)
}

func (s *Store) count(ctx context.Context, table string) (int64, error) {
	query, args, err := builder.Select("count(*)").From(table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var n int64
	if err := s.q.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

// upsertSetClause updates every caller-supplied column from the excluded row.
func upsertSetClause() string {
	set := make([]string, len(siteInsertColumns))
	for i, c := range siteInsertColumns {
		set[i] = c + " = excluded." + c
	}
	return strings.Join(set, ", ")
}
