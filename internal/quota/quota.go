// Package quota implements the sliding-window publication limiter that
// bounds how many courses a site may publish per rolling 24-hour period.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/store"
)

// Window is the trailing period a publication counts against.
const Window = 24 * time.Hour

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool
	// Limit is the effective per-window limit. Meaningless when the limiter
	// is disabled for the site (no site override and no global default).
	Limit int64
	// Disabled reports that the limit is exactly zero: publishing is
	// permanently blocked for the site, retrying will not help.
	Disabled bool
	// WaitSeconds is how long until the oldest in-window publication ages
	// out and frees a slot. Only set on a retryable denial.
	WaitSeconds int64
}

// Limiter computes publication quota decisions. It carries no state between
// checks: every decision is recomputed from the store so concurrent batches
// are serialized by the store's transaction isolation, not by stale counts.
type Limiter struct {
	// DefaultMax is the global per-window limit, overridden per site by
	// publicationmax. Nil disables the limiter entirely.
	DefaultMax *int64

	// Now is the clock, defaulting to time.Now. Substituted in tests.
	Now func() time.Time
}

// Check reports whether the site may publish at least one more course in the
// current window. It must be called with the store view of the surrounding
// unit of work so that the decision and the inserts it gates share one
// transaction.
func (l *Limiter) Check(ctx context.Context, st store.Store, site *model.Site) (Decision, error) {
	limit := l.DefaultMax
	if site.PublicationMax != nil {
		limit = site.PublicationMax
	}
	if limit == nil {
		return Decision{Allowed: true}, nil
	}
	if *limit == 0 {
		return Decision{Limit: 0, Disabled: true}, nil
	}

	now := l.now()
	recent, err := l.recentPublications(ctx, st, site.ID, now)
	if err != nil {
		return Decision{}, err
	}
	if int64(len(recent)) < *limit {
		return Decision{Allowed: true, Limit: *limit}, nil
	}

	oldest := now.Unix()
	for _, c := range recent {
		if c.TimePublished < oldest {
			oldest = c.TimePublished
		}
	}
	wait := int64(Window.Seconds()) - (now.Unix() - oldest)
	if wait < 1 {
		wait = 1
	}
	return Decision{Limit: *limit, WaitSeconds: wait}, nil
}

// recentPublications lists the site's courses published within the trailing
// window. Only enrollable, downloadable courses count against the quota;
// this matches the observable throttling behavior sites depend on.
func (l *Limiter) recentPublications(
	ctx context.Context,
	st store.Store,
	siteID int64,
	now time.Time,
) ([]model.Course, error) {
	enabled := true
	courses, err := st.ListCourses(ctx, store.CourseFilter{
		SiteID:         siteID,
		Enrollable:     &enabled,
		Downloadable:   &enabled,
		PublishedAfter: now.Add(-Window).Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent publications: %w", err)
	}
	return courses, nil
}

func (l *Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
