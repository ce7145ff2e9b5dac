package hub

import (
	"context"
	"fmt"

	"github.com/mouneyrac/moodle-local-hub/internal/auth"
	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/store"
)

// RegisterCourses publishes a batch of courses for the caller's site. The
// whole batch is one unit of work: either every course lands or none does.
// A site over its publication quota is denied up front, whatever the batch
// contains. A course whose sitecourseid is already registered for the site
// is updated in place; each new enrollable, downloadable publication is
// re-checked against the quota inside the same transaction. Returned ids
// are in submission order.
func (h *Hub) RegisterCourses(ctx context.Context, caller auth.Caller, submissions []CourseSubmission) ([]int64, error) {
	site, err := requireSite(caller)
	if err != nil {
		return nil, err
	}
	if err := validateSubmissions(submissions); err != nil {
		return nil, err
	}

	now := h.now().Unix()
	ids := make([]int64, len(submissions))

	err = h.store.InTx(ctx, func(tx store.Store) error {
		decision, txErr := h.limiter.Check(ctx, tx, site)
		if txErr != nil {
			return fmt.Errorf("failed to check publication quota: %w", txErr)
		}
		if !decision.Allowed {
			return &QuotaExceededError{
				Limit:       decision.Limit,
				WaitSeconds: decision.WaitSeconds,
				Disabled:    decision.Disabled,
			}
		}

		for i := range submissions {
			id, txErr := h.registerOne(ctx, tx, site, &submissions[i], now)
			if txErr != nil {
				return txErr
			}
			ids[i] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.InfoContext(ctx, "courses registered", "site_id", site.ID, "count", len(ids))
	return ids, nil
}

func (h *Hub) registerOne(
	ctx context.Context,
	tx store.Store,
	site *model.Site,
	sub *CourseSubmission,
	now int64,
) (int64, error) {
	course := sub.Course
	course.SiteID = site.ID
	course.TimeModified = now

	existing, err := h.findExisting(ctx, tx, site.ID, course.SiteCourseID)
	if err != nil {
		return 0, err
	}

	if existing != nil {
		course.ID = existing.ID
		course.Visible = existing.Visible
		course.TimePublished = existing.TimePublished
		if sub.DeleteScreenshots {
			course.Screenshots = 0
		}
		if err := tx.UpdateCourse(ctx, &course); err != nil {
			return 0, fmt.Errorf("failed to update course %d: %w", existing.ID, err)
		}
		return existing.ID, nil
	}

	// Only brand-new enrollable, downloadable publications count against the
	// window, so each such insert re-checks the limit mid-batch.
	if course.Enrollable && course.Downloadable {
		decision, err := h.limiter.Check(ctx, tx, site)
		if err != nil {
			return 0, fmt.Errorf("failed to check publication quota: %w", err)
		}
		if !decision.Allowed {
			return 0, &QuotaExceededError{
				Limit:       decision.Limit,
				WaitSeconds: decision.WaitSeconds,
				Disabled:    decision.Disabled,
			}
		}
	}

	// Listing visibility follows the submitted privacy, as with sites.
	course.Visible = course.Privacy == model.CoursePrivacyPublic
	course.TimePublished = now
	if sub.DeleteScreenshots {
		course.Screenshots = 0
	}

	id, err := tx.InsertCourse(ctx, &course)
	if err != nil {
		return 0, fmt.Errorf("failed to insert course: %w", err)
	}
	return id, nil
}

func (h *Hub) findExisting(ctx context.Context, tx store.Store, siteID, siteCourseID int64) (*model.Course, error) {
	matches, err := tx.ListCourses(ctx, store.CourseFilter{
		SiteID:        siteID,
		SiteCourseIDs: []int64{siteCourseID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing course: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// UnregisterCourses removes the given courses from the catalog. Ids that do
// not exist or belong to another site are skipped without error, so retries
// of a partially applied request converge.
func (h *Hub) UnregisterCourses(ctx context.Context, caller auth.Caller, ids []int64) error {
	site, err := requireSite(caller)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	var removed, skipped int
	err = h.store.InTx(ctx, func(tx store.Store) error {
		courses, txErr := tx.ListCourses(ctx, store.CourseFilter{IDs: ids})
		if txErr != nil {
			return fmt.Errorf("failed to load courses: %w", txErr)
		}
		owned := make(map[int64]bool, len(courses))
		for i := range courses {
			if courses[i].SiteID == site.ID {
				owned[courses[i].ID] = true
			}
		}
		for _, id := range ids {
			if !owned[id] {
				skipped++
				continue
			}
			if txErr := tx.DeleteCourse(ctx, id); txErr != nil {
				return fmt.Errorf("failed to delete course %d: %w", id, txErr)
			}
			owned[id] = false
			removed++
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "courses unregistered",
		"site_id", site.ID, "removed", removed, "skipped", skipped)
	return nil
}
