package hub

import (
	"context"
	"fmt"

	"github.com/mouneyrac/moodle-local-hub/internal/auth"
	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/store"
)

// GetInfo returns the hub descriptor plus live directory counts.
func (h *Hub) GetInfo(ctx context.Context) (*Info, error) {
	sites, err := h.store.CountSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count sites: %w", err)
	}
	courses, err := h.store.CountCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count courses: %w", err)
	}
	return &Info{
		Name:         h.info.Name,
		Description:  h.info.Description,
		ContactName:  h.info.ContactName,
		ContactEmail: h.info.ContactEmail,
		HubLogo:      h.info.Logo,
		Privacy:      h.info.Privacy,
		Language:     h.info.Language,
		URL:          h.info.URL,
		Sites:        sites,
		Courses:      courses,
	}, nil
}

// UpdateSiteInfo registers the caller's site or refreshes its record. The
// first call with a provisioned token creates the site; later calls update
// it. A URL change marks the site inactive until it is re-verified out of
// band.
func (h *Hub) UpdateSiteInfo(ctx context.Context, caller auth.Caller, site *model.Site) (*model.Site, error) {
	comm, err := requireResolved(caller)
	if err != nil {
		return nil, err
	}
	if err := validateSite(site); err != nil {
		return nil, err
	}

	now := h.now().Unix()
	var saved *model.Site

	err = h.store.InTx(ctx, func(tx store.Store) error {
		if caller.Registered() {
			current := caller.Site
			site.ID = current.ID
			site.Active = current.Active
			site.PublicationMax = current.PublicationMax
			site.TimeRegistered = current.TimeRegistered
			if current.URL != site.URL {
				// The new URL cannot be trusted until re-verified.
				site.Active = false
				h.logger.WarnContext(ctx, "site changed url, marked inactive pending verification",
					"site_id", current.ID, "old_url", current.URL, "new_url", site.URL)
			}
		} else {
			site.ID = 0
			site.Active = true
			site.TimeRegistered = now
		}
		// Listing visibility always tracks the submitted privacy.
		site.Visible = site.Privacy != model.SitePrivacyNotPublished
		site.TimeModified = now

		var txErr error
		saved, txErr = tx.UpsertSite(ctx, site)
		if txErr != nil {
			return fmt.Errorf("failed to save site: %w", txErr)
		}

		comm.SiteID = saved.ID
		comm.RemoteURL = saved.URL
		if txErr := tx.UpsertCommunication(ctx, comm); txErr != nil {
			return fmt.Errorf("failed to bind token to site: %w", txErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.InfoContext(ctx, "site registration updated",
		"site_id", saved.ID, "url", saved.URL, "active", saved.Active)
	return saved, nil
}

// UnregisterSite removes the caller's site, all its courses, and its token
// binding. Unregistering an already-removed site still revokes the token and
// succeeds.
func (h *Hub) UnregisterSite(ctx context.Context, caller auth.Caller) error {
	comm, err := requireResolved(caller)
	if err != nil {
		return err
	}

	err = h.store.InTx(ctx, func(tx store.Store) error {
		if caller.Registered() {
			siteID := caller.Site.ID
			if txErr := tx.DeleteSiteCourses(ctx, siteID); txErr != nil {
				return fmt.Errorf("failed to delete site courses: %w", txErr)
			}
			if txErr := tx.DeleteSite(ctx, siteID); txErr != nil {
				return fmt.Errorf("failed to delete site: %w", txErr)
			}
		}
		if txErr := tx.DeleteCommunication(ctx, comm.Token); txErr != nil {
			return fmt.Errorf("failed to delete token binding: %w", txErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := h.creds.Revoke(ctx, comm.Token); err != nil {
		// The binding is gone, so the token is dead either way.
		h.logger.WarnContext(ctx, "failed to revoke credential", "error", err)
	}

	h.logger.InfoContext(ctx, "site unregistered", "url", comm.RemoteURL)
	return nil
}
