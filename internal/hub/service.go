// Package hub implements the directory operations: site registration
// lifecycle, quota-gated course publication, and the faceted catalog query.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mouneyrac/moodle-local-hub/internal/auth"
	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/quota"
	"github.com/mouneyrac/moodle-local-hub/internal/store"
)

var (
	// ErrInvalidToken is returned when a write operation is attempted with a
	// token that does not resolve to a communication binding.
	ErrInvalidToken = errors.New("token does not identify a registered site")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports the input fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s", strings.Join(e.Fields, ", "))
}

// QuotaExceededError is returned when a publication batch would exceed the
// site's sliding-window limit. WaitSeconds tells the caller when a slot
// frees up; Disabled means publishing is switched off for the site and
// retrying will not help.
type QuotaExceededError struct {
	Limit       int64
	WaitSeconds int64
	Disabled    bool
}

func (e *QuotaExceededError) Error() string {
	if e.Disabled {
		return "course publication is disabled for this site"
	}
	return fmt.Sprintf("publication quota of %d per 24h reached, retry in %ds", e.Limit, e.WaitSeconds)
}

// Credentials issues and revokes site access tokens. The default local
// implementation issues random tokens; revocation of externally managed
// tokens is delegated to whatever provisioned them.
type Credentials interface {
	Issue(ctx context.Context) (string, error)
	Revoke(ctx context.Context, token string) error
}

// LocalCredentials issues opaque random tokens and keeps no state of its
// own. Token-to-site bindings live in the directory store.
type LocalCredentials struct{}

func (LocalCredentials) Issue(context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (LocalCredentials) Revoke(context.Context, string) error {
	return nil
}

// Info is the hub descriptor returned to prospective registrants.
type Info struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	ContactName  string `json:"contactname"`
	ContactEmail string `json:"contactemail"`
	HubLogo      string `json:"hublogo,omitempty"`
	Privacy      string `json:"privacy"`
	Language     string `json:"language"`
	URL          string `json:"url"`
	Sites        int64  `json:"sites"`
	Courses      int64  `json:"courses"`
}

// InfoConfig is the static part of the hub descriptor.
type InfoConfig struct {
	Name         string
	Description  string
	ContactName  string
	ContactEmail string
	Logo         string
	Privacy      string
	Language     string
	URL          string
}

// CourseSubmission is one course in a publication batch. DeleteScreenshots
// resets the stored screenshot count; the files themselves are managed by
// the external file store.
type CourseSubmission struct {
	model.Course
	DeleteScreenshots bool `json:"deletescreenshots,omitempty"`
}

// CourseQueryOptions are the optional facets of a catalog query.
type CourseQueryOptions struct {
	IDs              []int64  `json:"ids,omitempty"`
	SiteCourseIDs    []int64  `json:"sitecourseids,omitempty"`
	Coverage         string   `json:"coverage,omitempty"`
	LicenceShortName string   `json:"licenceshortname,omitempty"`
	Subject          string   `json:"subject,omitempty"`
	Audience         string   `json:"audience,omitempty"`
	EducationalLevel string   `json:"educationallevel,omitempty"`
	Language         string   `json:"language,omitempty"`
	AllSiteCourses   bool     `json:"allsitecourses,omitempty"`
	URLs             []string `json:"-"`
}

// CourseQuery is a catalog search. Nil Enrollable/Downloadable means the
// facet is not applied.
type CourseQuery struct {
	Search       string
	Enrollable   *bool
	Downloadable *bool
	Options      CourseQueryOptions
}

// Outcome is the projection of a course outcome in query results.
type Outcome struct {
	FullName string `json:"fullname"`
}

// CourseDetail is a catalog entry as returned to callers. PublisherEmail,
// Privacy and SiteCourseID are only present when the caller owns the course.
type CourseDetail struct {
	ID                 int64                 `json:"id"`
	SiteID             int64                 `json:"siteid"`
	SiteCourseID       *int64                `json:"sitecourseid,omitempty"`
	FullName           string                `json:"fullname"`
	ShortName          string                `json:"shortname"`
	Description        string                `json:"description"`
	Language           string                `json:"language"`
	PublisherName      string                `json:"publishername"`
	PublisherEmail     *string               `json:"publisheremail,omitempty"`
	ContributorNames   string                `json:"contributornames"`
	Coverage           string                `json:"coverage"`
	CreatorName        string                `json:"creatorname"`
	LicenceShortName   string                `json:"licenceshortname"`
	Subject            string                `json:"subject"`
	Audience           string                `json:"audience"`
	EducationalLevel   string                `json:"educationallevel"`
	CreatorNotes       string                `json:"creatornotes"`
	CreatorNotesFormat int64                 `json:"creatornotesformat"`
	DemoURL            *string               `json:"demourl,omitempty"`
	CourseURL          *string               `json:"courseurl,omitempty"`
	Enrollable         bool                  `json:"enrollable"`
	Downloadable       bool                  `json:"downloadable"`
	Screenshots        int64                 `json:"screenshots"`
	Privacy            *int64                `json:"privacy,omitempty"`
	TimePublished      int64                 `json:"timepublished"`
	TimeModified       int64                 `json:"timemodified"`
	Contents           []model.CourseContent `json:"contents"`
	Outcomes           []Outcome             `json:"outcomes"`
	Rating             *model.Rating         `json:"rating,omitempty"`
	Comments           []model.Comment       `json:"comments"`
}

// SiteQuery is a directory search over registered sites.
type SiteQuery struct {
	Search string
	URLs   []string
}

// SiteSummary is the public projection of a registered site.
type SiteSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Service is the hub API surface.
type Service interface {
	GetInfo(ctx context.Context) (*Info, error)
	UpdateSiteInfo(ctx context.Context, caller auth.Caller, site *model.Site) (*model.Site, error)
	UnregisterSite(ctx context.Context, caller auth.Caller) error
	RegisterCourses(ctx context.Context, caller auth.Caller, submissions []CourseSubmission) ([]int64, error)
	UnregisterCourses(ctx context.Context, caller auth.Caller, ids []int64) error
	GetCourses(ctx context.Context, caller auth.Caller, q CourseQuery) ([]CourseDetail, error)
	GetSites(ctx context.Context, caller auth.Caller, q SiteQuery) ([]SiteSummary, error)
}

// Hub is the store-backed Service implementation.
type Hub struct {
	store   store.Store
	limiter *quota.Limiter
	creds   Credentials
	info    InfoConfig
	logger  *slog.Logger
	now     func() time.Time
}

var _ Service = (*Hub)(nil)

// New builds the hub service.
func New(st store.Store, limiter *quota.Limiter, creds Credentials, info InfoConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if creds == nil {
		creds = LocalCredentials{}
	}
	return &Hub{
		store:   st,
		limiter: limiter,
		creds:   creds,
		info:    info,
		logger:  logger,
		now:     time.Now,
	}
}

// requireResolved returns the caller's communication binding, or
// ErrInvalidToken when the token did not resolve.
func requireResolved(caller auth.Caller) (*model.Communication, error) {
	if !caller.Resolved() {
		return nil, ErrInvalidToken
	}
	return caller.Communication, nil
}

// requireSite returns the caller's registered site, or ErrInvalidToken when
// the token did not resolve to one.
func requireSite(caller auth.Caller) (*model.Site, error) {
	if !caller.Registered() {
		return nil, ErrInvalidToken
	}
	return caller.Site, nil
}
