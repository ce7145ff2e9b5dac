// Package store defines the directory store contract shared by the Postgres
// and in-memory implementations.
package store

import (
	"context"
	"errors"

	"github.com/mouneyrac/moodle-local-hub/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// CourseFilter selects courses. Zero values mean "no constraint" except
// OnlyVisible, which must be set explicitly by callers that want unlisted
// courses excluded.
type CourseFilter struct {
	IDs              []int64
	SiteID           int64
	SiteCourseIDs    []int64
	Search           string
	Coverage         string
	LicenceShortName string
	Subject          string
	Audience         string
	EducationalLevel string
	Language         string
	Enrollable       *bool
	Downloadable     *bool
	PublishedAfter   int64

	// OnlyVisible restricts results to visible courses. When
	// InvisibleSiteID is also set, invisible courses of that one site are
	// let through as well; other sites' unlisted courses never leak.
	OnlyVisible     bool
	InvisibleSiteID int64
}

// SiteFilter selects sites.
type SiteFilter struct {
	Search      string
	URLs        []string
	OnlyVisible bool
}

// Store is the durable record of sites, courses and communication bindings.
// Mutating methods never commit on their own: inside InTx they share the
// surrounding unit of work, outside InTx each call is its own unit.
type Store interface {
	Ping(ctx context.Context) error

	FindSiteByURL(ctx context.Context, url string) (*model.Site, error)
	FindSiteByID(ctx context.Context, id int64) (*model.Site, error)
	ListSites(ctx context.Context, f SiteFilter) ([]model.Site, error)
	UpsertSite(ctx context.Context, site *model.Site) (*model.Site, error)
	DeleteSite(ctx context.Context, id int64) error
	CountSites(ctx context.Context) (int64, error)

	InsertCourse(ctx context.Context, course *model.Course) (int64, error)
	UpdateCourse(ctx context.Context, course *model.Course) error
	ListCourses(ctx context.Context, f CourseFilter) ([]model.Course, error)
	DeleteCourse(ctx context.Context, id int64) error
	DeleteSiteCourses(ctx context.Context, siteID int64) error
	CountCourses(ctx context.Context) (int64, error)
	CourseContents(ctx context.Context, courseID int64) ([]model.CourseContent, error)
	CourseOutcomes(ctx context.Context, courseID int64) ([]string, error)

	ResolveCommunication(ctx context.Context, token string) (*model.Communication, error)
	UpsertCommunication(ctx context.Context, comm *model.Communication) error
	DeleteCommunication(ctx context.Context, token string) error

	RatingsFor(ctx context.Context, courseIDs []int64) (map[int64]model.Rating, error)
	CommentsFor(ctx context.Context, courseID int64) ([]model.Comment, error)
	AddComment(ctx context.Context, courseID int64, c model.Comment) error
	AddRating(ctx context.Context, courseID int64, rating int64) error

	// InTx runs fn inside a single atomic unit of work. The Store handed to
	// fn is bound to that unit; an error from fn rolls everything back.
	// Nested calls join the ambient unit instead of opening a new one.
	InTx(ctx context.Context, fn func(Store) error) error
}
