// Package memory implements the directory store in process memory. It backs
// tests and small single-node deployments (storage driver "memory").
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/store"
)

// Store is a mutex-guarded in-memory directory store. InTx snapshots the
// whole state up front and restores it when the unit of work fails, giving
// the same all-or-nothing behavior as the Postgres store.
type Store struct {
	mu   sync.RWMutex
	data *state
}

type state struct {
	sites    map[int64]model.Site
	courses  map[int64]model.Course
	comms    map[string]model.Communication
	comments map[int64][]model.Comment
	ratings  map[int64][]int64

	nextSiteID   int64
	nextCourseID int64
	nextCommID   int64
}

// New creates an empty store.
func New() *Store {
	return &Store{data: newState()}
}

func newState() *state {
	return &state{
		sites:        make(map[int64]model.Site),
		courses:      make(map[int64]model.Course),
		comms:        make(map[string]model.Communication),
		comments:     make(map[int64][]model.Comment),
		ratings:      make(map[int64][]int64),
		nextSiteID:   1,
		nextCourseID: 1,
		nextCommID:   1,
	}
}

func (st *state) clone() *state {
	c := newState()
	c.nextSiteID = st.nextSiteID
	c.nextCourseID = st.nextCourseID
	c.nextCommID = st.nextCommID
	for id, s := range st.sites {
		c.sites[id] = cloneSite(s)
	}
	for id, course := range st.courses {
		c.courses[id] = cloneCourse(course)
	}
	for tok, comm := range st.comms {
		c.comms[tok] = comm
	}
	for id, list := range st.comments {
		c.comments[id] = append([]model.Comment(nil), list...)
	}
	for id, list := range st.ratings {
		c.ratings[id] = append([]int64(nil), list...)
	}
	return c
}

func cloneSite(s model.Site) model.Site {
	if s.PublicationMax != nil {
		max := *s.PublicationMax
		s.PublicationMax = &max
	}
	return s
}

func cloneCourse(c model.Course) model.Course {
	c.Contents = append([]model.CourseContent(nil), c.Contents...)
	c.Outcomes = append([]string(nil), c.Outcomes...)
	if c.DemoURL != nil {
		u := *c.DemoURL
		c.DemoURL = &u
	}
	if c.CourseURL != nil {
		u := *c.CourseURL
		c.CourseURL = &u
	}
	return c
}

// Ping always succeeds.
func (*Store) Ping(context.Context) error { return nil }

// InTx runs fn against the live state under the write lock, restoring the
// pre-transaction snapshot if fn fails.
func (s *Store) InTx(_ context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(&txStore{data: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// FindSiteByURL implements store.Store.
func (s *Store) FindSiteByURL(_ context.Context, url string) (*model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.findSiteByURL(url)
}

// FindSiteByID implements store.Store.
func (s *Store) FindSiteByID(_ context.Context, id int64) (*model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.findSiteByID(id)
}

// ListSites implements store.Store.
func (s *Store) ListSites(_ context.Context, f store.SiteFilter) ([]model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listSites(f)
}

// UpsertSite implements store.Store.
func (s *Store) UpsertSite(_ context.Context, site *model.Site) (*model.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.upsertSite(site)
}

// DeleteSite implements store.Store.
func (s *Store) DeleteSite(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.deleteSite(id)
}

// CountSites implements store.Store.
func (s *Store) CountSites(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data.sites)), nil
}

// InsertCourse implements store.Store.
func (s *Store) InsertCourse(_ context.Context, course *model.Course) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.insertCourse(course)
}

// UpdateCourse implements store.Store.
func (s *Store) UpdateCourse(_ context.Context, course *model.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.updateCourse(course)
}

// ListCourses implements store.Store.
func (s *Store) ListCourses(_ context.Context, f store.CourseFilter) ([]model.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listCourses(f)
}

// DeleteCourse implements store.Store.
func (s *Store) DeleteCourse(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.deleteCourse(id)
}

// DeleteSiteCourses implements store.Store.
func (s *Store) DeleteSiteCourses(_ context.Context, siteID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.deleteSiteCourses(siteID)
}

// CountCourses implements store.Store.
func (s *Store) CountCourses(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data.courses)), nil
}

// CourseContents implements store.Store.
func (s *Store) CourseContents(_ context.Context, courseID int64) ([]model.CourseContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.courseContents(courseID)
}

// CourseOutcomes implements store.Store.
func (s *Store) CourseOutcomes(_ context.Context, courseID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.courseOutcomes(courseID)
}

// ResolveCommunication implements store.Store.
func (s *Store) ResolveCommunication(_ context.Context, token string) (*model.Communication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.resolveCommunication(token)
}

// UpsertCommunication implements store.Store.
func (s *Store) UpsertCommunication(_ context.Context, comm *model.Communication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.upsertCommunication(comm)
}

// DeleteCommunication implements store.Store.
func (s *Store) DeleteCommunication(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.deleteCommunication(token)
}

// RatingsFor implements store.Store.
func (s *Store) RatingsFor(_ context.Context, courseIDs []int64) (map[int64]model.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ratingsFor(courseIDs)
}

// CommentsFor implements store.Store.
func (s *Store) CommentsFor(_ context.Context, courseID int64) ([]model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.commentsFor(courseID)
}

// AddComment implements store.Store.
func (s *Store) AddComment(_ context.Context, courseID int64, c model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.comments[courseID] = append(s.data.comments[courseID], c)
	return nil
}

// AddRating implements store.Store.
func (s *Store) AddRating(_ context.Context, courseID int64, rating int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ratings[courseID] = append(s.data.ratings[courseID], rating)
	return nil
}

// txStore is the transaction-scoped view handed to InTx callbacks. The
// parent holds the write lock for the whole unit of work, so txStore touches
// the state directly; nested InTx joins the ambient unit.
type txStore struct {
	data *state
}

func (*txStore) Ping(context.Context) error { return nil }

func (t *txStore) InTx(_ context.Context, fn func(store.Store) error) error {
	return fn(t)
}

func (t *txStore) FindSiteByURL(_ context.Context, url string) (*model.Site, error) {
	return t.data.findSiteByURL(url)
}

func (t *txStore) FindSiteByID(_ context.Context, id int64) (*model.Site, error) {
	return t.data.findSiteByID(id)
}

func (t *txStore) ListSites(_ context.Context, f store.SiteFilter) ([]model.Site, error) {
	return t.data.listSites(f)
}

func (t *txStore) UpsertSite(_ context.Context, site *model.Site) (*model.Site, error) {
	return t.data.upsertSite(site)
}

func (t *txStore) DeleteSite(_ context.Context, id int64) error {
	return t.data.deleteSite(id)
}

func (t *txStore) CountSites(context.Context) (int64, error) {
	return int64(len(t.data.sites)), nil
}

func (t *txStore) InsertCourse(_ context.Context, course *model.Course) (int64, error) {
	return t.data.insertCourse(course)
}

func (t *txStore) UpdateCourse(_ context.Context, course *model.Course) error {
	return t.data.updateCourse(course)
}

func (t *txStore) ListCourses(_ context.Context, f store.CourseFilter) ([]model.Course, error) {
	return t.data.listCourses(f)
}

func (t *txStore) DeleteCourse(_ context.Context, id int64) error {
	return t.data.deleteCourse(id)
}

func (t *txStore) DeleteSiteCourses(_ context.Context, siteID int64) error {
	return t.data.deleteSiteCourses(siteID)
}

func (t *txStore) CountCourses(context.Context) (int64, error) {
	return int64(len(t.data.courses)), nil
}

func (t *txStore) CourseContents(_ context.Context, courseID int64) ([]model.CourseContent, error) {
	return t.data.courseContents(courseID)
}

func (t *txStore) CourseOutcomes(_ context.Context, courseID int64) ([]string, error) {
	return t.data.courseOutcomes(courseID)
}

func (t *txStore) ResolveCommunication(_ context.Context, token string) (*model.Communication, error) {
	return t.data.resolveCommunication(token)
}

func (t *txStore) UpsertCommunication(_ context.Context, comm *model.Communication) error {
	return t.data.upsertCommunication(comm)
}

func (t *txStore) DeleteCommunication(_ context.Context, token string) error {
	return t.data.deleteCommunication(token)
}

func (t *txStore) RatingsFor(_ context.Context, courseIDs []int64) (map[int64]model.Rating, error) {
	return t.data.ratingsFor(courseIDs)
}

func (t *txStore) CommentsFor(_ context.Context, courseID int64) ([]model.Comment, error) {
	return t.data.commentsFor(courseID)
}

func (t *txStore) AddComment(_ context.Context, courseID int64, c model.Comment) error {
	t.data.comments[courseID] = append(t.data.comments[courseID], c)
	return nil
}

func (t *txStore) AddRating(_ context.Context, courseID int64, rating int64) error {
	t.data.ratings[courseID] = append(t.data.ratings[courseID], rating)
	return nil
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Store = (*txStore)(nil)
)

func (st *state) findSiteByURL(url string) (*model.Site, error) {
	for _, s := range st.sites {
		if s.URL == url {
			found := cloneSite(s)
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (st *state) findSiteByID(id int64) (*model.Site, error) {
	s, ok := st.sites[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneSite(s)
	return &found, nil
}

func (st *state) listSites(f store.SiteFilter) ([]model.Site, error) {
	var out []model.Site
	for _, s := range st.sites {
		if f.OnlyVisible && !s.Visible {
			continue
		}
		if len(f.URLs) > 0 && !slices.Contains(f.URLs, s.URL) {
			continue
		}
		if f.Search != "" && !matchesAny(f.Search, s.Name, s.Description, s.URL) {
			continue
		}
		out = append(out, cloneSite(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (st *state) upsertSite(site *model.Site) (*model.Site, error) {
	saved := cloneSite(*site)
	if saved.ID == 0 {
		if existing, err := st.findSiteByURL(saved.URL); err == nil {
			saved.ID = existing.ID
		} else {
			saved.ID = st.nextSiteID
			st.nextSiteID++
		}
	}
	st.sites[saved.ID] = cloneSite(saved)
	return &saved, nil
}

func (st *state) deleteSite(id int64) error {
	delete(st.sites, id)
	return nil
}

func (st *state) insertCourse(course *model.Course) (int64, error) {
	saved := cloneCourse(*course)
	saved.ID = st.nextCourseID
	st.nextCourseID++
	st.courses[saved.ID] = saved
	return saved.ID, nil
}

func (st *state) updateCourse(course *model.Course) error {
	if _, ok := st.courses[course.ID]; !ok {
		return store.ErrNotFound
	}
	st.courses[course.ID] = cloneCourse(*course)
	return nil
}

func (st *state) listCourses(f store.CourseFilter) ([]model.Course, error) {
	var out []model.Course
	for _, c := range st.courses {
		if matchCourse(f, c) {
			clone := cloneCourse(c)
			clone.Contents = nil
			clone.Outcomes = nil
			out = append(out, clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matchCourse(f store.CourseFilter, c model.Course) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, c.ID) {
		return false
	}
	if f.SiteID != 0 && c.SiteID != f.SiteID {
		return false
	}
	if len(f.SiteCourseIDs) > 0 && !slices.Contains(f.SiteCourseIDs, c.SiteCourseID) {
		return false
	}
	if f.Coverage != "" && c.Coverage != f.Coverage {
		return false
	}
	if f.LicenceShortName != "" && c.LicenceShortName != f.LicenceShortName {
		return false
	}
	if f.Subject != "" && c.Subject != f.Subject {
		return false
	}
	if f.Audience != "" && c.Audience != f.Audience {
		return false
	}
	if f.EducationalLevel != "" && c.EducationalLevel != f.EducationalLevel {
		return false
	}
	if f.Language != "" && c.Language != f.Language {
		return false
	}
	if f.Enrollable != nil && c.Enrollable != *f.Enrollable {
		return false
	}
	if f.Downloadable != nil && c.Downloadable != *f.Downloadable {
		return false
	}
	if f.PublishedAfter > 0 && c.TimePublished <= f.PublishedAfter {
		return false
	}
	if f.Search != "" && !matchesAny(f.Search, c.FullName, c.ShortName, c.Description) {
		return false
	}
	if f.OnlyVisible && !c.Visible {
		if f.InvisibleSiteID == 0 || c.SiteID != f.InvisibleSiteID {
			return false
		}
	}
	return true
}

func (st *state) deleteCourse(id int64) error {
	delete(st.courses, id)
	delete(st.comments, id)
	delete(st.ratings, id)
	return nil
}

func (st *state) deleteSiteCourses(siteID int64) error {
	for id, c := range st.courses {
		if c.SiteID == siteID {
			_ = st.deleteCourse(id)
		}
	}
	return nil
}

func (st *state) courseContents(courseID int64) ([]model.CourseContent, error) {
	c, ok := st.courses[courseID]
	if !ok {
		return nil, nil
	}
	return append([]model.CourseContent(nil), c.Contents...), nil
}

func (st *state) courseOutcomes(courseID int64) ([]string, error) {
	c, ok := st.courses[courseID]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), c.Outcomes...), nil
}

func (st *state) resolveCommunication(token string) (*model.Communication, error) {
	comm, ok := st.comms[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := comm
	return &found, nil
}

func (st *state) upsertCommunication(comm *model.Communication) error {
	if existing, ok := st.comms[comm.Token]; ok {
		comm.ID = existing.ID
	} else {
		comm.ID = st.nextCommID
		st.nextCommID++
	}
	st.comms[comm.Token] = *comm
	return nil
}

func (st *state) deleteCommunication(token string) error {
	delete(st.comms, token)
	return nil
}

func (st *state) ratingsFor(courseIDs []int64) (map[int64]model.Rating, error) {
	out := make(map[int64]model.Rating, len(courseIDs))
	for _, id := range courseIDs {
		values := st.ratings[id]
		if len(values) == 0 {
			continue
		}
		var sum int64
		for _, v := range values {
			sum += v
		}
		agg := float64(sum) / float64(len(values))
		out[id] = model.Rating{
			Aggregate: &agg,
			Count:     int64(len(values)),
			ScaleID:   model.RatingScaleID,
		}
	}
	return out, nil
}

func (st *state) commentsFor(courseID int64) ([]model.Comment, error) {
	return append([]model.Comment(nil), st.comments[courseID]...), nil
}

func matchesAny(search string, fields ...string) bool {
	needle := strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
