// Package v1 provides the hub directory API v1 endpoints.
package v1

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mouneyrac/moodle-local-hub/internal/api/common"
	"github.com/mouneyrac/moodle-local-hub/internal/auth"
	"github.com/mouneyrac/moodle-local-hub/internal/authz"
	"github.com/mouneyrac/moodle-local-hub/internal/hub"
	"github.com/mouneyrac/moodle-local-hub/internal/model"
)

// Routes handles HTTP requests for the hub API v1 endpoints.
type Routes struct {
	service hub.Service
}

// NewRoutes creates a new Routes instance with the given service.
func NewRoutes(svc hub.Service) *Routes {
	return &Routes{
		service: svc,
	}
}

// Router creates and configures the HTTP router for the hub API v1 endpoints.
// The auth middleware must already have run; authorization is applied here
// per operation.
func Router(svc hub.Service, checker authz.Checker) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()

	r.With(authz.Require(checker, authz.OpGetInfo)).Get("/info", routes.getInfo)
	r.With(authz.Require(checker, authz.OpGetSites)).Get("/sites", routes.getSites)
	r.With(authz.Require(checker, authz.OpUpdateSiteInfo)).Post("/sites", routes.updateSiteInfo)
	r.With(authz.Require(checker, authz.OpUnregisterSite)).Delete("/site", routes.unregisterSite)
	r.With(authz.Require(checker, authz.OpGetCourses)).Get("/courses", routes.getCourses)
	r.With(authz.Require(checker, authz.OpRegisterCourses)).Post("/courses", routes.registerCourses)
	r.With(authz.Require(checker, authz.OpUnregisterCourses)).Post("/courses/unregister", routes.unregisterCourses)

	return r
}

func (routes *Routes) getInfo(w http.ResponseWriter, r *http.Request) {
	info, err := routes.service.GetInfo(r.Context())
	if err != nil {
		common.MapServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, info, http.StatusOK)
}

func (routes *Routes) updateSiteInfo(w http.ResponseWriter, r *http.Request) {
	var site model.Site
	if err := json.NewDecoder(r.Body).Decode(&site); err != nil {
		common.WriteError(w, http.StatusBadRequest, "badrequest", "invalid JSON body", nil)
		return
	}

	saved, err := routes.service.UpdateSiteInfo(r.Context(), auth.CallerFromContext(r.Context()), &site)
	if err != nil {
		common.MapServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, saved, http.StatusOK)
}

func (routes *Routes) unregisterSite(w http.ResponseWriter, r *http.Request) {
	if err := routes.service.UnregisterSite(r.Context(), auth.CallerFromContext(r.Context())); err != nil {
		common.MapServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (routes *Routes) registerCourses(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Courses []hub.CourseSubmission `json:"courses"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.WriteError(w, http.StatusBadRequest, "badrequest", "invalid JSON body", nil)
		return
	}
	if len(body.Courses) == 0 {
		common.WriteError(w, http.StatusBadRequest, "badrequest", "courses must not be empty", nil)
		return
	}

	ids, err := routes.service.RegisterCourses(r.Context(), auth.CallerFromContext(r.Context()), body.Courses)
	if err != nil {
		common.MapServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, map[string][]int64{"courseids": ids}, http.StatusCreated)
}

func (routes *Routes) unregisterCourses(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CourseIDs []int64 `json:"courseids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.WriteError(w, http.StatusBadRequest, "badrequest", "invalid JSON body", nil)
		return
	}

	if err := routes.service.UnregisterCourses(r.Context(), auth.CallerFromContext(r.Context()), body.CourseIDs); err != nil {
		common.MapServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (routes *Routes) getCourses(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	q := hub.CourseQuery{
		Search: query.Get("search"),
		Options: hub.CourseQueryOptions{
			Coverage:         query.Get("coverage"),
			LicenceShortName: query.Get("licenceshortname"),
			Subject:          query.Get("subject"),
			Audience:         query.Get("audience"),
			EducationalLevel: query.Get("educationallevel"),
			Language:         query.Get("language"),
		},
	}

	var err error
	if q.Enrollable, err = parseBoolParam(query.Get("enrollable")); err != nil {
		common.WriteError(w, http.StatusBadRequest, "badrequest", "invalid enrollable parameter", nil)
		return
	}
	if q.Downloadable, err = parseBoolParam(query.Get("downloadable")); err != nil {
		common.WriteError(w, http.StatusBadRequest, "badrequest", "invalid downloadable parameter", nil)
		return
	}
	if q.Options.IDs, err = parseIDList(query["ids"]); err != nil {
		common.WriteError(w, http.StatusBadRequest, "badrequest", "invalid ids parameter", nil)
		return
	}
	if q.Options.SiteCourseIDs, err = parseIDList(query["sitecourseids"]); err != nil {
		common.WriteError(w, http.StatusBadRequest, "badrequest", "invalid sitecourseids parameter", nil)
		return
	}
	if all, err := parseBoolParam(query.Get("allsitecourses")); err != nil {
		common.WriteError(w, http.StatusBadRequest, "badrequest", "invalid allsitecourses parameter", nil)
		return
	} else if all != nil {
		q.Options.AllSiteCourses = *all
	}

	courses, err := routes.service.GetCourses(r.Context(), auth.CallerFromContext(r.Context()), q)
	if err != nil {
		common.MapServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, map[string]any{"courses": courses}, http.StatusOK)
}

func (routes *Routes) getSites(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sites, err := routes.service.GetSites(r.Context(), auth.CallerFromContext(r.Context()), hub.SiteQuery{
		Search: query.Get("search"),
		URLs:   query["urls"],
	})
	if err != nil {
		common.MapServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, map[string]any{"sites": sites}, http.StatusOK)
}

// parseBoolParam parses an optional boolean query parameter. Absent means
// "not filtered".
func parseBoolParam(raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseIDList parses a repeated integer query parameter.
func parseIDList(raw []string) ([]int64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
