// Package authz gates hub operations on the capabilities granted to the
// caller. Capabilities keep the permission names existing site clients were
// provisioned with, so grants configured for the old hub carry over.
package authz

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mouneyrac/moodle-local-hub/internal/auth"
)

// Capabilities a caller may hold.
const (
	CapabilityView             = "local/hub:view"
	CapabilityViewInfo         = "local/hub:viewinfo"
	CapabilityUpdateInfo       = "local/hub:updateinfo"
	CapabilityRegisterCourse   = "local/hub:registercourse"
	CapabilityUnregisterCourse = "local/hub:unregistercourse"
)

// Operations exposed by the hub API.
const (
	OpGetInfo           = "get_info"
	OpUpdateSiteInfo    = "update_site_info"
	OpUnregisterSite    = "unregister_site"
	OpRegisterCourses   = "register_courses"
	OpUnregisterCourses = "unregister_courses"
	OpGetCourses        = "get_courses"
	OpGetSites          = "get_sites"
)

// operationCapabilities maps each operation to the single capability it
// requires. Unregistering a site is an update of that site's registration,
// hence updateinfo rather than a dedicated capability.
var operationCapabilities = map[string]string{
	OpGetInfo:           CapabilityViewInfo,
	OpUpdateSiteInfo:    CapabilityUpdateInfo,
	OpUnregisterSite:    CapabilityUpdateInfo,
	OpRegisterCourses:   CapabilityRegisterCourse,
	OpUnregisterCourses: CapabilityUnregisterCourse,
	OpGetCourses:        CapabilityView,
	OpGetSites:          CapabilityView,
}

// CapabilityFor returns the capability required by the named operation.
func CapabilityFor(operation string) (string, bool) {
	capability, ok := operationCapabilities[operation]
	return capability, ok
}

// ErrUnauthorized is returned when the caller lacks the required capability.
var ErrUnauthorized = errors.New("operation not permitted")

// Checker decides whether a caller holds a capability.
type Checker interface {
	HasCapability(caller auth.Caller, capability string) bool
}

// StaticChecker grants capabilities from two fixed sets: one for anonymous or
// unresolved callers, one for registered sites. This mirrors role assignment
// on the old hub where public users got a viewer role and each registered
// site a publisher role.
type StaticChecker struct {
	anonymous map[string]struct{}
	site      map[string]struct{}
}

// NewStaticChecker builds a checker from the two capability lists.
func NewStaticChecker(anonymous, site []string) *StaticChecker {
	return &StaticChecker{
		anonymous: toSet(anonymous),
		site:      toSet(site),
	}
}

// DefaultChecker grants read capabilities to everyone and the full set to
// registered sites.
func DefaultChecker() *StaticChecker {
	return NewStaticChecker(
		[]string{CapabilityView, CapabilityViewInfo},
		[]string{
			CapabilityView,
			CapabilityViewInfo,
			CapabilityUpdateInfo,
			CapabilityRegisterCourse,
			CapabilityUnregisterCourse,
		},
	)
}

// HasCapability reports whether the caller holds the capability. Any caller
// with a provisioned token gets the site grants; a site must be able to hold
// updateinfo before its first registration completes. Callers whose token did
// not resolve only get the anonymous grants.
func (c *StaticChecker) HasCapability(caller auth.Caller, capability string) bool {
	grants := c.anonymous
	if caller.Resolved() || caller.Registered() {
		grants = c.site
	}
	_, ok := grants[capability]
	return ok
}

func toSet(capabilities []string) map[string]struct{} {
	set := make(map[string]struct{}, len(capabilities))
	for _, capability := range capabilities {
		set[capability] = struct{}{}
	}
	return set
}

// Require returns middleware rejecting requests whose caller lacks the
// capability for the operation. Unknown operations are denied outright.
func Require(checker Checker, operation string) func(http.Handler) http.Handler {
	capability, known := CapabilityFor(operation)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := auth.CallerFromContext(r.Context())
			if !known || !checker.HasCapability(caller, capability) {
				writeDenied(w, capability)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeDenied(w http.ResponseWriter, capability string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	//nolint:errcheck // nothing to do about a failed error write
	json.NewEncoder(w).Encode(map[string]string{
		"error":      ErrUnauthorized.Error(),
		"code":       "unauthorized",
		"capability": capability,
	})
}
