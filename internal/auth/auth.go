// Package auth resolves opaque access tokens to the sites holding them and
// threads the caller identity through the request context. There is no
// process-global "current caller": handlers read it from the context.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/store"
)

// Caller identifies who is invoking an operation. A zero Caller is a public
// client. Communication is set when the token resolved; Site additionally
// when the communication's remote URL matches a registered site.
type Caller struct {
	Token         string
	Communication *model.Communication
	Site          *model.Site
}

// Resolved reports whether the token resolved to a communication binding.
func (c Caller) Resolved() bool { return c.Communication != nil }

// Registered reports whether the caller is a registered site.
func (c Caller) Registered() bool { return c.Site != nil }

// OwnsCourse reports whether the caller is the publishing site of the course.
func (c Caller) OwnsCourse(course *model.Course) bool {
	return c.Site != nil && c.Site.ID == course.SiteID
}

type callerKey struct{}

// WithCaller returns a context carrying the caller identity.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller stored by the middleware, or the
// public caller when none is set.
func CallerFromContext(ctx context.Context) Caller {
	caller, _ := ctx.Value(callerKey{}).(Caller)
	return caller
}

// Resolver is the slice of the directory store the middleware needs.
type Resolver interface {
	ResolveCommunication(ctx context.Context, token string) (*model.Communication, error)
	FindSiteByURL(ctx context.Context, url string) (*model.Site, error)
}

// Middleware resolves the request token and attaches the caller to the
// context. An unresolvable token still yields a caller (with Token set but
// no communication): read operations treat it as public, write operations
// reject it as an invalid token. Resolution failures other than "not found"
// abort the request.
func Middleware(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			caller := Caller{Token: token}

			if token != "" {
				comm, err := resolver.ResolveCommunication(r.Context(), token)
				switch {
				case err == nil:
					caller.Communication = comm
					site, err := resolver.FindSiteByURL(r.Context(), comm.RemoteURL)
					if err != nil && !errors.Is(err, store.ErrNotFound) {
						writeResolveFailure(w)
						return
					}
					caller.Site = site
				case errors.Is(err, store.ErrNotFound):
					// Leave the caller unresolved.
				default:
					writeResolveFailure(w)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// writeResolveFailure writes the error envelope used across the API. The
// middleware cannot depend on the response helpers without a cycle, so the
// envelope is written here.
func writeResolveFailure(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	//nolint:errcheck // nothing to do about a failed error write
	json.NewEncoder(w).Encode(map[string]string{
		"error": "failed to resolve caller",
		"code":  "internal",
	})
}

// ExtractToken pulls the access token from the Authorization header, falling
// back to the wstoken query parameter existing site clients send.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("wstoken")
}
