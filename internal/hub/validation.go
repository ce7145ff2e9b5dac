package hub

import (
	"fmt"
	"net/mail"
	"net/url"

	"github.com/mouneyrac/moodle-local-hub/internal/model"
)

// validateSite checks a site registration payload. Every failed field is
// reported so callers can fix the whole payload in one round trip.
func validateSite(site *model.Site) error {
	var bad []string

	if site.Name == "" {
		bad = append(bad, "name")
	}
	if site.Description == "" {
		bad = append(bad, "description")
	}
	if !validHTTPURL(site.URL) {
		bad = append(bad, "url")
	}
	if site.ContactName == "" {
		bad = append(bad, "contactname")
	}
	if !validEmail(site.ContactEmail) {
		bad = append(bad, "contactemail")
	}
	switch site.Privacy {
	case model.SitePrivacyNotPublished, model.SitePrivacyPublished, model.SitePrivacyPublishedLinked:
	default:
		bad = append(bad, "privacy")
	}
	if site.Language == "" {
		bad = append(bad, "language")
	}
	if site.ImageURL != "" && !validHTTPURL(site.ImageURL) {
		bad = append(bad, "imageurl")
	}

	// Metric fields carry -1 for "not shared"; anything below that is junk.
	metrics := map[string]float64{
		"users":                    site.Users,
		"courses":                  site.Courses,
		"enrolments":               site.Enrolments,
		"posts":                    site.Posts,
		"questions":                site.Questions,
		"resources":                site.Resources,
		"participantnumberaverage": site.ParticipantNumberAverage,
		"modulenumberaverage":      site.ModuleNumberAverage,
	}
	for field, value := range metrics {
		if value < -1 {
			bad = append(bad, field)
		}
	}

	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}
	return nil
}

// validateSubmissions checks a whole publication batch. Field names are
// prefixed with the batch index so the caller can locate the bad entry.
func validateSubmissions(submissions []CourseSubmission) error {
	var bad []string
	for i := range submissions {
		for _, field := range courseFieldErrors(&submissions[i]) {
			bad = append(bad, fmt.Sprintf("courses[%d].%s", i, field))
		}
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}
	return nil
}

func courseFieldErrors(sub *CourseSubmission) []string {
	var bad []string

	if sub.SiteCourseID <= 0 {
		bad = append(bad, "sitecourseid")
	}
	if sub.FullName == "" {
		bad = append(bad, "fullname")
	}
	if sub.ShortName == "" {
		bad = append(bad, "shortname")
	}
	if sub.Description == "" {
		bad = append(bad, "description")
	}
	if sub.Language == "" {
		bad = append(bad, "language")
	}
	if sub.PublisherName == "" {
		bad = append(bad, "publishername")
	}
	if !validEmail(sub.PublisherEmail) {
		bad = append(bad, "publisheremail")
	}
	if !sub.Enrollable && !sub.Downloadable {
		bad = append(bad, "enrollable")
	}
	if sub.Privacy != model.CoursePrivacyRestricted && sub.Privacy != model.CoursePrivacyPublic {
		bad = append(bad, "privacy")
	}
	if sub.Screenshots < 0 {
		bad = append(bad, "screenshots")
	}
	if sub.DemoURL != nil && !validHTTPURL(*sub.DemoURL) {
		bad = append(bad, "demourl")
	}
	if sub.CourseURL != nil && !validHTTPURL(*sub.CourseURL) {
		bad = append(bad, "courseurl")
	}
	for j, content := range sub.Contents {
		if content.ModuleType == "" || content.ModuleName == "" {
			bad = append(bad, fmt.Sprintf("contents[%d]", j))
		}
	}
	return bad
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validEmail(address string) bool {
	if address == "" {
		return false
	}
	_, err := mail.ParseAddress(address)
	return err == nil
}
