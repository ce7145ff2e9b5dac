// Package model defines the entities persisted by the hub directory.
package model

// Site privacy levels, as sent by registered sites.
const (
	SitePrivacyNotPublished    = "notdisplayed"
	SitePrivacyPublished       = "named"
	SitePrivacyPublishedLinked = "linked"
)

// Course privacy flags. A restricted course hides owner-only fields from
// non-owning callers.
const (
	CoursePrivacyRestricted = 0
	CoursePrivacyPublic     = 1
)

// RatingScaleID identifies the 0-10 scale used for course ratings.
const RatingScaleID = 10

// Site is a remote installation registered with the hub.
//
// Field names follow the wire schema of the registration API; timestamps are
// unix seconds. Users, Courses and the other metric fields carry -1 when the
// site marked them private.
type Site struct {
	ID                       int64   `json:"id" db:"id"`
	Name                     string  `json:"name" db:"name"`
	Description              string  `json:"description" db:"description"`
	ContactName              string  `json:"contactname" db:"contactname"`
	ContactEmail             string  `json:"contactemail" db:"contactemail"`
	ContactPhone             string  `json:"contactphone,omitempty" db:"contactphone"`
	ImageURL                 string  `json:"imageurl,omitempty" db:"imageurl"`
	Privacy                  string  `json:"privacy" db:"privacy"`
	Language                 string  `json:"language" db:"language"`
	URL                      string  `json:"url" db:"url"`
	Users                    float64 `json:"users" db:"users"`
	Courses                  float64 `json:"courses" db:"courses"`
	Street                   string  `json:"street,omitempty" db:"street"`
	RegionCode               string  `json:"regioncode,omitempty" db:"regioncode"`
	CountryCode              string  `json:"countrycode,omitempty" db:"countrycode"`
	Geolocation              string  `json:"geolocation,omitempty" db:"geolocation"`
	Contactable              bool    `json:"contactable" db:"contactable"`
	EmailAlert               bool    `json:"emailalert" db:"emailalert"`
	Enrolments               float64 `json:"enrolments" db:"enrolments"`
	Posts                    float64 `json:"posts" db:"posts"`
	Questions                float64 `json:"questions" db:"questions"`
	Resources                float64 `json:"resources" db:"resources"`
	ParticipantNumberAverage float64 `json:"participantnumberaverage" db:"participantnumberaverage"`
	ModuleNumberAverage      float64 `json:"modulenumberaverage" db:"modulenumberaverage"`
	MoodleVersion            int64   `json:"moodleversion" db:"moodleversion"`
	MoodleRelease            string  `json:"moodlerelease" db:"moodlerelease"`

	// Hub-side state, never taken from the caller.
	Visible        bool   `json:"-" db:"visible"`
	Active         bool   `json:"-" db:"active"`
	PublicationMax *int64 `json:"-" db:"publicationmax"`
	TimeRegistered int64  `json:"-" db:"timeregistered"`
	TimeModified   int64  `json:"-" db:"timemodified"`
}

// Course is a catalog entry published by a site. A course belongs to exactly
// one site; SiteCourseID is the course's id on the publishing site and is
// unique per site, not globally.
type Course struct {
	ID                 int64   `json:"id" db:"id"`
	SiteID             int64   `json:"siteid" db:"siteid"`
	SiteCourseID       int64   `json:"sitecourseid" db:"sitecourseid"`
	FullName           string  `json:"fullname" db:"fullname"`
	ShortName          string  `json:"shortname" db:"shortname"`
	Description        string  `json:"description" db:"description"`
	Language           string  `json:"language" db:"language"`
	PublisherName      string  `json:"publishername" db:"publishername"`
	PublisherEmail     string  `json:"publisheremail" db:"publisheremail"`
	ContributorNames   string  `json:"contributornames" db:"contributornames"`
	Coverage           string  `json:"coverage" db:"coverage"`
	CreatorName        string  `json:"creatorname" db:"creatorname"`
	LicenceShortName   string  `json:"licenceshortname" db:"licenceshortname"`
	Subject            string  `json:"subject" db:"subject"`
	Audience           string  `json:"audience" db:"audience"`
	EducationalLevel   string  `json:"educationallevel" db:"educationallevel"`
	CreatorNotes       string  `json:"creatornotes" db:"creatornotes"`
	CreatorNotesFormat int64   `json:"creatornotesformat" db:"creatornotesformat"`
	DemoURL            *string `json:"demourl,omitempty" db:"demourl"`
	CourseURL          *string `json:"courseurl,omitempty" db:"courseurl"`
	Enrollable         bool    `json:"enrollable" db:"enrollable"`
	Downloadable       bool    `json:"downloadable" db:"downloadable"`
	Screenshots        int64   `json:"screenshots" db:"screenshots"`
	Privacy            int64   `json:"privacy" db:"privacy"`
	Visible            bool    `json:"-" db:"visible"`
	TimePublished      int64   `json:"timepublished" db:"timepublished"`
	TimeModified       int64   `json:"timemodified" db:"timemodified"`

	// Loaded separately from the content/outcome tables.
	Contents []CourseContent `json:"contents,omitempty" db:"-"`
	Outcomes []string        `json:"outcomes,omitempty" db:"-"`
}

// CourseContent is one line item of a course's content listing.
type CourseContent struct {
	ModuleType   string `json:"moduletype" db:"moduletype"`
	ModuleName   string `json:"modulename" db:"modulename"`
	ContentCount int64  `json:"contentcount" db:"contentcount"`
}

// Communication binds an opaque access token to the site holding it. SiteID
// is zero until the first successful registration from RemoteURL.
type Communication struct {
	ID        int64  `db:"id"`
	Token     string `db:"token"`
	SiteID    int64  `db:"siteid"`
	RemoteURL string `db:"remoteurl"`
}

// Comment is a free-text comment attached to a course.
type Comment struct {
	Comment     string `json:"comment" db:"comment"`
	Commentator string `json:"commentator" db:"commentator"`
	Date        int64  `json:"date" db:"date"`
}

// Rating is the aggregate rating of a course. Aggregate is nil when the
// course has no ratings yet.
type Rating struct {
	Aggregate *float64 `json:"aggregate,omitempty" db:"aggregate"`
	Count     int64    `json:"count" db:"count"`
	ScaleID   int64    `json:"scaleid" db:"scaleid"`
}
