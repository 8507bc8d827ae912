package audit

import "time"

// Kind identifies the type of an audit event.
type Kind string

const (
	KindSignInAttempt Kind = "auth.signin.attempt"
	KindSignInSuccess Kind = "auth.signin.success"
	KindSignInFailure Kind = "auth.signin.failure"
	KindSignUpAttempt Kind = "auth.signup.attempt"
	KindSignUpSuccess Kind = "auth.signup.success"
	KindSignUpFailure Kind = "auth.signup.failure"
	KindSignOut       Kind = "auth.signout"

	KindPageCreate Kind = "page.create"
	KindPageUpdate Kind = "page.update"
	KindPageDelete Kind = "page.delete"

	KindMarkerCreate Kind = "marker.create"
	KindMarkerUpdate Kind = "marker.update"
	KindMarkerDelete Kind = "marker.delete"

	KindTimelineCreate Kind = "timeline.create"
	KindTimelineUpdate Kind = "timeline.update"
	KindTimelineDelete Kind = "timeline.delete"

	KindPageTimelinesCreate Kind = "page_timelines.create"
	KindPageTimelinesUpdate Kind = "page_timelines.update"
	KindPageTimelinesDelete Kind = "page_timelines.delete"

	KindValidationFailure Kind = "validation.failure"
	KindRateLimitExceeded Kind = "ratelimit.exceeded"
	KindXSSAttempt        Kind = "security.xss_attempt"
)

// Resource is a kind of stored object that DataChange reports on.
type Resource string

const (
	ResourcePage          Resource = "page"
	ResourceMarker        Resource = "marker"
	ResourceTimeline      Resource = "timeline"
	ResourcePageTimelines Resource = "page_timelines"
)

// Op is a data change operation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is a single audit record. Events are write-only.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      Kind           `json:"event"`
	UserID    string         `json:"user_id,omitempty"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Success   bool           `json:"success"`
}

// Actor describes who triggered an event.
type Actor struct {
	UserID    string
	IP        string
	UserAgent string
}
