package validate

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var (
	emailPattern    = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$")
	usernamePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(?:_[a-z0-9]+)*$`)
)

// Visibilities are the accepted values for page and timeline visibility.
var Visibilities = []string{"private", "public", "unlisted"}

const (
	DefaultTimelineColor = "#8b4513"
	DefaultTimelineIcon  = "📁"
)

const msgVisibility = "Invalid enum value. Expected 'private' | 'public' | 'unlisted'"

// safeText is an optional string capped at limit runes that must not carry
// script content.
func safeText(name string, limit int) Field {
	return Field{
		Name:     name,
		Optional: true,
		Rules: []Rule{
			String(MsgExpectedString),
			MaxLen(limit, fmt.Sprintf("Max %d characters", limit)),
			SafeText(MsgInvalidContent),
		},
	}
}

func lower(v any) any {
	if s, ok := v.(string); ok {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return v
}

func coordinate(name, label string) Field {
	return Field{
		Name: name,
		Rules: []Rule{
			Number(label + " must be a finite number"),
			Finite(label + " must be a finite number"),
			Min(0, label+" must be >= 0"),
			Max(1, label+" must be <= 1"),
		},
	}
}

// partial marks every field optional, for updates that carry only changed keys.
func partial(fields []Field) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		f.Optional = true
		f.Default = nil
		out[i] = f
	}
	return out
}

// requiring marks the named fields required again after partial.
func requiring(fields []Field, names ...string) []Field {
	for i := range fields {
		if slices.Contains(names, fields[i].Name) {
			fields[i].Optional = false
		}
	}
	return fields
}

func withID(msg string, fields []Field) []Field {
	id := Field{Name: "id", Rules: []Rule{String(msg), UUID(msg)}}
	return append([]Field{id}, fields...)
}

var (
	emailField = Field{
		Name: "email",
		Rules: []Rule{
			String(MsgExpectedString),
			MinLen(1, "Email is required"),
			MaxLen(254, "Email too long"),
			Pattern(emailPattern, "Valid email required"),
		},
		Transform: lower,
	}

	passwordField = Field{
		Name: "password",
		Rules: []Rule{
			String(MsgExpectedString),
			MinLen(6, "At least 6 characters"),
			MaxLen(128, "Password too long"),
		},
	}

	usernameField = Field{
		Name: "username",
		Rules: []Rule{
			String(MsgExpectedString),
			MinLen(3, "Min 3 characters"),
			MaxLen(30, "Max 30 characters"),
			Pattern(usernamePattern, "Must start with letter, only lowercase letters, numbers, underscores"),
			NotIn(reservedUsernames, MsgUnavailableName),
		},
		Transform: lower,
	}

	displayNameField = func() Field {
		f := safeText("display_name", 80)
		f.Nullable = true
		return f
	}()

	pageFields = []Field{
		safeText("title", 120),
		{
			Name: "page_date",
			Rules: []Rule{
				String(MsgExpectedString),
				Date(MsgInvalidDate),
				DateRange(MsgDateOutOfRange),
			},
		},
		safeText("caption", 500),
		{
			Name:  "visibility",
			Rules: []Rule{String(msgVisibility), OneOf(Visibilities, msgVisibility)},
		},
	}

	markerFields = []Field{
		{
			Name:  "page_id",
			Rules: []Rule{String("Invalid page ID"), UUID("Invalid page ID")},
		},
		coordinate("x", "X"),
		coordinate("y", "Y"),
		{
			Name: "label",
			Rules: []Rule{
				String(MsgExpectedString),
				MaxLen(120, "Max 120 characters"),
				SafeText(MsgInvalidContent),
				TrimmedMinLen(1, "Label is required"),
			},
		},
		safeText("note", 500),
		safeText("category", 80),
		{
			Name:       "source_date",
			Optional:   true,
			AllowEmpty: true,
			Rules:      []Rule{String(MsgExpectedString), Date("Invalid date format")},
		},
		safeText("source_location", 120),
	}

	timelineFields = []Field{
		{
			Name: "name",
			Rules: []Rule{
				String(MsgExpectedString),
				MinLen(1, "Name is required"),
				MaxLen(100, "Name must be 100 characters or less"),
			},
		},
		{
			Name:     "description",
			Optional: true,
			Nullable: true,
			Rules: []Rule{
				String(MsgExpectedString),
				MaxLen(500, "Description must be 500 characters or less"),
			},
		},
		{
			Name:    "color",
			Default: DefaultTimelineColor,
			Rules:   []Rule{String(MsgExpectedString), HexColor("Color must be a valid hex color")},
		},
		{
			Name:    "icon",
			Default: DefaultTimelineIcon,
			Rules:   []Rule{String(MsgExpectedString), MaxLen(10, "Icon must be 10 characters or less")},
		},
		{
			Name:    "visibility",
			Default: "private",
			Rules:   []Rule{String(msgVisibility), OneOf(Visibilities, msgVisibility)},
		},
	}
)

// Named schemas. Field order is the order issues are reported in.
var (
	SignIn = Schema{
		Name:   "signin",
		Fields: []Field{emailField, passwordField},
	}

	SignUp = Schema{
		Name:   "signup",
		Fields: []Field{emailField, passwordField, usernameField, displayNameField},
	}

	Page = Schema{
		Name:   "page",
		Fields: pageFields,
	}

	PageUpdate = Schema{
		Name:   "page_update",
		Fields: withID("Invalid page ID", partial(pageFields)),
	}

	Marker = Schema{
		Name:   "marker",
		Fields: markerFields,
	}

	MarkerUpdate = Schema{
		Name:   "marker_update",
		Fields: withID("Invalid marker or page ID", requiring(partial(markerFields), "page_id")),
	}

	Timeline = Schema{
		Name:   "timeline",
		Fields: timelineFields,
	}

	TimelineUpdate = Schema{
		Name:   "timeline_update",
		Fields: withID("Invalid timeline ID", partial(timelineFields)),
	}
)

// Lookup returns a named schema.
func Lookup(name string) (Schema, bool) {
	for _, s := range []Schema{SignIn, SignUp, Page, PageUpdate, Marker, MarkerUpdate, Timeline, TimelineUpdate} {
		if s.Name == name {
			return s, true
		}
	}
	return Schema{}, false
}
