package validate

import "strings"

// Issue is a single validation failure on a field path.
type Issue struct {
	Path    []string
	Message string
}

// Field returns the dotted path of the issue, e.g. "page_date".
func (i Issue) Field() string {
	return strings.Join(i.Path, ".")
}

// Issues is an ordered list of validation failures. Order follows schema
// declaration order, then rule order within a field.
type Issues []Issue

// First returns the issue that should be shown to the user. It returns the
// zero Issue when there are none.
func (is Issues) First() Issue {
	if len(is) == 0 {
		return Issue{}
	}
	return is[0]
}

// Error implements error using the first message only.
func (is Issues) Error() string {
	if len(is) == 0 {
		return "invalid input"
	}
	return is[0].Message
}

// Messages returns every message in order.
func (is Issues) Messages() []string {
	out := make([]string, len(is))
	for i, issue := range is {
		out[i] = issue.Message
	}
	return out
}
