package httpmw

import "net/http"

// Stack is an ordered middleware list, outermost first. Nil entries are
// skipped so optional middleware can be listed inline.
type Stack []func(http.Handler) http.Handler

// Then wraps h in every middleware of s.
func (s Stack) Then(h http.Handler) http.Handler {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != nil {
			h = s[i](h)
		}
	}
	return h
}
