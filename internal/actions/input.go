package actions

import (
	"math"
	"slices"

	"github.com/keithlinneman/ephemera/internal/baas"
	"github.com/keithlinneman/ephemera/internal/sanitize"
	"github.com/keithlinneman/ephemera/internal/validate"
)

func copyInput(in validate.Input) validate.Input {
	out := make(validate.Input, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// dropEmpty removes optional keys that are null or "" so they read as absent.
func dropEmpty(in validate.Input, keys ...string) {
	for _, k := range keys {
		if v, ok := in[k]; ok && (v == nil || v == "") {
			delete(in, k)
		}
	}
}

// blank turns absent or null keys into "", the sanitizers' reading of
// missing input. The schema then reports its own message for the field.
func blank(in validate.Input, keys ...string) {
	for _, k := range keys {
		if in[k] == nil {
			in[k] = ""
		}
	}
}

// clean applies fn to the string at key. Other types are left for the schema
// to reject.
func clean(in validate.Input, fn func(string) string, keys ...string) {
	for _, k := range keys {
		if s, ok := in[k].(string); ok {
			in[k] = fn(s)
		}
	}
}

// cleanCoordinate clamps and rounds a present coordinate. Input that cannot
// be read as a finite number becomes NaN so the schema rejects it instead of
// it silently turning into zero.
func cleanCoordinate(in validate.Input, key string) {
	v, ok := in[key]
	if !ok {
		return
	}
	if f, ok := sanitize.Coordinate(v); ok {
		in[key] = f
		return
	}
	in[key] = math.NaN()
}

func cleanUUID(in validate.Input, keys ...string) {
	for _, k := range keys {
		if s, ok := in[k].(string); ok {
			if id, ok := sanitize.UUID(s); ok {
				in[k] = id
			}
		}
	}
}

// row builds a persisted row from accepted output. Empty strings in nullable
// columns are stored as null.
func row(out validate.Output, nullable ...string) baas.Row {
	r := make(baas.Row, len(out))
	for k, v := range out {
		r[k] = v
	}
	for _, k := range nullable {
		if v, ok := r[k]; !ok || v == "" {
			r[k] = nil
		}
	}
	return r
}

// patchFrom builds an update from the keys present in out, leaving the
// identifying keys out. An empty string in a nullable column clears it.
func patchFrom(out validate.Output, keys []string, nullable ...string) baas.Row {
	p := make(baas.Row, len(out))
	for k, v := range out {
		if slices.Contains(keys, k) {
			continue
		}
		if v == "" && slices.Contains(nullable, k) {
			v = nil
		}
		p[k] = v
	}
	return p
}

func sortedKeys(r baas.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func validID(s string) (string, bool) {
	return sanitize.UUID(s)
}
