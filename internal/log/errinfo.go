package log

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

const maxStackDepth = 64

// implemented by xerrors wrap and stack types
type hasPC interface{ PC() uintptr }

type hasStack interface{ StackPCs() []uintptr }

// errorFields are appended to every Error record with a non-nil err.
func (s *slogLogger) errorFields(err error) []any {
	surface, root := classifyTypes(err)
	kv := []any{
		"err", err,
		"error_type", surface,
		"cause_type", root,
	}
	if chain := errorChain(err); len(chain) > 0 {
		kv = append(kv, "error_chain", chain)
	}
	if s.includeErrorLinks {
		kv = append(kv, "error_links", chainLinks(err, s.maxErrorLinks))
	}
	return kv
}

// errorChain lists each distinct message from outermost to root, then the
// members of an errors.Join at the top.
func errorChain(err error) []string {
	out := make([]string, 0, 8)
	var prev string
	add := func(msg string) {
		if msg != prev {
			out = append(out, msg)
			prev = msg
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		add(e.Error())
	}
	if m, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range m.Unwrap() {
			add(e.Error())
		}
	}
	return out
}

// chainLinks locates each wrap in the chain. The outermost error is always
// listed; deeper ones only when they carry a position.
func chainLinks(err error, max int) []map[string]any {
	links := make([]map[string]any, 0, 8)
	for depth, e := 0, err; e != nil && (max <= 0 || depth < max); depth, e = depth+1, errors.Unwrap(e) {
		link := map[string]any{"msg": e.Error()}
		fr, ok := errorFrame(e)
		if ok {
			link["func"], link["file"], link["line"] = fr.Function, fr.File, fr.Line
		}
		if depth == 0 || ok {
			links = append(links, link)
		}
	}
	return links
}

// errorFrame prefers the single PC from Wrap, then the first frame outside
// logging and xerrors in a captured stack.
func errorFrame(e error) (runtime.Frame, bool) {
	if hp, ok := e.(hasPC); ok {
		if pc := hp.PC(); pc != 0 {
			fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
			return fr, true
		}
		return runtime.Frame{}, false
	}
	hs, ok := e.(hasStack)
	if !ok {
		return runtime.Frame{}, false
	}
	frames := runtime.CallersFrames(hs.StackPCs())
	for {
		fr, more := frames.Next()
		if fr.Function != "" && !internalFrame(fr.Function) && !strings.Contains(fr.Function, "/internal/xerrors.") {
			return fr, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

func internalFrame(fn string) bool {
	return strings.HasPrefix(fn, "log/slog.") || strings.Contains(fn, "/internal/log.")
}

// renderPCs prints func and file:line pairs, starting at the first frame
// outside slog and this package and stopping at the runtime.
func renderPCs(pcs []uintptr) string {
	frames := runtime.CallersFrames(pcs)
	var b strings.Builder
	started := false
	for {
		fr, more := frames.Next()
		if strings.HasPrefix(fr.Function, "runtime.") {
			break
		}
		if !started && fr.Function != "" && !internalFrame(fr.Function) {
			started = true
		}
		if started {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", fr.Function, fr.File, fr.Line)
		}
		if !more {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// classifyTypes returns the first type that is not a wrapper (xerrors or
// fmt.Errorf) and the type of the root cause.
func classifyTypes(err error) (surface, root string) {
	if err == nil {
		return "", ""
	}
	var last error
	for e := err; e != nil; e = errors.Unwrap(e) {
		last = e
		if surface == "" && !isWrapper(e) {
			surface = reflect.TypeOf(e).String()
		}
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}
	return surface, fmt.Sprintf("%T", last)
}

func isWrapper(e error) bool {
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	pkg := t.PkgPath()
	return strings.Contains(pkg, "/internal/xerrors") || (pkg == "fmt" && t.Name() == "wrapError")
}
