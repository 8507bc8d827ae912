// Package xerrors attaches call sites to errors so the logger can report
// where a failure started and each place it was wrapped on the way up.
//
// New and Newf capture a full stack. Wrap and Wrapf record a single frame.
// EnsureTrace stacks errors from other packages (net, redis, the AWS SDK)
// exactly once.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

type withStack struct {
	err error
	pcs []uintptr
}

func (w *withStack) Error() string       { return w.err.Error() }
func (w *withStack) Unwrap() error       { return w.err }
func (w *withStack) StackPCs() []uintptr { return w.pcs }

type wrap struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrap) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrap) Unwrap() error { return w.err }
func (w *wrap) PC() uintptr   { return w.pc }

// skip counts frames above the caller of the exported constructor.
func stacked(err error, skip int) error {
	pcs := make([]uintptr, maxStackDepth)
	// +2 skips runtime.Callers and stacked
	n := runtime.Callers(skip+2, pcs)
	return &withStack{err: err, pcs: pcs[:n]}
}

func wrapped(err error, msg string) error {
	var pcs [1]uintptr
	// runtime.Callers, wrapped, Wrap/Wrapf
	runtime.Callers(3, pcs[:])
	return &wrap{err: err, msg: msg, pc: pcs[0]}
}

func New(msg string) error { return stacked(errors.New(msg), 1) }

func Newf(format string, args ...any) error { return stacked(fmt.Errorf(format, args...), 1) }

// Wrap returns nil for a nil err so it can wrap a call's result directly.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return wrapped(err, msg)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return wrapped(err, fmt.Sprintf(format, args...))
}

// EnsureTrace adds a stack unless some error in the chain already has one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return stacked(err, 1)
}
