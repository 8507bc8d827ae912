package log

import (
	"log/slog"
	"strings"
)

// Redacted replaces the value of any attribute whose key is in the redact set.
const Redacted = "[REDACTED]"

// DefaultRedactKeys never reach the log output with their real value.
// Keys are compared case-insensitively.
var DefaultRedactKeys = []string{
	"password",
	"token",
	"authorization",
	"cookie",
	"redis_password",
}

func redactSet(extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(DefaultRedactKeys)+len(extra))
	for _, k := range DefaultRedactKeys {
		set[k] = struct{}{}
	}
	for _, k := range extra {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// redactAttr is a slog ReplaceAttr func.
func redactAttr(set map[string]struct{}) func(groups []string, a slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		if _, ok := set[strings.ToLower(a.Key)]; ok {
			return slog.String(a.Key, Redacted)
		}
		return a
	}
}
