package version

import (
	"fmt"
	"runtime/debug"
)

// AppName is the service name used in logs, traces, profiles and build_info.
const AppName = "ephemera"

// Set at link time with -ldflags "-X".
var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildId    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	AppName    string `json:"app"`
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildId    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

func Get() Info {
	out := Info{
		AppName:    AppName,
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildId:    BuildId,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out = out.withBuildInfo(bi)
	}
	return out
}

// withBuildInfo fills gaps from the toolchain's embedded vcs stamp.
// Link-time values win; vcs.modified is only trusted when present.
func (i Info) withBuildInfo(bi *debug.BuildInfo) Info {
	if bi.GoVersion != "" {
		i.GoVersion = bi.GoVersion
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "none" && s.Value != "" {
				i.Commit = s.Value
			}
		case "vcs.time":
			if i.BuildDate == "" {
				i.BuildDate = s.Value
			}
			if i.CommitDate == "" {
				i.CommitDate = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" || s.Value == "false" {
				dirty := s.Value == "true"
				i.VCSDirty = &dirty
			}
		}
	}
	return i
}

// Dirty reports false when the tree state is unknown.
func (i Info) Dirty() bool { return i.VCSDirty != nil && *i.VCSDirty }

// String is the -V output.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)",
		i.AppName, i.Version, i.Commit, i.CommitDate, i.BuildId, i.BuildDate, i.GoVersion, i.Dirty())
}

// LogFields is the startup log line's key/value set.
func (i Info) LogFields() []any {
	return []any{
		"version", i.Version,
		"commit", i.Commit,
		"commit_date", i.CommitDate,
		"build_id", i.BuildId,
		"build_date", i.BuildDate,
		"go_version", i.GoVersion,
		"vcs_dirty", i.Dirty(),
	}
}
