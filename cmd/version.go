package cmd

import (
	"fmt"
	"runtime/debug"
	"time"
)

// ResolveVersion returns stamped when a release build set it. Otherwise it
// reads the module and VCS stamps Go records, so a till built from a
// checkout reports the commit it runs.
func ResolveVersion(stamped string) string {
	if stamped != "" && stamped != "dev" {
		return stamped
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	return versionFromBuild(info)
}

func versionFromBuild(info *debug.BuildInfo) string {
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	vcs := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		vcs[s.Key] = s.Value
	}
	rev := vcs["vcs.revision"]
	if rev == "" {
		return "dev"
	}
	if len(rev) > 8 {
		rev = rev[:8]
	}
	v := "dev-" + rev
	if vcs["vcs.modified"] == "true" {
		v += "-dirty"
	}
	if t, err := time.Parse(time.RFC3339, vcs["vcs.time"]); err == nil {
		v = fmt.Sprintf("%s (%s)", v, t.UTC().Format("2006-01-02"))
	}
	return v
}
