// Package version reports the build revision shown in logs and the health
// endpoint.
package version

import (
	"runtime/debug"
	"sync"
)

// revision may be stamped at build time:
//
//	go build -ldflags "-X github.com/codeready-toolchain/oasis/pkg/version.revision=<sha>"
//
// Container builds use this because the image carries no VCS metadata.
var revision string

// Get returns the short revision identifying this build: the stamped value,
// the VCS revision recorded by the toolchain, or "dev" when neither exists
// (go test, non-git checkouts). Builds from a modified tree get a "-dirty"
// suffix.
var Get = sync.OnceValue(func() string {
	rev, dirty := revision, false
	if rev == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					rev = s.Value
				case "vcs.modified":
					dirty = s.Value == "true"
				}
			}
		}
	}
	if rev == "" {
		return "dev"
	}
	if len(rev) > 8 {
		rev = rev[:8]
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
})

// Full returns the service name with the revision, e.g. "oasis/3f2c91aa".
func Full() string { return "oasis/" + Get() }
