// Package version carries build metadata for wgmobile binaries and the
// RPC "version" method. Values are stamped with ldflags:
//
//	go build -ldflags "-X github.com/go-i2p/wgmobile/version.Version=1.0.0 \
//	  -X github.com/go-i2p/wgmobile/version.GitCommit=$(git rev-parse --short HEAD) \
//	  -X github.com/go-i2p/wgmobile/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "runtime"

// Stamped at build time. Development builds report "dev".
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Info is the build metadata in structured form.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
	GoVersion string `json:"goVersion"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// Full returns "version[-commit][ (buildtime)]".
func Full() string {
	v := Version
	if GitCommit != "" {
		v += "-" + GitCommit
	}
	if BuildTime != "" {
		v += " (" + BuildTime + ")"
	}
	return v
}
