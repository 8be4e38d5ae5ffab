package version

import (
	"fmt"
	"runtime"
)

// Name is the service name reported by /version and /api.
const Name = "classpoll"

// Protocol is the websocket wire protocol revision. Clients compare it
// before joining; bump it when an event or action payload changes shape.
const Protocol = 1

// Build information, injected via ldflags at build time
var (
	// Version is the git tag or semantic version
	Version = "dev"
	// Commit is the git commit SHA
	Commit = "unknown"
	// BuildTime is the ISO 8601 build timestamp
	BuildTime = "unknown"
)

// Info holds complete build information
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Protocol  int    `json:"protocol"`
}

// Get returns the current build information
func Get() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Protocol:  Protocol,
	}
}

// String renders the info for startup logs.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (%s, built %s, %s, protocol v%d)", i.Name, i.Version, i.Commit, i.BuildTime, i.GoVersion, i.Protocol)
}
