// Package buildinfo carries the wobblecap build identity. The CLI prints it
// through the cobra version template and the HTTP service reports it from
// /healthz so deployed instances can be matched to a commit.
//
// Variables are set via ldflags during build:
//
//	go build -ldflags "-X github.com/wobblecap/wobblecap/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/wobblecap/wobblecap/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/wobblecap/wobblecap/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import "fmt"

var (
	// Version is the semantic version (e.g., "v1.2.3").
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// Info is the build information in a form suitable for JSON responses.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get returns the current build information.
func Get() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}

// String renders a one-line summary such as "v1.2.0 (3f2a1c9, 2026-01-02)".
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s (%s, %s)", i.Version, commit, i.Date)
}

// Template returns the version template string for cobra.
func Template() string {
	i := Get()
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", i.Version, i.Commit, i.Date)
}
