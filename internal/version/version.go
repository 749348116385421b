// Package version holds build metadata injected with -ldflags.
package version

var (
	// Version is the release version.
	Version = "0.1.0"
	// Commit is the git commit the binary was built from.
	Commit = "dev"
)

// String formats the version for --version output.
func String() string {
	if Commit == "" || Commit == "dev" {
		return Version
	}
	short := Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return Version + " (" + short + ")"
}
