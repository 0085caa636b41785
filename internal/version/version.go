// Package version exposes the build version stamped at link time.
package version

// version is set via -ldflags at build time.
var version = "v0.0.0"

// Value returns the build version.
func Value() string {
	return version
}
