// Package version holds the build version string.
package version

// Version is the semantic version of this build.
const Version = "0.1.0"
