// Package version holds the monitor service's build version, stamped at
// link time via -ldflags.
package version

// Version is the monitor service's semantic version. Overridden at build
// time with -ldflags "-X errormonitor/internal/version.Version=...".
var Version = "0.1.0"
