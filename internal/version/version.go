// Package version holds the build version, set with
// -ldflags "-X github.com/victor2025PH/tgkz2026-sub003/internal/version.Version=v1.2.3".
package version

var Version = "dev"
