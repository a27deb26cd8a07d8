// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/chirpsyncer/chirpsync-realtime/internal/version.Version=1.0.0 \
//	                   -X github.com/chirpsyncer/chirpsync-realtime/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import "log/slog"

// Build-time variables (set via ldflags)
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// Commit is the git commit hash (short form)
	Commit = "unknown"

	// BuildTime is the UTC build timestamp (ISO 8601)
	BuildTime = "unknown"
)

// Product names the service in handshakes and logs.
const Product = "chirpsync-realtime"

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent returns the User-Agent sent on the WebSocket handshake.
func UserAgent() string {
	return Product + "/" + Version
}

// Attr returns the build info as a log attribute group.
func Attr() slog.Attr {
	return slog.Group("build",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("built", BuildTime),
	)
}
