package version

// Version is the compose-migrate release version. Overridden at build time
// via -ldflags "-X compose-migrate/src/version.Version=...".
var Version = "0.1.0-dev"
