package main

import (
	"fmt"
)

// appName is the name used for the application data directory and the
// user agent.
const appName = "handshaker"

// These constants define the application version and follow the semantic
// versioning 2.0.0 spec (http://semver.org/).
const (
	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0

	// appPreRelease MUST only contain ASCII alphanumerics and hyphens.
	appPreRelease = "beta"
)

// appBuild is defined as a variable so it can be overridden during the build
// process with '-ldflags "-X main.appBuild foo'.
var appBuild string

// version returns the application version as a properly formed string per the
// semantic versioning 2.0.0 spec (http://semver.org/).
func version() string {
	version := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appPreRelease != "" {
		version = fmt.Sprintf("%s-%s", version, appPreRelease)
	}
	if appBuild != "" {
		version = fmt.Sprintf("%s+%s", version, appBuild)
	}
	return version
}

// defaultUserAgent returns the user agent advertised when none is
// configured, in the BIP 14 "/name:version/" form.
func defaultUserAgent() string {
	return fmt.Sprintf("/%s:%d.%d.%d/", appName, appMajor, appMinor, appPatch)
}
