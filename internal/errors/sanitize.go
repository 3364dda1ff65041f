// Package errors classifies kill switch failures and scrubs the messages
// that leave the process. Threat descriptions and wrapped I/O errors
// routinely embed the very paths an attacker touched; anything shipped to
// a webhook, SOC topic, or API response goes through Scrub first so the
// host's directory layout and credentials stay on the host.
package errors

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Absolute POSIX paths, anchored to start-of-string or a preceding
	// delimiter so the slashes inside relative sync paths don't match.
	// Relative paths pass through untouched; absolute ones (backup roots,
	// log locations) collapse to their basename.
	absPathPattern = regexp.MustCompile(`(?:^|[\s"'=(:])/[A-Za-z0-9_\-./]+`)

	ipPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

	// key=value / key: value credential fragments, as they appear in
	// wrapped driver and SDK errors.
	credentialPattern = regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key|access[_-]?key)\s*[=:]\s*\S+`)
)

// productionMode gates Sanitize. In development the daemon keeps raw
// errors; operators flip this on for deployments where error text can
// reach other systems.
var productionMode = false

// SetProductionMode sets the sanitization gate; call once at startup.
func SetProductionMode(on bool) { productionMode = on }

// IsProduction reports whether Sanitize is active.
func IsProduction() bool { return productionMode }

// Scrub redacts credential fragments, collapses absolute paths to their
// basename, and masks the host half of IP addresses. Unlike Sanitize it
// applies regardless of mode, for strings that always leave the host.
func Scrub(s string) string {
	s = credentialPattern.ReplaceAllString(s, "$1=[REDACTED]")
	s = absPathPattern.ReplaceAllStringFunc(s, func(match string) string {
		i := strings.Index(match, "/")
		return match[:i] + filepath.Base(match[i:])
	})
	s = ipPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := strings.Split(match, ".")
		return parts[0] + "." + parts[1] + ".x.x"
	})
	return s
}

// Sanitize returns err unchanged in development mode; in production it
// rebuilds the error from the scrubbed message so callers outside the
// process never see raw internals. The original error text still reaches
// the local log before anything calls Sanitize.
func Sanitize(err error) error {
	if err == nil || !productionMode {
		return err
	}
	return errors.New(Scrub(err.Error()))
}
