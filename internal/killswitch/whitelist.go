package killswitch

import "strings"

// WhitelistedDirs lists development/build directory names whose contents
// churn legitimately in bulk (package installs, clean builds, VCS
// operations). Deletions under them never count toward deletion thresholds.
var WhitelistedDirs = []string{
	"node_modules", ".git", ".svn", ".hg",
	"__pycache__", ".pytest_cache", ".mypy_cache", ".tox", "venv", ".venv", "env",
	"build", "dist", "out", "target", "bin", "obj",
	".idea", ".vscode", ".vs",
	"vendor", "packages",
	".cache", ".gradle", ".m2",
	"tmp", "temp",
}

var whitelistedDirSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(WhitelistedDirs))
	for _, name := range WhitelistedDirs {
		set[name] = struct{}{}
	}
	return set
}()

// HasWhitelistedComponent reports whether any forward-slash component of
// path matches a whitelisted directory name, case-insensitively.
func HasWhitelistedComponent(path string) bool {
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		if _, ok := whitelistedDirSet[strings.ToLower(part)]; ok {
			return true
		}
	}
	return false
}
