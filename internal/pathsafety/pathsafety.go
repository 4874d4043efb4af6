// Package pathsafety resolves the on-disk layout for a WCBT profile and
// gates every path that crosses a trust boundary: backup sources and
// restore targets never get to touch the filesystem without passing
// through here first.
package pathsafety

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/PolymathAlchemist/WCBT/internal/safepath"
)

// ErrSafetyViolation is the sentinel wrapped by every rejection this
// package makes. Callers match it with errors.Is.
var ErrSafetyViolation = errors.New("safety violation")

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSafetyViolation, fmt.Sprintf(format, args...))
}

// ProfilePaths mirrors the original Python ProfilePaths dataclass: every
// directory a profile's backup/restore runs are allowed to touch.
type ProfilePaths struct {
	DataRoot          safepath.Path
	ProfileRoot       safepath.Path
	WorkRoot          safepath.Path
	ManifestsRoot     safepath.Path
	ArchivesRoot      safepath.Path
	IndexRoot         safepath.Path
	LogsRoot          safepath.Path
	LiveSnapshotsRoot safepath.Path
}

const invalidProfileChars = `\/:*?"<>|`

// DefaultDataRoot resolves the WCBT data root the way the platform expects:
// LOCALAPPDATA then APPDATA on Windows, XDG_DATA_HOME (falling back to
// ~/.local/share) elsewhere.
func DefaultDataRoot() (string, error) {
	if runtime.GOOS == "windows" {
		if v := os.Getenv("LOCALAPPDATA"); v != "" {
			return v, nil
		}
		if v := os.Getenv("APPDATA"); v != "" {
			return v, nil
		}
		return "", violation("neither LOCALAPPDATA nor APPDATA is set")
	}

	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", violation("could not determine home directory: %v", err)
	}
	return home + "/.local/share", nil
}

// ValidateProfileName rejects empty names, reserved relative names, and
// names containing any path-separator or reserved Windows character.
func ValidateProfileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return violation("profile name must not be empty")
	}
	if name == "." || name == ".." {
		return violation("profile name must not be %q", name)
	}
	if strings.ContainsAny(name, invalidProfileChars) {
		return violation("profile name %q contains a reserved character", name)
	}
	return nil
}

// ResolveProfilePaths computes the full ProfilePaths layout for a profile
// under dataRoot (or DefaultDataRoot when dataRoot is empty).
func ResolveProfilePaths(profileName, dataRoot string) (ProfilePaths, error) {
	if err := ValidateProfileName(profileName); err != nil {
		return ProfilePaths{}, err
	}

	if dataRoot == "" {
		resolved, err := DefaultDataRoot()
		if err != nil {
			return ProfilePaths{}, err
		}
		dataRoot = resolved
	}

	root, err := safepath.New(dataRoot)
	if err != nil {
		return ProfilePaths{}, violation("resolving data root: %v", err)
	}
	root = root.Join("WCBT")
	profileRoot := root.Join("profiles", profileName)

	return ProfilePaths{
		DataRoot:          root,
		ProfileRoot:       profileRoot,
		WorkRoot:          profileRoot.Join("work"),
		ManifestsRoot:     profileRoot.Join("manifests"),
		ArchivesRoot:      profileRoot.Join("archives"),
		IndexRoot:         profileRoot.Join("index"),
		LogsRoot:          profileRoot.Join("logs"),
		LiveSnapshotsRoot: profileRoot.Join("live_snapshots"),
	}, nil
}

// EnsureProfileDirectories creates every directory named in paths, if
// missing. It never deletes anything.
func EnsureProfileDirectories(paths ProfilePaths) error {
	dirs := []safepath.Path{
		paths.ProfileRoot,
		paths.WorkRoot,
		paths.ManifestsRoot,
		paths.ArchivesRoot,
		paths.IndexRoot,
		paths.LogsRoot,
		paths.LiveSnapshotsRoot,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d.String(), 0o755); err != nil {
			return fmt.Errorf("pathsafety: creating %s: %w", d, err)
		}
	}
	return nil
}

// AsText renders paths the way `wcbt init-profile --print-paths` shows them.
func (p ProfilePaths) AsText() string {
	var b strings.Builder
	rows := []struct {
		name string
		path safepath.Path
	}{
		{"data_root", p.DataRoot},
		{"profile_root", p.ProfileRoot},
		{"manifests_root", p.ManifestsRoot},
		{"archives_root", p.ArchivesRoot},
		{"index_root", p.IndexRoot},
		{"logs_root", p.LogsRoot},
		{"work_root", p.WorkRoot},
		{"live_snapshots_root", p.LiveSnapshotsRoot},
	}
	for i, r := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", r.name, r.path)
	}
	return b.String()
}

// ValidateSourcePath requires source to exist, be a directory, and not be a
// filesystem root (copying an entire drive is never intended).
func ValidateSourcePath(source string) (safepath.Path, error) {
	sp, err := safepath.New(source)
	if err != nil {
		return safepath.Path{}, violation("resolving source path: %v", err)
	}

	info, err := os.Stat(sp.String())
	if err != nil {
		return safepath.Path{}, violation("source path does not exist: %s", sp)
	}
	if !info.IsDir() {
		return safepath.Path{}, violation("source path is not a directory: %s", sp)
	}
	if isFilesystemRoot(sp.String()) {
		return safepath.Path{}, violation("source path must not be a filesystem root: %s", sp)
	}
	return sp, nil
}

var systemPathPrefixes = []string{
	`C:\Windows`,
	`C:\Program Files`,
	`C:\Program Files (x86)`,
}

// ValidateRestoreTarget requires destRoot to be at least three path
// segments deep, not a bare drive root, and not nested inside a known
// system directory.
func ValidateRestoreTarget(destRoot string) (safepath.Path, error) {
	sp, err := safepath.New(destRoot)
	if err != nil {
		return safepath.Path{}, violation("resolving restore target: %v", err)
	}
	if isFilesystemRoot(sp.String()) {
		return safepath.Path{}, violation("restore target must not be a filesystem root: %s", sp)
	}
	if err := assertMinDepth(sp, 3); err != nil {
		return safepath.Path{}, err
	}
	if err := assertNotSystemPath(sp); err != nil {
		return safepath.Path{}, err
	}
	return sp, nil
}

func assertMinDepth(p safepath.Path, minParts int) error {
	s := strings.TrimRight(strings.ReplaceAll(p.String(), `\`, "/"), "/")
	parts := strings.Split(s, "/")
	nonEmpty := 0
	for _, part := range parts {
		if part != "" {
			nonEmpty++
		}
	}
	if nonEmpty < minParts {
		return violation("restore target %s is too shallow (minimum depth %d)", p, minParts)
	}
	return nil
}

func assertNotSystemPath(p safepath.Path) error {
	norm := strings.ToLower(p.String())
	for _, prefix := range systemPathPrefixes {
		if strings.HasPrefix(norm, strings.ToLower(prefix)) {
			return violation("restore target %s falls under a protected system path", p)
		}
	}
	return nil
}

func isFilesystemRoot(p string) bool {
	if p == "/" {
		return true
	}
	// Windows drive roots: "C:\" or "C:/"
	if len(p) == 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/') {
		return true
	}
	return false
}

// AssertWithin re-exports safepath.AssertWithin for callers that only
// import pathsafety.
func AssertWithin(p, base safepath.Path) error {
	if err := safepath.AssertWithin(p, base); err != nil {
		return fmt.Errorf("%w: %v", ErrSafetyViolation, err)
	}
	return nil
}
