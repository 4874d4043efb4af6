// Package safepath wraps absolute filesystem paths so that components pass
// validated values across boundaries instead of raw strings.
package safepath

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Path is an absolute, cleaned filesystem path. The zero value is invalid;
// construct one with New or Join.
type Path struct {
	abs string
}

// New resolves p to an absolute, cleaned Path.
func New(p string) (Path, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return Path{}, fmt.Errorf("safepath: resolve %q: %w", p, err)
	}
	return Path{abs: filepath.Clean(abs)}, nil
}

// MustNew is New but panics on error. Reserved for constants derived from
// already-validated strings (tests, defaults).
func MustNew(p string) Path {
	sp, err := New(p)
	if err != nil {
		panic(err)
	}
	return sp
}

// String returns the underlying absolute path.
func (p Path) String() string {
	return p.abs
}

// IsZero reports whether p is the zero value.
func (p Path) IsZero() bool {
	return p.abs == ""
}

// Join resolves and cleans a child path under p.
func (p Path) Join(elem ...string) Path {
	parts := append([]string{p.abs}, elem...)
	return Path{abs: filepath.Clean(filepath.Join(parts...))}
}

// Base returns the final path element.
func (p Path) Base() string {
	return filepath.Base(p.abs)
}

// Dir returns the parent directory as a Path.
func (p Path) Dir() Path {
	return Path{abs: filepath.Dir(p.abs)}
}

// Rel returns p's path relative to base using OS-native separators.
func (p Path) Rel(base Path) (string, error) {
	return filepath.Rel(base.abs, p.abs)
}

// Within reports whether p is equal to base or nested under it.
func (p Path) Within(base Path) bool {
	if p.abs == base.abs {
		return true
	}
	prefix := base.abs
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p.abs, prefix)
}

// AssertWithin returns an error unless p is base or nested under it.
func AssertWithin(p, base Path) error {
	if !p.Within(base) {
		return fmt.Errorf("safepath: %s escapes base %s", p.abs, base.abs)
	}
	return nil
}
