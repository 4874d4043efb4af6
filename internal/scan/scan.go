// Package scan walks a source tree deterministically, the way the backup
// planner expects: sorted entries, symlinks reported as issues rather than
// followed, and a fixed default exclusion set for tool/VCS caches.
package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PolymathAlchemist/WCBT/internal/model"
)

// Rules narrows model.ScanRules to the subset scan.go consumes directly.
type Rules = model.ScanRules

// DefaultRules returns the exclusion set used unless the caller disables it.
func DefaultRules() Rules {
	return Rules{
		ExcludedDirectoryNames: model.DefaultExcludedDirectoryNames(),
		ExcludedFileNames:      map[string]struct{}{},
	}
}

// Tree walks sourceRoot (an absolute, already-validated directory) and
// returns a deterministic, case-folded-sorted list of files plus any
// issues encountered (symlinks, stat failures, unsafe relative paths).
func Tree(sourceRoot string, rules Rules) model.ScanResult {
	var result model.ScanResult

	walkDir(sourceRoot, sourceRoot, rules, &result)

	sort.Slice(result.Entries, func(i, j int) bool {
		return strings.ToLower(result.Entries[i].RelativePath) < strings.ToLower(result.Entries[j].RelativePath)
	})
	return result
}

func walkDir(root, dir string, rules Rules, result *model.ScanResult) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		rel, _ := filepath.Rel(root, dir)
		result.Issues = append(result.Issues, model.ScanIssue{
			Path:    rel,
			Message: "Failed to list directory: " + err.Error(),
		})
		return
	}

	var dirNames, fileNames []string
	for _, e := range entries {
		if e.IsDir() {
			dirNames = append(dirNames, e.Name())
		} else {
			fileNames = append(fileNames, e.Name())
		}
	}
	sort.Strings(dirNames)
	sort.Strings(fileNames)

	for _, name := range dirNames {
		if _, excluded := rules.ExcludedDirectoryNames[name]; excluded {
			continue
		}
		walkDir(root, filepath.Join(dir, name), rules, result)
	}

	for _, name := range fileNames {
		if _, excluded := rules.ExcludedFileNames[name]; excluded {
			continue
		}
		processFile(root, filepath.Join(dir, name), result)
	}
}

func processFile(root, absPath string, result *model.ScanResult) {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		result.Issues = append(result.Issues, model.ScanIssue{
			Path:    absPath,
			Message: "Could not compute relative path: " + err.Error(),
		})
		return
	}
	if filepath.IsAbs(rel) || hasParentSegment(rel) {
		result.Issues = append(result.Issues, model.ScanIssue{
			Path:    rel,
			Message: "Unsafe relative path.",
		})
		return
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		result.Issues = append(result.Issues, model.ScanIssue{
			Path:    filepath.ToSlash(rel),
			Message: "Failed to stat file: " + err.Error(),
		})
		return
	}
	if info.Mode()&os.ModeSymlink != 0 {
		result.Issues = append(result.Issues, model.ScanIssue{
			Path:    filepath.ToSlash(rel),
			Message: "Skipped symlink/reparse point.",
		})
		return
	}

	result.Entries = append(result.Entries, model.SourceFileEntry{
		RelativePath:          filepath.ToSlash(rel),
		AbsolutePath:          absPath,
		SizeBytes:             info.Size(),
		ModifiedTimeEpochSecs: info.ModTime().Unix(),
	})
}

// hasParentSegment reports whether any path segment of rel is literally
// "..", the way the original checks `".." in relative_path.parts` instead
// of substring-matching the whole path (which would wrongly flag names like
// "a..b.txt").
func hasParentSegment(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
