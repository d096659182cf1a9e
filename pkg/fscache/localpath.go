package fscache

import (
	"os"
	"path/filepath"
	"strings"
)

// NetworkPathEqual compares two backslash-separated network paths
// case-insensitively, per §3.
func NetworkPathEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// splitNetworkPath splits a backslash-separated network path into segments,
// dropping empty leading/trailing segments.
func splitNetworkPath(path string) []string {
	path = strings.ReplaceAll(path, "/", `\`)
	parts := strings.Split(path, `\`)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeToLocal resolves a client-supplied network path to its
// on-disk local path under shareRoot, per §4.E "Case normalization
// (network -> local)":
//
//  1. If normalizedPath is non-empty (as carried by remote metadata), use
//     it verbatim: backslash converted to slash, leading separator
//     stripped.
//  2. Otherwise walk the path segment by segment; at each depth, perform a
//     case-insensitive lookup against the locally existing children of
//     the path built so far, falling back to the client-supplied casing
//     on miss.
func NormalizeToLocal(shareRoot, clientPath, normalizedPath string) string {
	if normalizedPath != "" {
		rel := strings.ReplaceAll(normalizedPath, `\`, "/")
		rel = strings.TrimPrefix(rel, "/")
		return filepath.Join(shareRoot, filepath.FromSlash(rel))
	}

	segments := splitNetworkPath(clientPath)
	current := shareRoot
	for _, seg := range segments {
		current = filepath.Join(current, resolveSegmentCase(current, seg))
	}
	return current
}

// resolveSegmentCase looks for an existing case-insensitive match of seg
// among dir's children, returning seg unchanged if none is found (or if
// dir cannot be read, e.g. it does not exist yet).
func resolveSegmentCase(dir, seg string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return seg
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name(), seg) {
			return e.Name()
		}
	}
	return seg
}

// EnsureParentDirs recursively materializes the ancestor directories of
// localPath (everything above the share root), per §4.E "Directory
// hierarchy creation": the share root itself is never created directly by
// this helper.
func EnsureParentDirs(shareRoot, localPath string, mkdir func(path string) error) error {
	parent := filepath.Dir(localPath)
	return EnsureDirHierarchy(shareRoot, parent, mkdir)
}

// EnsureDirHierarchy recursively materializes every directory from
// shareRoot down to (and including) dir, never creating shareRoot itself.
func EnsureDirHierarchy(shareRoot, dir string, mkdir func(path string) error) error {
	if dir == shareRoot || !strings.HasPrefix(dir, shareRoot) {
		return nil
	}
	parent := filepath.Dir(dir)
	if parent != dir {
		if err := EnsureDirHierarchy(shareRoot, parent, mkdir); err != nil {
			return err
		}
	}
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	return mkdir(dir)
}
