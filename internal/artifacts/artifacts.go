// Package artifacts finds build outputs to publish.
package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSuffix matches the packaged build archives.
const DefaultSuffix = ".zip"

var ErrNotDirectory = errors.New("artifacts: not a directory")

// Artifact is one file selected for upload.
type Artifact struct {
	Name string
	Path string
	Size int64
}

// Resolve joins dir onto root unless dir is already absolute.
func Resolve(root, dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("artifacts: empty directory argument")
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return abs, nil
}

// Collect lists dir (resolved against root) and returns the regular files whose
// name ends with one of suffixes, ordered by name. Matching is case-sensitive.
// An empty suffix list means DefaultSuffix.
func Collect(root, dir string, suffixes []string) ([]Artifact, error) {
	abs, err := Resolve(root, dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("artifacts: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("artifacts: list %s: %w", abs, err)
	}

	suffixes = NormalizeSuffixes(suffixes)
	out := make([]Artifact, 0, len(entries))
	for _, entry := range entries {
		if !Matches(entry.Name(), suffixes) {
			continue
		}
		path := filepath.Join(abs, entry.Name())
		// Follow symlinks so linked archives are still published.
		fi, err := os.Stat(path)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		out = append(out, Artifact{Name: entry.Name(), Path: path, Size: fi.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Matches reports whether name ends with any suffix.
func Matches(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// NormalizeSuffixes trims and dedupes suffixes, defaulting to DefaultSuffix.
func NormalizeSuffixes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return []string{DefaultSuffix}
	}
	return out
}

// TotalSize sums artifact sizes.
func TotalSize(list []Artifact) int64 {
	var n int64
	for _, a := range list {
		n += a.Size
	}
	return n
}
