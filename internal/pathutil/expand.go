// Package pathutil resolves file paths given on the command line.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Expand turns a user-supplied path into a clean absolute path. A leading
// "~" is replaced with the home directory.
func Expand(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ExpandAll applies Expand to every path.
func ExpandAll(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := Expand(p)
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	return out, nil
}
