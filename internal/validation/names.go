// Package validation checks user-supplied names before they reach the service.
package validation

import (
	"fmt"
	"strings"
)

// AssetName validates the name of an uploaded asset. The service joins it
// onto its upload folder, so only a plain file name is accepted.
//
// Returns an error if the name:
//   - is empty or only whitespace
//   - contains path separators (/ or \)
//   - is "." or ".."
//   - contains a null byte
func AssetName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("file name contains null byte: %q", name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("file name cannot contain path separators: %s", name)
	}
	// "foo..bar.png" is fine, only the bare dot names are rejected
	if name == "." || name == ".." {
		return fmt.Errorf("invalid file name: %s", name)
	}
	return nil
}
