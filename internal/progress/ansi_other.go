//go:build !windows

package progress

import "os"

// enableANSI is a no-op; Unix terminals handle escape sequences natively.
func enableANSI(*os.File) {}
