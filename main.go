// podbulk creates print-on-demand products in bulk through the listing
// service.
package main

import (
	"os"

	"github.com/bhtools/podbulk/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
