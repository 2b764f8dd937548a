package cli

import (
	"github.com/bhtools/podbulk/internal/config"
	"github.com/bhtools/podbulk/internal/state"
)

func loadRecordForTest() ([]string, error) {
	r, err := state.LoadRecord(config.DefaultSelectionPath())
	return r.Names, err
}
