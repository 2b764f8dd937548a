package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	got, err := Expand("~/designs/a.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "designs", "a.png"), got)

	got, err = Expand("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)

	dir := t.TempDir()
	chdir(t, dir)
	got, err = Expand("x/../b.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b.png"), got)

	all, err := ExpandAll([]string{"a.png", "~/b.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.png"), filepath.Join(home, "b.png")}, all)
}
