package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bhtools/podbulk/internal/models"
)

func TestJobBarPlainLines(t *testing.T) {
	var buf bytes.Buffer
	bar := NewJobBarWithWriter(&buf, false)

	p := models.JobProgress{Status: models.JobWorking, Current: 1, Total: 3, Message: "Creating product 1"}
	bar.Update(p)
	bar.Update(p)
	bar.Finish(models.JobProgress{Status: models.JobCompleted, Current: 3, Total: 3})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"Status: working  Progress: 1/3  Creating product 1",
		"Status: completed  Progress: 3/3",
	}, lines)
}

func TestUploadUIPassThroughWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	u := &UploadUI{out: &buf, totalFiles: 1, bars: nil}

	r := u.Track("a.png", 2048, strings.NewReader("data"))
	got := new(bytes.Buffer)
	_, err := got.ReadFrom(r)
	assert.NoError(t, err)
	assert.Equal(t, "data", got.String())
	assert.Contains(t, buf.String(), "Uploading [1/1]: a.png (2.0 KiB)")
}
