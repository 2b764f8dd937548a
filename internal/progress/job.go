// Package progress renders job and upload progress on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/bhtools/podbulk/internal/models"
)

// JobBar shows the progress of the running job as a count of products.
// On a non-terminal writer it prints one line per change instead.
type JobBar struct {
	w          io.Writer
	bar        *progressbar.ProgressBar
	isTerminal bool
	total      int
	last       models.JobProgress
}

// NewJobBar creates a job bar writing to stderr.
func NewJobBar() *JobBar {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal {
		enableANSI(os.Stderr)
	}
	return NewJobBarWithWriter(os.Stderr, isTerminal)
}

// NewJobBarWithWriter creates a job bar on w. With animate false, every
// change is printed as a plain line.
func NewJobBarWithWriter(w io.Writer, animate bool) *JobBar {
	return &JobBar{w: w, isTerminal: animate}
}

// Update shows snapshot p. Repeated identical snapshots are ignored.
func (j *JobBar) Update(p models.JobProgress) {
	if p == j.last {
		return
	}
	j.last = p

	if !j.isTerminal {
		fmt.Fprintln(j.w, Line(p))
		return
	}

	if j.bar == nil || p.Total != j.total {
		j.total = p.Total
		max := int64(p.Total)
		if max <= 0 {
			max = -1 // spinner until the service reports a total
		}
		j.bar = progressbar.NewOptions64(max,
			progressbar.OptionSetWriter(j.w),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(j.w, "\n")
			}),
		)
	}
	j.bar.Describe(describe(p))
	if p.Total > 0 {
		_ = j.bar.Set(p.Current)
	}
}

// Finish closes the bar after the final snapshot p.
func (j *JobBar) Finish(p models.JobProgress) {
	j.Update(p)
	if j.bar != nil {
		_ = j.bar.Exit()
		fmt.Fprint(j.w, "\n")
	}
}

// Line formats p as the one-line status shown by the progress command.
func Line(p models.JobProgress) string {
	s := fmt.Sprintf("Status: %s  Progress: %d/%d", p.Status, p.Current, p.Total)
	if p.Message != "" {
		s += "  " + p.Message
	}
	return s
}

func describe(p models.JobProgress) string {
	if p.Message != "" {
		return fmt.Sprintf("[%s] %s", p.Status, p.Message)
	}
	return fmt.Sprintf("[%s]", p.Status)
}
