package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// UploadUI shows one bar per file streamed into the multipart upload.
// It implements api.UploadProgress.
type UploadUI struct {
	progress   *mpb.Progress
	isTerminal bool
	totalFiles int
	started    int32
	out        io.Writer

	mu   sync.Mutex
	bars map[string]*mpb.Bar
}

// NewUploadUI creates an upload UI for totalFiles files.
func NewUploadUI(totalFiles int) *UploadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		enableANSI(os.Stderr)
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(150*time.Millisecond),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UploadUI{
		progress:   p,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
		out:        os.Stderr,
		bars:       make(map[string]*mpb.Bar),
	}
}

// Track wraps r so bytes read into the request body advance the bar of name.
func (u *UploadUI) Track(name string, size int64, r io.Reader) io.Reader {
	index := int(atomic.AddInt32(&u.started, 1))

	if !u.isTerminal {
		fmt.Fprintf(u.out, "Uploading [%d/%d]: %s (%.1f KiB)\n", index, u.totalFiles, name, float64(size)/1024)
		return r
	}

	bar := u.progress.New(size,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("[%d/%d] %s", index, u.totalFiles, name), decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Percentage(decor.WCSyncSpace),
		),
	)

	u.mu.Lock()
	u.bars[name] = bar
	u.mu.Unlock()

	return bar.ProxyReader(r)
}

// Finish marks every bar done and prints one line per file: a check for
// names the service stored, a cross for the rest.
func (u *UploadUI) Finish(requested, uploaded []string, err error) {
	stored := make(map[string]bool, len(uploaded))
	for _, n := range uploaded {
		stored[n] = true
	}

	u.mu.Lock()
	for name, bar := range u.bars {
		if err == nil && stored[name] {
			bar.SetTotal(-1, true)
		} else {
			bar.Abort(false)
		}
	}
	u.mu.Unlock()

	w := u.Writer()
	for _, name := range requested {
		switch {
		case err != nil:
			fmt.Fprintf(w, "✗ %s: %v\n", name, err)
		case stored[name]:
			fmt.Fprintf(w, "✓ %s\n", name)
		default:
			fmt.Fprintf(w, "✗ %s: not stored by the service\n", name)
		}
	}
	u.progress.Wait()
}

// Writer returns a writer that prints above the bars.
func (u *UploadUI) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal reports whether bars are drawn.
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}
