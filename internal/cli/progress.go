package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
)

// Progress creates progress bars on one writer. A disabled Progress hands
// out bars that draw nothing.
type Progress struct {
	writer  io.Writer
	enabled bool
}

// NewProgress creates progress bars writing to w when enabled.
func NewProgress(w io.Writer, enabled bool) *Progress {
	return &Progress{writer: w, enabled: enabled}
}

func (p *Progress) options(label string, extra ...progressbar.Option) []progressbar.Option {
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]" + label + "...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	}
	if !p.enabled {
		opts = append(opts, progressbar.OptionSetVisibility(false))
	}
	return append(opts, extra...)
}

// Bar starts a bar counting total units of work.
func (p *Progress) Bar(total int, label string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total, p.options(label,
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)...)
}

// Upload starts a byte-counting bar for a request body of size bytes. The
// returned writer advances the bar as bytes are written to it.
func (p *Progress) Upload(size int64, label string) io.Writer {
	return progressbar.NewOptions64(size, p.options(label,
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)...)
}
