package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/postalsys/pingdrop/internal/transfer"
)

// progressLine redraws a single status line on a terminal. It prints
// nothing when the output is not a terminal.
type progressLine struct {
	w       io.Writer
	enabled bool
	last    time.Time
	drawn   bool
}

func newProgressLine(f *os.File) *progressLine {
	return &progressLine{
		w:       f,
		enabled: term.IsTerminal(int(f.Fd())),
	}
}

// Update is a transfer.ClientConfig.OnProgress callback.
func (p *progressLine) Update(pr transfer.Progress) {
	if p == nil || !p.enabled {
		return
	}
	// Redraw at most ten times a second, but always show the final chunk.
	if pr.Seq != pr.TotalChunks && time.Since(p.last) < 100*time.Millisecond {
		return
	}
	p.last = time.Now()

	pct := 100.0
	if pr.Size > 0 {
		pct = float64(pr.BytesSent) * 100 / float64(pr.Size)
	}
	fmt.Fprintf(p.w, "\r%s / %s  %5.1f%%  chunk %d/%d",
		humanize.IBytes(uint64(pr.BytesSent)),
		humanize.IBytes(uint64(pr.Size)),
		pct, pr.Seq, pr.TotalChunks)
	p.drawn = true
}

// Done ends the status line.
func (p *progressLine) Done() {
	if p == nil || !p.drawn {
		return
	}
	fmt.Fprintln(p.w)
	p.drawn = false
}
