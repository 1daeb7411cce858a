package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// progressBar redraws a single line on every update.
type progressBar struct {
	w   io.Writer
	bar progress.Model
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{
		w:   w,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (p *progressBar) Update(done, total uint64) {
	pct := 1.0
	if total > 0 {
		pct = float64(done) / float64(total)
	}
	fmt.Fprintf(p.w, "\r%s %s", p.bar.ViewAs(pct), gray.Render(humanize.IBytes(done)+" / "+humanize.IBytes(total)))
}

func (p *progressBar) Finish() {
	fmt.Fprintln(p.w)
}

func stderrIsTerminal() bool {
	return isatty.IsTerminal(os.Stderr.Fd())
}
