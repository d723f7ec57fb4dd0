package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

type tone int

const (
	toneLabel tone = iota
	toneGood
	toneCaution
	toneBad
	toneHighlight
	toneMuted
)

var toneCodes = [...]string{
	toneLabel:     "\x1b[1m\x1b[38;5;51m",
	toneGood:      "\x1b[1m\x1b[38;5;82m",
	toneCaution:   "\x1b[1m\x1b[38;5;214m",
	toneBad:       "\x1b[1m\x1b[38;5;196m",
	toneHighlight: "\x1b[1m\x1b[38;5;201m",
	toneMuted:     "\x1b[2m",
}

const ansiReset = "\x1b[0m"

// renderer colors human output. It is a no-op for JSON output, NO_COLOR and
// anything that is not a terminal.
type renderer struct {
	color bool
}

func newRenderer(out io.Writer, asJSON bool) renderer {
	return renderer{color: interactive(out, asJSON)}
}

func (r renderer) paint(t tone, value string) string {
	if !r.color || value == "" {
		return value
	}
	return toneCodes[t] + value + ansiReset
}

func (r renderer) label(value string) string     { return r.paint(toneLabel, value) }
func (r renderer) good(value string) string      { return r.paint(toneGood, value) }
func (r renderer) caution(value string) string   { return r.paint(toneCaution, value) }
func (r renderer) bad(value string) string       { return r.paint(toneBad, value) }
func (r renderer) highlight(value string) string { return r.paint(toneHighlight, value) }
func (r renderer) muted(value string) string     { return r.paint(toneMuted, value) }

func interactive(out io.Writer, asJSON bool) bool {
	if asJSON || strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return false
	}
	term := strings.TrimSpace(os.Getenv("TERM"))
	return term != "" && term != "dumb"
}

var spinnerFrames = []string{"|", "/", "-", "\\"}

// withProgress runs fn, drawing a spinner with the elapsed time on out while
// it works. fn is expected to observe ctx; once ctx is done the label
// changes and the spinner keeps going until fn returns.
func withProgress(ctx context.Context, out io.Writer, enabled bool, label string, fn func() error) error {
	if !enabled {
		return fn()
	}
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	started := time.Now()
	ticker := time.NewTicker(120 * time.Millisecond)
	defer ticker.Stop()

	cancelled := ctx.Done()
	for frame := 0; ; {
		select {
		case err := <-done:
			fmt.Fprint(out, "\r\x1b[2K")
			return err
		case <-cancelled:
			cancelled = nil
			label = "Cancelling"
		case <-ticker.C:
			elapsed := time.Since(started).Round(100 * time.Millisecond)
			fmt.Fprintf(out, "\r\x1b[2K%s %s %s", spinnerFrames[frame%len(spinnerFrames)], label, elapsed)
			frame++
		}
	}
}
