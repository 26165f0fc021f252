// Package output renders command-line progress and results.
package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

type Formatter struct {
	mu sync.Mutex
	w  io.Writer
	// ticking is true while an elapsed-time line is being redrawn in place.
	ticking bool
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) printf(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ticking {
		fmt.Fprint(f.w, "\n")
		f.ticking = false
	}
	fmt.Fprintf(f.w, format, args...)
}

func (f *Formatter) RecordingStarted(systemAudio bool) {
	source := "microphone"
	if systemAudio {
		source = "microphone + system audio"
	}
	f.printf("🔴 Recording %s (Ctrl+C to stop)\n", source)
}

// Elapsed redraws the running timer on the current line.
func (f *Formatter) Elapsed(seconds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(f.w, "\r⏺  %s", FormatSeconds(seconds))
	f.ticking = true
}

func (f *Formatter) Paused() {
	f.printf("⏸️  Paused\n")
}

func (f *Formatter) RecordingStopped(seconds int) {
	f.printf("⏹️  Recording stopped (%s)\n", FormatSeconds(seconds))
}

func (f *Formatter) Transcribing() {
	f.printf("📝 Transcribing audio...\n")
}

func (f *Formatter) Sending() {
	f.printf("📤 Sending to webhook...\n")
}

func (f *Formatter) Transcript(text string, diarized bool) {
	header := "Transcript"
	if diarized {
		header = "Transcript (speakers)"
	}
	f.printf("\n%s:\n%s\n\n", header, strings.TrimSpace(text))
}

func (f *Formatter) Delivered(target string) {
	f.printf("✅ Sent to webhook %q\n", target)
}

func (f *Formatter) Error(msg string) {
	f.printf("❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	f.printf("ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	f.printf("✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	f.printf("⚠️  %s\n", msg)
}

func (f *Formatter) DeviceListHeader() {
	f.printf("🎤 Input devices:\n\n")
}

func (f *Formatter) DeviceListItem(id, label string, isDefault, selected bool) {
	marks := ""
	if isDefault {
		marks += " (default)"
	}
	if selected {
		marks += " ✅"
	}
	f.printf("  %-4s %s%s\n", id, label, marks)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		f.printf("  ✅ %s: %s\n", name, detail)
	} else {
		f.printf("  ❌ %s: %s\n", name, detail)
	}
}

// FormatSeconds renders seconds as 1h02m05s, 2m05s or 5s.
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds/60%60, seconds%60

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
