// Package inject hands finished transcripts to the desktop.
package inject

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
)

// ErrUnsupported means no clipboard utility is available (e.g. Linux
// without xclip, xsel or wl-clipboard).
var ErrUnsupported = errors.New("clipboard is not available on this system")

// Clipboard copies text to the system clipboard.
type Clipboard struct {
	write       func(string) error
	unsupported func() bool
}

func NewClipboard() *Clipboard {
	return &Clipboard{
		write:       clipboard.WriteAll,
		unsupported: func() bool { return clipboard.Unsupported },
	}
}

// Copy places text on the clipboard. Blank text is ignored.
func (c *Clipboard) Copy(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if c.unsupported() {
		return ErrUnsupported
	}
	if err := c.write(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}
