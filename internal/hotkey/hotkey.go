// Package hotkey registers the global record shortcut.
package hotkey

// Handler receives key-down (true) and key-up (false) for a registered
// accelerator. It runs on the platform event thread and must not block.
type Handler func(pressed bool)

// Manager grabs accelerators such as "Alt+Space" or "Ctrl+Shift+R";
// see ParseAccelerator.
type Manager interface {
	Register(accel string, h Handler) error
	Unregister(accel string) error
	Close() error
}
