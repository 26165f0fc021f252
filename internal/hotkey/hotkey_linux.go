//go:build linux

package hotkey

/*
#cgo pkg-config: x11 xtst
#include <X11/Xlib.h>
#include <X11/keysym.h>
#include <X11/extensions/XTest.h>
#include <stdlib.h>

Display* displayPtr = NULL;

int openDisplay() {
    if (displayPtr == NULL) {
        displayPtr = XOpenDisplay(NULL);
    }
    return displayPtr != NULL;
}

int keycodeFor(const char* name) {
    if (!openDisplay()) return 0;
    KeySym sym = XStringToKeysym(name);
    if (sym == NoSymbol) return 0;
    return XKeysymToKeycode(displayPtr, sym);
}

int grabKey(int keycode, int modifiers) {
    if (!openDisplay()) return 0;

    Window root = DefaultRootWindow(displayPtr);
    XGrabKey(displayPtr, keycode, modifiers, root, False, GrabModeAsync, GrabModeAsync);
    // Also grab with NumLock (Mod2) held so the shortcut works either way.
    XGrabKey(displayPtr, keycode, modifiers | Mod2Mask, root, False, GrabModeAsync, GrabModeAsync);
    XSelectInput(displayPtr, root, KeyPressMask | KeyReleaseMask);
    XSync(displayPtr, False);

    return 1;
}

void ungrabKey(int keycode, int modifiers) {
    if (displayPtr == NULL) return;
    Window root = DefaultRootWindow(displayPtr);
    XUngrabKey(displayPtr, keycode, modifiers, root);
    XUngrabKey(displayPtr, keycode, modifiers | Mod2Mask, root);
    XSync(displayPtr, False);
}

int checkEvent(int* keycode, int* pressed) {
    if (displayPtr == NULL) return 0;

    XEvent event;
    if (XPending(displayPtr) > 0) {
        XNextEvent(displayPtr, &event);
        if (event.type == KeyPress || event.type == KeyRelease) {
            *keycode = event.xkey.keycode;
            *pressed = (event.type == KeyPress) ? 1 : 0;
            return 1;
        }
    }
    return 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
	"unsafe"
)

type grab struct {
	keycode   int
	modifiers int
}

type linuxManager struct {
	mu        sync.Mutex
	callbacks map[int]Handler
	grabs     map[string]grab
	stop      chan struct{}
	closeOnce sync.Once
}

// New creates a new Linux hotkey manager using X11
func New() (Manager, error) {
	mgr := &linuxManager{
		callbacks: make(map[int]Handler),
		grabs:     make(map[string]grab),
		stop:      make(chan struct{}),
	}

	go mgr.eventLoop()

	return mgr, nil
}

func (m *linuxManager) Register(accel string, callback Handler) error {
	acc, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}

	name := C.CString(x11Keysym(acc.Key))
	defer C.free(unsafe.Pointer(name))

	keycode := int(C.keycodeFor(name))
	if keycode == 0 {
		return fmt.Errorf("no keycode for %s (is an X display available?)", acc)
	}
	modifiers := x11Modifiers(acc.Mods)

	if C.grabKey(C.int(keycode), C.int(modifiers)) == 0 {
		return fmt.Errorf("failed to grab key %s", acc)
	}

	m.mu.Lock()
	m.callbacks[keycode] = callback
	m.grabs[acc.String()] = grab{keycode: keycode, modifiers: modifiers}
	m.mu.Unlock()
	return nil
}

func (m *linuxManager) eventLoop() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			var keycode, pressed C.int
			if C.checkEvent(&keycode, &pressed) != 0 {
				m.mu.Lock()
				cb, ok := m.callbacks[int(keycode)]
				m.mu.Unlock()
				if ok {
					cb(pressed == 1)
				}
			}
		}
	}
}

func (m *linuxManager) Unregister(accel string) error {
	acc, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grabs[acc.String()]
	if !ok {
		return nil
	}
	C.ungrabKey(C.int(g.keycode), C.int(g.modifiers))
	delete(m.grabs, acc.String())
	delete(m.callbacks, g.keycode)
	return nil
}

func (m *linuxManager) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	return nil
}
