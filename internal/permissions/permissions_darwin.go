//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation -framework Cocoa
#import <AVFoundation/AVFoundation.h>
#import <Cocoa/Cocoa.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}

int checkAccessibilityPermission() {
    NSDictionary *options = @{(__bridge id)kAXTrustedCheckOptionPrompt: @YES};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options) ? 1 : 0;
}
*/
import "C"

import (
	"errors"
	"fmt"

	"github.com/petems/nexara-tray/internal/media"
)

const (
	PermissionNotDetermined = 0
	PermissionRestricted    = 1
	PermissionDenied        = 2
	PermissionAuthorized    = 3
)

// CheckMicrophone returns the current microphone permission status
func CheckMicrophone() int {
	return int(C.checkMicrophonePermission())
}

// RequestMicrophone triggers the system microphone permission dialog
func RequestMicrophone() {
	C.requestMicrophonePermission()
}

// EnsureMicrophone is used as the acquirer's permission check. An
// undetermined status shows the system dialog and lets the device open
// proceed; macOS delivers silence until the user answers.
func EnsureMicrophone() error {
	switch CheckMicrophone() {
	case PermissionAuthorized:
		return nil
	case PermissionNotDetermined:
		RequestMicrophone()
		return nil
	case PermissionRestricted:
		return fmt.Errorf("%w: restricted by system policy", media.ErrPermissionDenied)
	default:
		return fmt.Errorf("%w: enable it in System Settings → Privacy & Security → Microphone", media.ErrPermissionDenied)
	}
}

// EnsureAccessibility checks, and prompts for, the accessibility permission
// the global hotkey needs.
func EnsureAccessibility() error {
	if int(C.checkAccessibilityPermission()) == 1 {
		return nil
	}
	return errors.New("accessibility permission not granted: System Settings → Privacy & Security → Accessibility")
}
