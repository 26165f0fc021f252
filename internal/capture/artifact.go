package capture

import "github.com/petems/nexara-tray/internal/encoder"

// Artifact is an assembled recording.
type Artifact struct {
	Bytes          []byte
	MimeType       string
	FileName       string
	ElapsedSeconds int
	// Preview marks the non-final snapshot returned by Pause.
	Preview bool
}

// FileNameFor is the upload name for a recording of the given type.
func FileNameFor(mimeType string) string {
	return "recording." + encoder.Extension(mimeType)
}

// Size is the artifact length in bytes.
func (a *Artifact) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Bytes)
}
