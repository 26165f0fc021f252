// Package encoder turns a live PCM track into timesliced chunks of a
// container format and reassembles the chunks into a single file.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/petems/nexara-tray/internal/media"
)

const (
	MimeWAV     = "audio/wav"
	MimeOggOpus = "audio/ogg;codecs=opus"
	MimeOgg     = "audio/ogg"
	MimeMP4     = "audio/mp4"
)

// DefaultTimeslice is how often buffered data is handed to the sink.
const DefaultTimeslice = time.Second

// PreferredMimeTypes is the order in which encodings are tried.
var PreferredMimeTypes = []string{MimeWAV, MimeOggOpus, MimeOgg, MimeMP4}

var (
	ErrUnsupportedType = errors.New("encoder: unsupported mime type")
	ErrNotStarted      = errors.New("encoder: not started")
	ErrAlreadyStarted  = errors.New("encoder: already started")
)

// Encoder consumes one track. onData receives every non-empty chunk in
// order; Stop returns after the last call to onData.
type Encoder interface {
	MimeType() string
	Start(track media.Track, timeslice time.Duration, onData func([]byte)) error
	Pause() error
	Resume() error
	Stop(ctx context.Context) error
	// Assemble joins chunks produced by this encoder into one file.
	Assemble(chunks [][]byte) ([]byte, error)
}

// FailureNotifier is implemented by encoders that can fail while running,
// before Stop is called.
type FailureNotifier interface {
	Failed() <-chan struct{}
}

type Factory interface {
	IsTypeSupported(mimeType string) bool
	New(mimeType string) (Encoder, error)
}

// SelectMimeType returns the first entry of prefs the factory supports.
func SelectMimeType(f Factory, prefs []string) (string, error) {
	for _, mt := range prefs {
		if f.IsTypeSupported(mt) {
			return mt, nil
		}
	}
	return "", fmt.Errorf("%w: none of %s", ErrUnsupportedType, strings.Join(prefs, ", "))
}

// Extension maps a mime type to the file extension used for uploads.
func Extension(mimeType string) string {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "wav"):
		return "wav"
	case strings.Contains(mt, "ogg"):
		return "ogg"
	case strings.Contains(mt, "mp4"):
		return "mp4"
	case strings.Contains(mt, "mp3"), strings.Contains(mt, "mpeg"):
		return "mp3"
	default:
		return "webm"
	}
}

// Registry is a Factory backed by constructors keyed by mime type.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]func(mimeType string) (Encoder, error)
}

// NewRegistry returns a registry with the built-in WAV and Ogg/Opus encoders.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]func(string) (Encoder, error))}
	r.Register(MimeWAV, newWAV)
	r.Register(MimeOggOpus, newOggOpus)
	r.Register(MimeOgg, newOggOpus)
	return r
}

func (r *Registry) Register(mimeType string, ctor func(mimeType string) (Encoder, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[normalize(mimeType)] = ctor
}

func (r *Registry) IsTypeSupported(mimeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctors[normalize(mimeType)]
	return ok
}

func (r *Registry) New(mimeType string) (Encoder, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[normalize(mimeType)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	return ctor(mimeType)
}

func normalize(mimeType string) string {
	return strings.ToLower(strings.ReplaceAll(mimeType, " ", ""))
}
