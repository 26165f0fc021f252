package media

import (
	"sync"

	"github.com/google/uuid"
)

// SampleRate is the rate of every PCM frame flowing through the pipeline.
const SampleRate = 16000

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is a live capture source. Frames carries mono float32 PCM at
// SampleRate. Done is closed once the track has ended, whether through Stop
// or because the underlying source went away. Stop is idempotent.
type Track interface {
	ID() string
	Kind() Kind
	Label() string
	Frames() <-chan []float32
	Done() <-chan struct{}
	Stop()
}

// LiveTrack is the Track implementation shared by the device backends and
// the mixer.
type LiveTrack struct {
	id     string
	kind   Kind
	label  string
	frames chan []float32
	done   chan struct{}
	once   sync.Once
	onStop func()
}

// NewLiveTrack creates a running track. onStop, when set, runs exactly once
// when the track ends.
func NewLiveTrack(kind Kind, label string, onStop func()) *LiveTrack {
	return &LiveTrack{
		id:     uuid.NewString(),
		kind:   kind,
		label:  label,
		frames: make(chan []float32, 64),
		done:   make(chan struct{}),
		onStop: onStop,
	}
}

func (t *LiveTrack) ID() string               { return t.id }
func (t *LiveTrack) Kind() Kind               { return t.kind }
func (t *LiveTrack) Label() string            { return t.label }
func (t *LiveTrack) Frames() <-chan []float32 { return t.frames }
func (t *LiveTrack) Done() <-chan struct{}    { return t.done }

// Push hands a frame to the consumer. Frames are dropped when the consumer
// falls behind. It reports false once the track has ended.
func (t *LiveTrack) Push(frame []float32) bool {
	select {
	case <-t.done:
		return false
	default:
	}

	select {
	case t.frames <- frame:
	default:
	}
	return true
}

// Stop ends the track.
func (t *LiveTrack) Stop() {
	t.once.Do(func() {
		close(t.done)
		if t.onStop != nil {
			t.onStop()
		}
	})
}

// Ended reports whether the track has stopped.
func (t *LiveTrack) Ended() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Stream groups the tracks granted by one acquisition request.
type Stream struct {
	Tracks []Track
}

// AudioTracks returns the audio tracks of the stream in order.
func (s *Stream) AudioTracks() []Track {
	return s.byKind(KindAudio)
}

// VideoTracks returns the video tracks of the stream in order.
func (s *Stream) VideoTracks() []Track {
	return s.byKind(KindVideo)
}

func (s *Stream) byKind(kind Kind) []Track {
	if s == nil {
		return nil
	}
	var out []Track
	for _, t := range s.Tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// Stop ends every track in the stream.
func (s *Stream) Stop() {
	if s == nil {
		return
	}
	for _, t := range s.Tracks {
		t.Stop()
	}
}
