package encoder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petems/nexara-tray/internal/media"
)

// frameSink is the format-specific half of an encoder.
type frameSink interface {
	write(frame []float32) error
	// flush returns the bytes produced since the previous flush. final is
	// set once, after the last write.
	flush(final bool) ([]byte, error)
}

// stream drives a frameSink from a track on its own goroutine.
type stream struct {
	mimeType string
	sink     frameSink

	mu      sync.Mutex
	started bool
	err     error

	paused   atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
	failOnce sync.Once
	failed   chan struct{}
}

func newStream(mimeType string, sink frameSink) *stream {
	return &stream{
		mimeType: mimeType,
		sink:     sink,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		failed:   make(chan struct{}),
	}
}

func (s *stream) MimeType() string {
	return s.mimeType
}

func (s *stream) Start(track media.Track, timeslice time.Duration, onData func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if timeslice <= 0 {
		timeslice = DefaultTimeslice
	}
	s.started = true

	go s.run(track, timeslice, onData)
	return nil
}

func (s *stream) Pause() error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	s.paused.Store(true)
	return nil
}

func (s *stream) Resume() error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	s.paused.Store(false)
	return nil
}

// Stop finalizes the stream and waits for the last chunk.
func (s *stream) Stop(ctx context.Context) error {
	if !s.isStarted() {
		return nil
	}

	s.stopOnce.Do(func() { close(s.stopCh) })

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Failed is closed when the sink fails while recording. Encoding has
// stopped by then and Stop returns the error.
func (s *stream) Failed() <-chan struct{} {
	return s.failed
}

func (s *stream) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *stream) run(track media.Track, timeslice time.Duration, onData func([]byte)) {
	defer close(s.done)

	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	for {
		select {
		case frame := <-track.Frames():
			if !s.paused.Load() && !s.write(frame) {
				return
			}
		case <-ticker.C:
			if !s.paused.Load() && !s.emit(onData, false) {
				return
			}
		case <-track.Done():
			s.emit(onData, true)
			return
		case <-s.stopCh:
			if s.drain(track) {
				s.emit(onData, true)
			}
			return
		}
	}
}

// drain consumes frames that were already queued when Stop was called.
func (s *stream) drain(track media.Track) bool {
	for {
		select {
		case frame := <-track.Frames():
			if !s.paused.Load() && !s.write(frame) {
				return false
			}
		default:
			return true
		}
	}
}

func (s *stream) write(frame []float32) bool {
	if err := s.sink.write(frame); err != nil {
		s.fail(err)
		return false
	}
	return true
}

// emit hands whatever the sink produced to onData, even when the flush
// also failed.
func (s *stream) emit(onData func([]byte), final bool) bool {
	data, err := s.sink.flush(final)
	if len(data) > 0 && onData != nil {
		onData(data)
	}
	if err != nil {
		s.fail(err)
		return false
	}
	return true
}

func (s *stream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.failOnce.Do(func() { close(s.failed) })
}
