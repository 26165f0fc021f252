// Package capture runs a single recording session: it acquires the sources,
// mixes them, drives the encoder and assembles the final recording.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/petems/nexara-tray/internal/encoder"
	"github.com/petems/nexara-tray/internal/media"
	"github.com/rs/zerolog"
)

// SourceSpec selects the inputs of a session.
type SourceSpec struct {
	// DeviceID names the microphone; empty selects the default input.
	DeviceID         string
	WantsSystemAudio bool
}

type Acquirer interface {
	AcquireMicrophone(ctx context.Context, deviceID string) (media.Track, error)
	AcquireSystemAudio(ctx context.Context) (media.Track, error)
}

type Mixer interface {
	Mix(tracks []media.Track) (media.Track, error)
}

// Observer receives state changes and elapsed-time ticks. Calls are made
// without the recorder lock held.
type Observer interface {
	OnStateChange(State)
	OnTick(elapsedSeconds int)
}

type Options struct {
	Acquirer Acquirer
	Mixer    Mixer
	Encoders encoder.Factory
	// MimeTypes is the encoding preference order.
	MimeTypes    []string
	Timeslice    time.Duration
	TickInterval time.Duration
	Logger       zerolog.Logger
	Observer     Observer
	// OnTrackEnded runs on its own goroutine when a source ends without the
	// recorder stopping it. When nil the recorder stops itself and drops
	// the recording.
	OnTrackEnded func()
	// OnError receives the error that reset a running session to idle.
	OnError func(error)
}

// Recorder owns at most one session at a time.
type Recorder struct {
	acquirer     Acquirer
	mixer        Mixer
	encoders     encoder.Factory
	mimeTypes    []string
	timeslice    time.Duration
	tickInterval time.Duration
	log          zerolog.Logger

	mu           sync.Mutex
	observer     Observer
	onTrackEnded func()
	onError      func(error)
	starting     bool
	sess         *session
}

type session struct {
	id        string
	state     State
	mimeType  string
	enc       encoder.Encoder
	sources   []media.Track
	output    media.Track
	startedAt time.Time
	elapsed   int
	tickStop  chan struct{}

	released    chan struct{}
	releaseOnce sync.Once

	chunkMu sync.Mutex
	chunks  [][]byte
}

func NewRecorder(opts Options) *Recorder {
	r := &Recorder{
		acquirer:     opts.Acquirer,
		mixer:        opts.Mixer,
		encoders:     opts.Encoders,
		mimeTypes:    opts.MimeTypes,
		timeslice:    opts.Timeslice,
		tickInterval: opts.TickInterval,
		log:          opts.Logger.With().Str("component", "capture").Logger(),
		observer:     opts.Observer,
		onTrackEnded: opts.OnTrackEnded,
		onError:      opts.OnError,
	}
	if len(r.mimeTypes) == 0 {
		r.mimeTypes = encoder.PreferredMimeTypes
	}
	if r.timeslice <= 0 {
		r.timeslice = encoder.DefaultTimeslice
	}
	if r.tickInterval <= 0 {
		r.tickInterval = time.Second
	}
	return r
}

// SetObserver replaces the observer.
func (r *Recorder) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// SetOnTrackEnded replaces the ended-source handler.
func (r *Recorder) SetOnTrackEnded(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTrackEnded = fn
}

// SetOnError replaces the session error handler.
func (r *Recorder) SetOnError(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return Idle
	}
	return r.sess.state
}

// Elapsed is the number of ticks counted while recording.
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return 0
	}
	return r.sess.elapsed
}

// Start acquires the sources described by spec and begins recording.
func (r *Recorder) Start(ctx context.Context, spec SourceSpec) error {
	r.mu.Lock()
	if r.sess != nil || r.starting {
		r.mu.Unlock()
		return ErrSessionActive
	}
	r.starting = true
	r.mu.Unlock()

	sess, err := r.open(ctx, spec)

	r.mu.Lock()
	r.starting = false
	if err != nil {
		r.mu.Unlock()
		return err
	}
	sess.state = Recording
	r.sess = sess
	r.startTickerLocked(sess)
	r.mu.Unlock()

	r.watchSources(sess)
	r.watchEncoder(sess)
	r.log.Info().
		Str("session", sess.id).
		Str("mime", sess.mimeType).
		Int("sources", len(sess.sources)).
		Msg("Recording started")
	r.notifyState(Recording)
	return nil
}

func (r *Recorder) open(ctx context.Context, spec SourceSpec) (_ *session, err error) {
	var (
		sources []media.Track
		output  media.Track
	)
	defer func() {
		if err != nil {
			releaseTracks(output, sources)
		}
	}()

	mic, err := r.acquirer.AcquireMicrophone(ctx, spec.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("acquire microphone: %w", err)
	}
	sources = append(sources, mic)

	if spec.WantsSystemAudio {
		sys, serr := r.acquirer.AcquireSystemAudio(ctx)
		switch {
		case serr != nil:
			r.log.Warn().Err(serr).Msg("System audio unavailable, recording microphone only")
		case sys != nil:
			sources = append(sources, sys)
		}
	}

	output, err = r.mixer.Mix(sources)
	if err != nil {
		return nil, fmt.Errorf("mix sources: %w", err)
	}

	mimeType, err := encoder.SelectMimeType(r.encoders, r.mimeTypes)
	if err != nil {
		return nil, err
	}
	enc, err := r.encoders.New(mimeType)
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}

	sess := &session{
		id:        uuid.NewString(),
		state:     Idle,
		mimeType:  mimeType,
		enc:       enc,
		sources:   sources,
		output:    output,
		startedAt: time.Now(),
		released:  make(chan struct{}),
	}

	if err = enc.Start(output, r.timeslice, sess.appendChunk); err != nil {
		return nil, fmt.Errorf("start encoder: %w", err)
	}
	return sess, nil
}

// Pause suspends the encoder and the tick. It returns a preview of what has
// been recorded so far, or nil when nothing has been flushed yet.
func (r *Recorder) Pause() (*Artifact, error) {
	r.mu.Lock()
	sess := r.sess
	if sess == nil || sess.state != Recording {
		r.mu.Unlock()
		return nil, &TransitionError{Op: "pause", From: r.stateLocked()}
	}
	if err := sess.enc.Pause(); err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("pause encoder: %w", err)
	}
	sess.state = Paused
	r.stopTickerLocked(sess)
	elapsed := sess.elapsed
	r.mu.Unlock()

	r.log.Info().Str("session", sess.id).Int("elapsed", elapsed).Msg("Recording paused")
	r.notifyState(Paused)
	return r.preview(sess, elapsed), nil
}

// Resume continues a paused session.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	sess := r.sess
	if sess == nil || sess.state != Paused {
		r.mu.Unlock()
		return &TransitionError{Op: "resume", From: r.stateLocked()}
	}
	if err := sess.enc.Resume(); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("resume encoder: %w", err)
	}
	sess.state = Recording
	r.startTickerLocked(sess)
	r.mu.Unlock()

	r.log.Info().Str("session", sess.id).Msg("Recording resumed")
	r.notifyState(Recording)
	return nil
}

// Stop finalizes the session and returns the assembled recording. It
// returns nil, nil when no session is active or nothing was encoded. Every
// acquired source is released and the recorder is idle again when Stop
// returns, even on error.
func (r *Recorder) Stop(ctx context.Context) (*Artifact, error) {
	r.mu.Lock()
	sess := r.sess
	if sess == nil || sess.state == Stopped {
		r.mu.Unlock()
		return nil, nil
	}
	sess.state = Stopped
	r.stopTickerLocked(sess)
	elapsed := sess.elapsed
	r.mu.Unlock()

	r.notifyState(Stopped)

	var (
		art *Artifact
		err error
	)
	if serr := sess.enc.Stop(ctx); serr != nil {
		err = fmt.Errorf("finalize encoder: %w", serr)
	} else {
		chunks := sess.takeChunks()
		if len(chunks) == 0 {
			r.log.Warn().Str("session", sess.id).Msg("Nothing was encoded")
		} else if data, aerr := sess.enc.Assemble(chunks); aerr != nil {
			err = fmt.Errorf("assemble recording: %w", aerr)
		} else {
			art = &Artifact{
				Bytes:          data,
				MimeType:       sess.mimeType,
				FileName:       FileNameFor(sess.mimeType),
				ElapsedSeconds: elapsed,
			}
		}
	}

	r.release(sess)

	r.mu.Lock()
	if r.sess == sess {
		r.sess = nil
	}
	r.mu.Unlock()

	switch {
	case err != nil:
		r.log.Error().Err(err).Str("session", sess.id).Msg("Recording failed")
	case art != nil:
		r.log.Info().
			Str("session", sess.id).
			Int("bytes", art.Size()).
			Int("elapsed", elapsed).
			Msg("Recording stopped")
	}
	r.notifyState(Idle)
	return art, err
}

func (r *Recorder) preview(sess *session, elapsed int) *Artifact {
	chunks := sess.snapshotChunks()
	if len(chunks) == 0 {
		return nil
	}
	data, err := sess.enc.Assemble(chunks)
	if err != nil {
		r.log.Warn().Err(err).Msg("Could not assemble preview")
		return nil
	}
	return &Artifact{
		Bytes:          data,
		MimeType:       sess.mimeType,
		FileName:       FileNameFor(sess.mimeType),
		ElapsedSeconds: elapsed,
		Preview:        true,
	}
}

func (r *Recorder) stateLocked() State {
	if r.sess == nil {
		return Idle
	}
	return r.sess.state
}

func (r *Recorder) startTickerLocked(sess *session) {
	stop := make(chan struct{})
	sess.tickStop = stop
	interval := r.tickInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.mu.Lock()
				select {
				case <-stop:
					r.mu.Unlock()
					return
				default:
				}
				sess.elapsed++
				elapsed := sess.elapsed
				obs := r.observer
				r.mu.Unlock()

				if obs != nil {
					obs.OnTick(elapsed)
				}
			}
		}
	}()
}

func (r *Recorder) stopTickerLocked(sess *session) {
	if sess.tickStop != nil {
		close(sess.tickStop)
		sess.tickStop = nil
	}
}

func (r *Recorder) watchSources(sess *session) {
	for _, t := range sess.sources {
		go func(t media.Track) {
			select {
			case <-sess.released:
				return
			case <-t.Done():
			}
			if sess.isReleased() {
				return
			}
			r.log.Warn().Str("session", sess.id).Str("source", t.Label()).Msg("Capture source ended, stopping recording")
			r.handleTrackEnded()
		}(t)
	}
}

// watchEncoder resets the recorder as soon as the encoder fails instead of
// waiting for Stop.
func (r *Recorder) watchEncoder(sess *session) {
	fn, ok := sess.enc.(encoder.FailureNotifier)
	if !ok {
		return
	}
	go func() {
		select {
		case <-sess.released:
			return
		case <-fn.Failed():
		}
		r.abort(sess)
	}()
}

// abort drops a session whose encoder failed. It is a no-op once Stop has
// taken over the session.
func (r *Recorder) abort(sess *session) {
	r.mu.Lock()
	if r.sess != sess || sess.state == Stopped {
		r.mu.Unlock()
		return
	}
	sess.state = Stopped
	r.stopTickerLocked(sess)
	r.mu.Unlock()

	err := sess.enc.Stop(context.Background())
	if err == nil {
		err = errors.New("stopped unexpectedly")
	}
	err = fmt.Errorf("encoder: %w", err)
	sess.takeChunks()
	r.release(sess)

	r.mu.Lock()
	if r.sess == sess {
		r.sess = nil
	}
	onErr := r.onError
	r.mu.Unlock()

	r.log.Error().Err(err).Str("session", sess.id).Msg("Recording aborted")
	r.notifyState(Idle)
	if onErr != nil {
		onErr(err)
	}
}

func (r *Recorder) handleTrackEnded() {
	r.mu.Lock()
	fn := r.onTrackEnded
	r.mu.Unlock()

	if fn != nil {
		fn()
		return
	}
	if _, err := r.Stop(context.Background()); err != nil {
		r.log.Error().Err(err).Msg("Automatic stop failed")
	}
}

func (r *Recorder) release(sess *session) {
	sess.releaseOnce.Do(func() {
		close(sess.released)
		releaseTracks(sess.output, sess.sources)
	})
}

func (r *Recorder) notifyState(s State) {
	r.mu.Lock()
	obs := r.observer
	r.mu.Unlock()
	if obs != nil {
		obs.OnStateChange(s)
	}
}

// releaseTracks stops output, when it is not one of the sources, and then
// every source.
func releaseTracks(output media.Track, sources []media.Track) {
	if output != nil {
		shared := false
		for _, s := range sources {
			if s == output {
				shared = true
				break
			}
		}
		if !shared {
			output.Stop()
		}
	}
	for _, s := range sources {
		s.Stop()
	}
}

func (s *session) appendChunk(b []byte) {
	if len(b) == 0 {
		return
	}
	s.chunkMu.Lock()
	defer s.chunkMu.Unlock()
	s.chunks = append(s.chunks, b)
}

func (s *session) snapshotChunks() [][]byte {
	s.chunkMu.Lock()
	defer s.chunkMu.Unlock()
	return append([][]byte(nil), s.chunks...)
}

func (s *session) takeChunks() [][]byte {
	s.chunkMu.Lock()
	defer s.chunkMu.Unlock()
	out := s.chunks
	s.chunks = nil
	return out
}

func (s *session) isReleased() bool {
	select {
	case <-s.released:
		return true
	default:
		return false
	}
}
