package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petems/nexara-tray/internal/encoder"
	"github.com/petems/nexara-tray/internal/media"
	"github.com/rs/zerolog"
)

type stubTrack struct {
	*media.LiveTrack
	stops atomic.Int32
}

func newStubTrack(label string) *stubTrack {
	t := &stubTrack{}
	t.LiveTrack = media.NewLiveTrack(media.KindAudio, label, func() { t.stops.Add(1) })
	return t
}

type stubAcquirer struct {
	mic    *stubTrack
	micErr error
	sys    *stubTrack
	sysErr error
}

func (a *stubAcquirer) AcquireMicrophone(ctx context.Context, deviceID string) (media.Track, error) {
	if a.micErr != nil {
		return nil, a.micErr
	}
	return a.mic, nil
}

func (a *stubAcquirer) AcquireSystemAudio(ctx context.Context) (media.Track, error) {
	if a.sysErr != nil {
		return nil, a.sysErr
	}
	if a.sys == nil {
		return nil, nil
	}
	return a.sys, nil
}

type stubMixer struct {
	inputs []media.Track
	mixed  *stubTrack
}

func (m *stubMixer) Mix(tracks []media.Track) (media.Track, error) {
	m.inputs = tracks
	if len(tracks) == 1 {
		return tracks[0], nil
	}
	m.mixed = newStubTrack("mix")
	return m.mixed, nil
}

// stubEncoder hands chunks to the session only when the test asks for it.
type stubEncoder struct {
	mu      sync.Mutex
	onData  func([]byte)
	paused  bool
	stopped bool
	final   []byte
	stopErr error
}

func (e *stubEncoder) MimeType() string { return encoder.MimeWAV }

func (e *stubEncoder) Start(track media.Track, timeslice time.Duration, onData func([]byte)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onData = onData
	return nil
}

func (e *stubEncoder) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
	return nil
}

func (e *stubEncoder) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	return nil
}

func (e *stubEncoder) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopErr != nil {
		return e.stopErr
	}
	if !e.stopped && e.final != nil {
		e.onData(e.final)
	}
	e.stopped = true
	return nil
}

func (e *stubEncoder) Assemble(chunks [][]byte) ([]byte, error) {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, nil
}

func (e *stubEncoder) emit(b string) {
	e.mu.Lock()
	fn := e.onData
	e.mu.Unlock()
	fn([]byte(b))
}

type stubFactory struct {
	supported map[string]bool
	enc       *stubEncoder
}

func (f *stubFactory) IsTypeSupported(mt string) bool { return f.supported[mt] }

func (f *stubFactory) New(mt string) (encoder.Encoder, error) {
	return f.enc, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	states []State
	ticks  []int
}

func (o *recordingObserver) OnStateChange(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *recordingObserver) OnTick(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks = append(o.ticks, n)
}

func (o *recordingObserver) tickCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ticks)
}

func (o *recordingObserver) stateList() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.states...)
}

type fixture struct {
	acq *stubAcquirer
	mix *stubMixer
	enc *stubEncoder
	obs *recordingObserver
	rec *Recorder
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		acq: &stubAcquirer{mic: newStubTrack("mic")},
		mix: &stubMixer{},
		enc: &stubEncoder{final: []byte("!")},
		obs: &recordingObserver{},
	}
	opts := Options{
		Acquirer:     f.acq,
		Mixer:        f.mix,
		Encoders:     &stubFactory{supported: map[string]bool{encoder.MimeWAV: true}, enc: f.enc},
		TickInterval: time.Hour,
		Logger:       zerolog.Nop(),
		Observer:     f.obs,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.rec = NewRecorder(opts)
	return f
}

func TestRecorderFullCycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.rec.Start(ctx, SourceSpec{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if f.rec.State() != Recording {
		t.Fatalf("expected recording, got %v", f.rec.State())
	}

	f.enc.emit("ab")
	f.enc.emit("")
	f.enc.emit("cd")

	preview, err := f.rec.Pause()
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if preview == nil || string(preview.Bytes) != "abcd" || !preview.Preview {
		t.Fatalf("unexpected preview %+v", preview)
	}
	if !f.enc.paused {
		t.Fatal("encoder should be paused")
	}

	if err := f.rec.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	f.enc.emit("ef")

	art, err := f.rec.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if string(art.Bytes) != "abcdef!" {
		t.Fatalf("expected chunks in order plus the final flush, got %q", art.Bytes)
	}
	if art.MimeType != encoder.MimeWAV || art.FileName != "recording.wav" || art.Preview {
		t.Fatalf("unexpected artifact metadata %+v", art)
	}
	if f.rec.State() != Idle {
		t.Fatalf("expected idle after stop, got %v", f.rec.State())
	}
	if n := f.acq.mic.stops.Load(); n != 1 {
		t.Fatalf("expected mic released once, got %d", n)
	}

	want := []State{Recording, Paused, Recording, Stopped, Idle}
	got := f.obs.stateList()
	if len(got) != len(want) {
		t.Fatalf("expected states %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, got)
		}
	}
}

func TestRecorderRejectsSecondSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.rec.Start(ctx, SourceSpec{}); err != nil {
		t.Fatal(err)
	}
	if err := f.rec.Start(ctx, SourceSpec{}); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	if _, err := f.rec.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestRecorderIllegalTransitions(t *testing.T) {
	f := newFixture(t, nil)

	var terr *TransitionError
	if _, err := f.rec.Pause(); !errors.As(err, &terr) || terr.From != Idle {
		t.Fatalf("expected pause from idle to fail, got %v", err)
	}
	if err := f.rec.Resume(); !errors.As(err, &terr) {
		t.Fatalf("expected resume from idle to fail, got %v", err)
	}

	if err := f.rec.Start(context.Background(), SourceSpec{}); err != nil {
		t.Fatal(err)
	}
	if err := f.rec.Resume(); !errors.As(err, &terr) || terr.From != Recording {
		t.Fatalf("expected resume while recording to fail, got %v", err)
	}
	if _, err := f.rec.Pause(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.rec.Pause(); !errors.As(err, &terr) || terr.From != Paused {
		t.Fatalf("expected pause while paused to fail, got %v", err)
	}
	if _, err := f.rec.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestRecorderStopWhenIdle(t *testing.T) {
	f := newFixture(t, nil)

	art, err := f.rec.Stop(context.Background())
	if art != nil || err != nil {
		t.Fatalf("expected nil, nil; got %v, %v", art, err)
	}
}

func TestRecorderPauseWithoutChunksHasNoPreview(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.rec.Start(context.Background(), SourceSpec{}); err != nil {
		t.Fatal(err)
	}

	preview, err := f.rec.Pause()
	if err != nil {
		t.Fatal(err)
	}
	if preview != nil {
		t.Fatalf("expected no preview, got %+v", preview)
	}
	if _, err := f.rec.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestRecorderSystemAudioDeclinedRecordsMicOnly(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.rec.Start(context.Background(), SourceSpec{WantsSystemAudio: true}); err != nil {
		t.Fatal(err)
	}
	if len(f.mix.inputs) != 1 {
		t.Fatalf("expected microphone only, got %d inputs", len(f.mix.inputs))
	}
	if _, err := f.rec.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestRecorderSystemAudioErrorDegrades(t *testing.T) {
	f := newFixture(t, nil)
	f.acq.sysErr = errors.New("loopback device missing")

	if err := f.rec.Start(context.Background(), SourceSpec{WantsSystemAudio: true}); err != nil {
		t.Fatalf("system audio failure must not abort start: %v", err)
	}
	if len(f.mix.inputs) != 1 {
		t.Fatalf("expected microphone only, got %d inputs", len(f.mix.inputs))
	}
	if _, err := f.rec.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestRecorderMixesAndReleasesEveryTrackOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.acq.sys = newStubTrack("system")

	if err := f.rec.Start(context.Background(), SourceSpec{WantsSystemAudio: true}); err != nil {
		t.Fatal(err)
	}
	if len(f.mix.inputs) != 2 {
		t.Fatalf("expected two mixer inputs, got %d", len(f.mix.inputs))
	}
	if _, err := f.rec.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	for name, tr := range map[string]*stubTrack{"mic": f.acq.mic, "system": f.acq.sys, "mix": f.mix.mixed} {
		if n := tr.stops.Load(); n != 1 {
			t.Errorf("%s released %d times, want 1", name, n)
		}
	}
}

func TestRecorderStartFailureReleasesMicrophone(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Encoders = &stubFactory{supported: map[string]bool{}}
	})

	err := f.rec.Start(context.Background(), SourceSpec{})
	if !errors.Is(err, encoder.ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if f.rec.State() != Idle {
		t.Fatalf("expected idle, got %v", f.rec.State())
	}
	if n := f.acq.mic.stops.Load(); n != 1 {
		t.Fatalf("expected mic released once, got %d", n)
	}
}

func TestRecorderMicrophoneFailure(t *testing.T) {
	f := newFixture(t, nil)
	derr := &media.DeviceError{Reason: media.ReasonPermissionDenied}
	f.acq.micErr = derr

	err := f.rec.Start(context.Background(), SourceSpec{})
	var got *media.DeviceError
	if !errors.As(err, &got) || got.Reason != media.ReasonPermissionDenied {
		t.Fatalf("expected DeviceError, got %v", err)
	}

	// A failed start leaves the recorder usable.
	f.acq.micErr = nil
	if err := f.rec.Start(context.Background(), SourceSpec{}); err != nil {
		t.Fatalf("start after failure: %v", err)
	}
	if _, err := f.rec.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestRecorderEncoderFailureResetsToIdle(t *testing.T) {
	f := newFixture(t, nil)
	f.enc.stopErr = errors.New("boom")

	if err := f.rec.Start(context.Background(), SourceSpec{}); err != nil {
		t.Fatal(err)
	}
	art, err := f.rec.Stop(context.Background())
	if err == nil || art != nil {
		t.Fatalf("expected error and no artifact, got %v, %v", art, err)
	}
	if f.rec.State() != Idle {
		t.Fatalf("expected idle, got %v", f.rec.State())
	}
	if n := f.acq.mic.stops.Load(); n != 1 {
		t.Fatalf("expected mic released once, got %d", n)
	}
}

func TestRecorderTicksOnlyWhileRecording(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.TickInterval = 5 * time.Millisecond })

	if err := f.rec.Start(context.Background(), SourceSpec{}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.obs.tickCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if f.obs.tickCount() < 3 {
		t.Fatal("expected ticks while recording")
	}

	if _, err := f.rec.Pause(); err != nil {
		t.Fatal(err)
	}
	frozen := f.rec.Elapsed()
	ticks := f.obs.tickCount()
	time.Sleep(30 * time.Millisecond)

	if f.rec.Elapsed() != frozen || f.obs.tickCount() != ticks {
		t.Fatal("elapsed time advanced while paused")
	}

	art, err := f.rec.Stop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if art.ElapsedSeconds != frozen {
		t.Fatalf("expected elapsed %d on artifact, got %d", frozen, art.ElapsedSeconds)
	}
	if f.rec.Elapsed() != 0 {
		t.Fatal("elapsed should reset once idle")
	}
}

func TestRecorderEndedSourceInvokesHandler(t *testing.T) {
	called := make(chan struct{}, 1)
	f := newFixture(t, func(o *Options) {
		o.OnTrackEnded = func() { called <- struct{}{} }
	})

	if err := f.rec.Start(context.Background(), SourceSpec{}); err != nil {
		t.Fatal(err)
	}
	f.acq.mic.Stop()

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("expected ended-source handler to run")
	}
	if _, err := f.rec.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestRecorderEndedSourceStopsAutomatically(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.rec.Start(context.Background(), SourceSpec{}); err != nil {
		t.Fatal(err)
	}
	f.acq.mic.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for f.rec.State() != Idle && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if f.rec.State() != Idle {
		t.Fatalf("expected automatic stop, state is %v", f.rec.State())
	}
}

func TestRecorderOwnStopDoesNotTriggerHandler(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, func(o *Options) {
		o.OnTrackEnded = func() { calls.Add(1) }
	})

	if err := f.rec.Start(context.Background(), SourceSpec{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.rec.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	if calls.Load() != 0 {
		t.Fatal("recorder-initiated release must not look like an ended source")
	}
}

func TestFileNameFor(t *testing.T) {
	tests := map[string]string{
		encoder.MimeWAV:     "recording.wav",
		encoder.MimeOggOpus: "recording.ogg",
		encoder.MimeMP4:     "recording.mp4",
		"audio/webm":        "recording.webm",
	}
	for mt, want := range tests {
		if got := FileNameFor(mt); got != want {
			t.Errorf("FileNameFor(%q) = %q, want %q", mt, got, want)
		}
	}
}

func TestRecorderStopWithoutAudioReturnsNothing(t *testing.T) {
	tests := []struct {
		name  string
		pause bool
	}{
		{"stopped right away", false},
		{"paused the whole time", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(o *Options) {
				o.Encoders = encoder.NewRegistry()
				o.MimeTypes = []string{encoder.MimeWAV}
			})

			if err := f.rec.Start(context.Background(), SourceSpec{}); err != nil {
				t.Fatalf("start: %v", err)
			}
			if tt.pause {
				preview, err := f.rec.Pause()
				if err != nil {
					t.Fatalf("pause: %v", err)
				}
				if preview != nil {
					t.Fatal("expected no preview without audio")
				}
			}

			art, err := f.rec.Stop(context.Background())
			if err != nil {
				t.Fatalf("stop: %v", err)
			}
			if art != nil {
				t.Fatalf("expected no recording, got %d bytes", art.Size())
			}
			if f.rec.State() != Idle {
				t.Fatalf("expected idle, got %s", f.rec.State())
			}
			if n := f.acq.mic.stops.Load(); n != 1 {
				t.Fatalf("expected the microphone to be released once, got %d", n)
			}
		})
	}
}

// failingEncoder reports a failure while the session is running.
type failingEncoder struct {
	*stubEncoder
	failed chan struct{}
}

func (e *failingEncoder) Failed() <-chan struct{} { return e.failed }

type singleFactory struct{ enc encoder.Encoder }

func (f singleFactory) IsTypeSupported(string) bool         { return true }
func (f singleFactory) New(string) (encoder.Encoder, error) { return f.enc, nil }

func TestRecorderEncoderFailureWhileRecordingResetsToIdle(t *testing.T) {
	encErr := errors.New("opus: encode: bad frame")
	enc := &failingEncoder{
		stubEncoder: &stubEncoder{stopErr: encErr},
		failed:      make(chan struct{}),
	}
	reported := make(chan error, 1)
	f := newFixture(t, func(o *Options) {
		o.Encoders = singleFactory{enc: enc}
		o.OnError = func(err error) { reported <- err }
	})

	if err := f.rec.Start(context.Background(), SourceSpec{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	enc.emit("abc")
	close(enc.failed)

	select {
	case err := <-reported:
		if !errors.Is(err, encErr) {
			t.Fatalf("expected the encoder error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("encoder failure was not reported")
	}

	if f.rec.State() != Idle {
		t.Fatalf("expected idle, got %s", f.rec.State())
	}
	if n := f.acq.mic.stops.Load(); n != 1 {
		t.Fatalf("expected the microphone to be released once, got %d", n)
	}
	if states := f.obs.stateList(); states[len(states)-1] != Idle {
		t.Fatalf("expected observers to see idle last, got %v", states)
	}

	art, err := f.rec.Stop(context.Background())
	if art != nil || err != nil {
		t.Fatalf("expected nothing left to stop, got %v, %v", art, err)
	}
}
