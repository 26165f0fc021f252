package mixer

import (
	"errors"
	"sync"
	"time"

	"github.com/petems/nexara-tray/internal/media"
)

// GraphState mirrors the lifecycle of an audio processing graph.
type GraphState int

const (
	Suspended GraphState = iota
	Running
	Closed
)

func (s GraphState) String() string {
	switch s {
	case Suspended:
		return "suspended"
	case Running:
		return "running"
	default:
		return "closed"
	}
}

var (
	ErrGraphSuspended = errors.New("mixer: graph is suspended")
	ErrGraphClosed    = errors.New("mixer: graph is closed")
)

// Quantum is the render period of a graph.
const Quantum = 20 * time.Millisecond

type source struct {
	track media.Track
	mu    sync.Mutex
	buf   []float32
}

func (s *source) append(frame []float32, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, frame...)
	if over := len(s.buf) - limit; over > 0 {
		s.buf = s.buf[over:]
	}
}

// take removes up to n samples; the result may be shorter.
func (s *source) take(n int) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.buf) {
		n = len(s.buf)
	}
	out := make([]float32, n)
	copy(out, s.buf[:n])
	s.buf = s.buf[n:]
	return out
}

// Graph sums its connected sources into one destination track. A new graph
// is suspended and must be resumed before sources can be connected.
type Graph struct {
	mu      sync.Mutex
	state   GraphState
	sources []*source
	dest    *media.LiveTrack
	quantum time.Duration
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewGraph() *Graph {
	g := &Graph{
		state:   Suspended,
		quantum: Quantum,
		stop:    make(chan struct{}),
	}
	g.dest = media.NewLiveTrack(media.KindAudio, "mix", g.shutdown)
	return g
}

func (g *Graph) State() GraphState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Resume starts rendering. Resuming a running graph is a no-op.
func (g *Graph) Resume() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case Closed:
		return ErrGraphClosed
	case Running:
		return nil
	}

	g.state = Running
	g.wg.Add(1)
	go g.render()
	return nil
}

// Connect feeds track into the destination. The track is not owned by the
// graph; closing the graph leaves it running.
func (g *Graph) Connect(track media.Track) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case Suspended:
		return ErrGraphSuspended
	case Closed:
		return ErrGraphClosed
	}

	src := &source{track: track}
	g.sources = append(g.sources, src)

	g.wg.Add(1)
	go g.pump(src)
	return nil
}

// Destination is the mixed output. Stopping it closes the graph.
func (g *Graph) Destination() media.Track {
	return g.dest
}

// Close stops rendering and ends the destination.
func (g *Graph) Close() {
	g.dest.Stop()
}

// shutdown runs once, when the destination ends.
func (g *Graph) shutdown() {
	g.mu.Lock()
	g.state = Closed
	close(g.stop)
	g.mu.Unlock()

	g.wg.Wait()
}

func (g *Graph) samplesPerQuantum() int {
	return int(int64(media.SampleRate) * int64(g.quantum) / int64(time.Second))
}

func (g *Graph) pump(src *source) {
	defer g.wg.Done()
	limit := media.SampleRate
	for {
		select {
		case <-g.stop:
			return
		case <-src.track.Done():
			return
		case frame := <-src.track.Frames():
			src.append(frame, limit)
		}
	}
}

func (g *Graph) render() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.quantum)
	defer ticker.Stop()

	n := g.samplesPerQuantum()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.mu.Lock()
			sources := append([]*source(nil), g.sources...)
			g.mu.Unlock()

			parts := make([][]float32, 0, len(sources))
			for _, s := range sources {
				parts = append(parts, s.take(n))
			}
			g.dest.Push(mixFrames(n, parts...))
		}
	}
}

// mixFrames sums the inputs sample by sample into a frame of length n,
// treating missing samples as silence and clipping to [-1, 1].
func mixFrames(n int, inputs ...[]float32) []float32 {
	out := make([]float32, n)
	for _, in := range inputs {
		for i := 0; i < n && i < len(in); i++ {
			out[i] += in[i]
		}
	}
	for i, v := range out {
		switch {
		case v > 1:
			out[i] = 1
		case v < -1:
			out[i] = -1
		}
	}
	return out
}
