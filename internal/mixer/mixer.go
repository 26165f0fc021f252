// Package mixer combines several capture tracks into a single track.
package mixer

import (
	"errors"
	"fmt"

	"github.com/petems/nexara-tray/internal/media"
	"github.com/rs/zerolog"
)

var ErrNoTracks = errors.New("mixer: no tracks to mix")

type Mixer struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Mixer {
	return &Mixer{log: log.With().Str("component", "mixer").Logger()}
}

// Mix returns a single track carrying every input. One input is returned
// unchanged. For more, the inputs are connected to a fresh graph and its
// destination is returned; stopping that handle tears the graph down but
// leaves the inputs to their owner.
func (m *Mixer) Mix(tracks []media.Track) (media.Track, error) {
	switch len(tracks) {
	case 0:
		return nil, ErrNoTracks
	case 1:
		return tracks[0], nil
	}

	g := NewGraph()
	if g.State() == Suspended {
		if err := g.Resume(); err != nil {
			return nil, fmt.Errorf("resume graph: %w", err)
		}
	}

	for _, t := range tracks {
		if err := g.Connect(t); err != nil {
			g.Close()
			return nil, fmt.Errorf("connect %s: %w", t.Label(), err)
		}
	}

	m.log.Debug().Int("sources", len(tracks)).Msg("Mixing tracks")
	return g.Destination(), nil
}
