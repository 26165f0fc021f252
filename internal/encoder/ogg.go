package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/petems/nexara-tray/internal/media"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"
)

const (
	opusFrameSamples = media.SampleRate / 50 // 20 ms
	// Ogg Opus granule positions always count 48 kHz samples.
	opusGranulePerFrame = 48000 / 50
	opusPayloadType     = 111
	maxOpusPacket       = 4000
)

// oggOpusEncoder muxes Opus frames into an Ogg stream. Every chunk is a run
// of complete Ogg pages, the first one carrying the headers, so the chunks
// concatenate into a playable file.
type oggOpusEncoder struct {
	*stream
}

func newOggOpus(mimeType string) (Encoder, error) {
	sink, err := newOpusSink()
	if err != nil {
		return nil, err
	}
	return &oggOpusEncoder{stream: newStream(mimeType, sink)}, nil
}

func (e *oggOpusEncoder) Assemble(chunks [][]byte) ([]byte, error) {
	return bytes.Join(chunks, nil), nil
}

type opusSink struct {
	enc     *opus.Encoder
	ogg     *oggwriter.OggWriter
	out     bytes.Buffer
	pending []float32
	packet  []byte

	ssrc      uint32
	seq       uint16
	timestamp uint32
}

func newOpusSink() (*opusSink, error) {
	enc, err := opus.NewEncoder(media.SampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus: new encoder: %w", err)
	}

	id := uuid.New()
	s := &opusSink{
		enc:    enc,
		packet: make([]byte, maxOpusPacket),
		ssrc:   binary.BigEndian.Uint32(id[:4]),
	}

	s.ogg, err = oggwriter.NewWith(&s.out, media.SampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("ogg: new writer: %w", err)
	}
	return s, nil
}

func (s *opusSink) write(frame []float32) error {
	s.pending = append(s.pending, frame...)
	for len(s.pending) >= opusFrameSamples {
		if err := s.encodeFrame(s.pending[:opusFrameSamples]); err != nil {
			return err
		}
		s.pending = s.pending[opusFrameSamples:]
	}
	return nil
}

func (s *opusSink) encodeFrame(pcm []float32) error {
	n, err := s.enc.EncodeFloat32(pcm, s.packet)
	if err != nil {
		return fmt.Errorf("opus: encode: %w", err)
	}

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
		},
		Payload: s.packet[:n],
	}
	if err := s.ogg.WriteRTP(pkt); err != nil {
		return fmt.Errorf("ogg: write page: %w", err)
	}

	s.seq++
	s.timestamp += opusGranulePerFrame
	return nil
}

// flush holds back the stream headers until the first packet, so a session
// without audio produces no chunks at all.
func (s *opusSink) flush(final bool) ([]byte, error) {
	if s.seq == 0 && len(s.pending) == 0 {
		if final {
			s.out.Reset()
		}
		return nil, nil
	}

	var err error
	if final {
		if len(s.pending) > 0 {
			frame := make([]float32, opusFrameSamples)
			copy(frame, s.pending)
			s.pending = nil
			err = s.encodeFrame(frame)
		}
		if cerr := s.ogg.Close(); err == nil {
			err = cerr
		}
	}

	if s.out.Len() == 0 {
		return nil, err
	}
	out := bytes.Clone(s.out.Bytes())
	s.out.Reset()
	return out, err
}
