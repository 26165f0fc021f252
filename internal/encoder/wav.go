package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/petems/nexara-tray/internal/media"
)

const wavBitDepth = 16

// wavEncoder emits raw 16-bit little-endian PCM chunks; Assemble wraps them
// in a RIFF container.
type wavEncoder struct {
	*stream
}

func newWAV(mimeType string) (Encoder, error) {
	return &wavEncoder{stream: newStream(mimeType, &pcmSink{})}, nil
}

func (e *wavEncoder) Assemble(chunks [][]byte) ([]byte, error) {
	pcm := bytes.Join(chunks, nil)
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("wav: truncated sample data (%d bytes)", len(pcm))
	}

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}

	// The encoder patches the header sizes on Close, so it needs a seekable file.
	f, err := os.CreateTemp("", "nexara-*.wav")
	if err != nil {
		return nil, fmt.Errorf("wav: temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	enc := wav.NewEncoder(f, media.SampleRate, wavBitDepth, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: media.SampleRate},
		Data:           samples,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav: write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav: finalize: %w", err)
	}

	return os.ReadFile(f.Name())
}

type pcmSink struct {
	buf bytes.Buffer
}

func (s *pcmSink) write(frame []float32) error {
	var b [2]byte
	for _, v := range frame {
		binary.LittleEndian.PutUint16(b[:], uint16(floatToInt16(v)))
		s.buf.Write(b[:])
	}
	return nil
}

func (s *pcmSink) flush(bool) ([]byte, error) {
	if s.buf.Len() == 0 {
		return nil, nil
	}
	out := bytes.Clone(s.buf.Bytes())
	s.buf.Reset()
	return out, nil
}

func floatToInt16(v float32) int16 {
	switch {
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16 + 1
	}
	return int16(v * math.MaxInt16)
}
