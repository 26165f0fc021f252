package media

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

const framesPerBuffer = 512

// PortAudio is the Backend for local sound cards.
type PortAudio struct {
	log zerolog.Logger
}

// NewPortAudio initializes PortAudio. Close must be called on shutdown.
func NewPortAudio(log zerolog.Logger) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudio{log: log.With().Str("component", "portaudio").Logger()}, nil
}

// OpenInput starts capturing from the named device, or the default input
// when deviceID is empty.
func (p *PortAudio) OpenInput(ctx context.Context, deviceID string) (Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	device, err := p.findDevice(deviceID)
	if err != nil {
		return nil, err
	}
	return p.openDevice(device)
}

func (p *PortAudio) findDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
}

func (p *PortAudio) openDevice(device *portaudio.DeviceInfo) (*LiveTrack, error) {
	channels := device.MaxInputChannels
	if channels < 1 {
		return nil, fmt.Errorf("device %q has no input channels", device.Name)
	}
	if channels > 2 {
		channels = 2
	}

	buffer := make([]float32, framesPerBuffer*channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      SampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	track := NewLiveTrack(KindAudio, device.Name, nil)

	// Read loop; owns the stream.
	go func() {
		defer func() {
			stream.Stop()
			stream.Close()
		}()
		for !track.Ended() {
			if err := stream.Read(); err != nil {
				if err == portaudio.InputOverflowed {
					continue
				}
				if !track.Ended() {
					p.log.Warn().Err(err).Str("device", device.Name).Msg("Input stream ended")
					track.Stop()
				}
				return
			}
			track.Push(downmixInterleaved(buffer, channels, framesPerBuffer))
		}
	}()

	return track, nil
}

// InputDevices lists every device with at least one input channel.
func (p *PortAudio) InputDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:      d.Name,
				Label:   d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *PortAudio) Close() error {
	return portaudio.Terminate()
}

// downmixInterleaved averages interleaved channels into a new mono slice.
func downmixInterleaved(input []float32, channels, frames int) []float32 {
	out := make([]float32, frames)
	if channels <= 1 {
		copy(out, input)
		return out
	}

	for f := 0; f < frames; f++ {
		var sum float32
		base := f * channels
		for c := 0; c < channels; c++ {
			sum += input[base+c]
		}
		out[f] = sum / float32(channels)
	}
	return out
}

// LoopbackShare exposes a loopback input (BlackHole, a PulseAudio monitor
// source, Stereo Mix) as a shared system-audio stream. An empty device name
// means the user has not granted any share.
type LoopbackShare struct {
	backend *PortAudio
	device  string
}

func NewLoopbackShare(backend *PortAudio, device string) *LoopbackShare {
	return &LoopbackShare{backend: backend, device: device}
}

func (s *LoopbackShare) Request(ctx context.Context) (*Stream, error) {
	if s.device == "" {
		return nil, ErrShareDeclined
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := s.backend.findDevice(s.device)
	if err != nil {
		return nil, err
	}

	// Output-only devices grant a stream without audio.
	if info.MaxInputChannels == 0 {
		return &Stream{}, nil
	}

	track, err := s.backend.openDevice(info)
	if err != nil {
		return nil, err
	}
	return &Stream{Tracks: []Track{track}}, nil
}
