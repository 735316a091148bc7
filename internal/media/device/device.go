// Package device opens the PortAudio capture/playback streams the audio
// pipeline reads PCM from and writes PCM to (spec §4.8). Device
// enumeration and selection are ambient operator concerns, not part of
// the call engine's core, but the stream lifecycle itself is exercised
// by every session.
package device

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Stream abstracts a PortAudio stream so tests can substitute a double,
// matching the teacher's paStream interface in client/audio.go.
type Stream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
	Write() error
}

// Info describes one available audio device.
type Info struct {
	ID   int
	Name string
}

// ListInputs returns available input devices.
func ListInputs() ([]Info, error) {
	return listDevices(func(d *portaudio.DeviceInfo) bool { return d.MaxInputChannels > 0 })
}

// ListOutputs returns available output devices.
func ListOutputs() ([]Info, error) {
	return listDevices(func(d *portaudio.DeviceInfo) bool { return d.MaxOutputChannels > 0 })
}

func listDevices(match func(*portaudio.DeviceInfo) bool) ([]Info, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device: list: %w", err)
	}
	var out []Info
	for i, d := range devices {
		if match(d) {
			out = append(out, Info{ID: i, Name: d.Name})
		}
	}
	return out, nil
}

// OpenCapture opens an input stream at sampleRate/channels delivering
// frameSize-sample windows into buf on each Read. deviceID < 0 selects
// the system default.
func OpenCapture(deviceID, sampleRate, channels, frameSize int, buf []float32) (Stream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device: list: %w", err)
	}
	dev, err := resolveDevice(devices, deviceID, portaudio.DefaultInputDevice)
	if err != nil {
		return nil, err
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: frameSize,
	}
	s, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("device: open capture: %w", err)
	}
	return s, nil
}

// OpenPlayback opens an output stream at sampleRate/channels, pulling
// frameSize-sample windows from buf on each Write. deviceID < 0 selects
// the system default.
func OpenPlayback(deviceID, sampleRate, channels, frameSize int, buf []float32) (Stream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device: list: %w", err)
	}
	dev, err := resolveDevice(devices, deviceID, portaudio.DefaultOutputDevice)
	if err != nil {
		return nil, err
	}
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: frameSize,
	}
	s, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("device: open playback: %w", err)
	}
	return s, nil
}

// resolveDevice returns the device at id if valid, otherwise calls fallback.
func resolveDevice(devices []*portaudio.DeviceInfo, id int, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if id >= 0 && id < len(devices) {
		return devices[id], nil
	}
	return fallback()
}
