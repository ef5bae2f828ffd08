package proxysampler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes planar float audio to path as 16-bit PCM, clipping to
// [-1, 1]. All channels must have the same length.
func WriteWAV(path string, channels [][]float32, sampleRate int) error {
	if len(channels) == 0 {
		return fmt.Errorf("%w: no channels to write", ErrInvalidParameter)
	}
	frames := len(channels[0])
	for _, ch := range channels {
		if len(ch) != frames {
			return fmt.Errorf("%w: channel length mismatch", ErrInvalidParameter)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	defer f.Close()

	numChannels := len(channels)
	data := make([]int, frames*numChannels)
	for i := 0; i < frames; i++ {
		for ch := range channels {
			v := channels[ch][i]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			data[i*numChannels+ch] = int(v * 32767)
		}
	}

	enc := wav.NewEncoder(f, sampleRate, 16, numChannels, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	return nil
}
