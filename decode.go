package proxysampler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

var decodeDebug = debuggo.Debug("proxysampler:decode")

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// DecodeFile reads a WAV, FLAC or MP3 file into a Sample named name.
// Decoding allocates and does file I/O; never call it from the audio thread.
func DecodeFile(name, filePath string) (*Sample, error) {
	decodeDebug("Decoding %s as %q", filePath, name)

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample file %s: %w", filePath, err)
	}
	defer file.Close()

	var (
		sampleRate int
		data       [][]float32
	)
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".wav":
		sampleRate, data, err = decodeWAV(file)
	case ".flac":
		sampleRate, data, err = decodeFLAC(file)
	case ".mp3":
		sampleRate, data, err = decodeMP3(file)
	default:
		return nil, fmt.Errorf("%w: %s (supported: .wav, .flac, .mp3)", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filePath, err)
	}

	s, err := NewSample(name, sampleRate, data)
	if err != nil {
		return nil, err
	}
	decodeDebug("Decoded %s: %d Hz, %d channels, %d frames", filePath, s.SampleRate, s.Channels, s.Length)
	return s, nil
}

// normalizeInt scales a signed PCM integer of the given bit depth to [-1, 1].
func normalizeInt(v int, bitDepth int) float32 {
	switch bitDepth {
	case 8:
		// 8-bit WAV is unsigned
		return float32(v-128) / 128.0
	case 16:
		return float32(v) / 32768.0
	case 24:
		return float32(v) / 8388608.0
	case 32:
		return float32(float64(v) / 2147483648.0)
	default:
		return float32(v) / 32768.0
	}
}

// usableChannels keeps at most two channels; extra channels are dropped.
func usableChannels(n int) int {
	if n > 2 {
		decodeDebug("Dropping %d extra channels", n-2)
		return 2
	}
	return n
}

func decodeWAV(r io.ReadSeeker) (int, [][]float32, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return 0, nil, errors.New("invalid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read audio data: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return 0, nil, errors.New("invalid WAV buffer")
	}

	srcChannels := buf.Format.NumChannels
	channels := usableChannels(srcChannels)
	frames := len(buf.Data) / srcChannels
	bitDepth := int(decoder.BitDepth)

	data := make([][]float32, channels)
	for ch := range data {
		data[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			data[ch][i] = normalizeInt(buf.Data[i*srcChannels+ch], bitDepth)
		}
	}
	return buf.Format.SampleRate, data, nil
}

func decodeFLAC(r io.Reader) (int, [][]float32, error) {
	stream, err := flac.New(r)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create FLAC decoder: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	if info == nil || info.NChannels == 0 {
		return 0, nil, errors.New("no stream info available")
	}

	channels := usableChannels(int(info.NChannels))
	bitDepth := int(info.BitsPerSample)

	data := make([][]float32, channels)
	if info.NSamples > 0 {
		for ch := range data {
			data[ch] = make([]float32, 0, int(info.NSamples))
		}
	}
	for {
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, nil, fmt.Errorf("failed to read FLAC frame: %w", err)
		}
		for ch := 0; ch < channels; ch++ {
			for _, v := range frame.Subframes[ch].Samples {
				data[ch] = append(data[ch], normalizeInt(int(v), bitDepth))
			}
		}
	}
	return int(info.SampleRate), data, nil
}

// decodeMP3 always yields stereo; go-mp3 emits interleaved 16-bit LE pairs.
func decodeMP3(r io.Reader) (int, [][]float32, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read MP3 stream: %w", err)
	}

	const bytesPerFrame = 4
	frames := len(raw) / bytesPerFrame
	data := [][]float32{make([]float32, frames), make([]float32, frames)}
	for i := 0; i < frames; i++ {
		left := int16(binary.LittleEndian.Uint16(raw[i*bytesPerFrame:]))
		right := int16(binary.LittleEndian.Uint16(raw[i*bytesPerFrame+2:]))
		data[0][i] = float32(left) / 32768.0
		data[1][i] = float32(right) / 32768.0
	}
	return decoder.SampleRate(), data, nil
}
