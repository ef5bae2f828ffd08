package proxysampler

import (
	"encoding/binary"
	"fmt"
	"math"
)

// StreamReader pulls audio from an Engine as interleaved little-endian
// float32 frames, for output libraries that read from an io.Reader.
// Live events reach the engine through Engine.Enqueue.
type StreamReader struct {
	engine   *Engine
	channels int
	block    [][]float32
}

// NewStreamReader wraps a prepared engine. channels must be 1 or 2.
func NewStreamReader(engine *Engine, channels int) (*StreamReader, error) {
	if !engine.Prepared() {
		return nil, ErrNotPrepared
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: %d output channels", ErrInvalidParameter, channels)
	}
	block := make([][]float32, channels)
	for ch := range block {
		block[ch] = make([]float32, engine.MaxBlock())
	}
	return &StreamReader{engine: engine, channels: channels, block: block}, nil
}

// FrameSize is the number of bytes per interleaved frame
func (r *StreamReader) FrameSize() int { return r.channels * 4 }

// Read renders as many whole frames as fit in p. It never returns an error.
func (r *StreamReader) Read(p []byte) (int, error) {
	frameSize := r.FrameSize()
	frames := len(p) / frameSize
	written := 0
	for frames > 0 {
		n := frames
		if n > len(r.block[0]) {
			n = len(r.block[0])
		}
		view := r.block
		for ch := range view {
			view[ch] = view[ch][:n]
		}
		r.engine.Render(view, nil)
		for i := 0; i < n; i++ {
			for ch := 0; ch < r.channels; ch++ {
				binary.LittleEndian.PutUint32(p[written:], math.Float32bits(view[ch][i]))
				written += 4
			}
		}
		for ch := range view {
			view[ch] = view[ch][:cap(view[ch])]
		}
		frames -= n
	}
	return written, nil
}

// Close satisfies io.ReadCloser; the engine keeps running.
func (r *StreamReader) Close() error { return nil }
