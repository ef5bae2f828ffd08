package proxysampler

import (
	"math"
	"sync/atomic"
)

// levelSmoothingSeconds is how long a meter takes to reach a new target.
const levelSmoothingSeconds = 0.1

// LevelMeter tracks the RMS of rendered blocks, gliding linearly towards
// each new value. Update runs on the audio thread, Value may be read from
// any goroutine.
type LevelMeter struct {
	current   float64
	target    float64
	step      float64
	countdown int
	rampLen   int
	published atomic.Uint64
}

// Reset sets the ramp length for sampleRate and zeroes the meter.
func (m *LevelMeter) Reset(sampleRate float64) {
	m.rampLen = int(math.Floor(sampleRate * levelSmoothingSeconds))
	m.current = 0
	m.target = 0
	m.step = 0
	m.countdown = 0
	m.published.Store(math.Float64bits(0))
}

// Update feeds one block of samples into the meter.
func (m *LevelMeter) Update(block []float32) {
	if len(block) == 0 {
		return
	}
	m.setTarget(rms(block))
	m.skip(len(block))
	m.published.Store(math.Float64bits(m.current))
}

func (m *LevelMeter) setTarget(t float64) {
	if t == m.target {
		return
	}
	if m.rampLen <= 0 {
		m.current, m.target, m.countdown = t, t, 0
		return
	}
	m.target = t
	m.countdown = m.rampLen
	m.step = (m.target - m.current) / float64(m.countdown)
}

func (m *LevelMeter) skip(n int) {
	if n >= m.countdown {
		m.current = m.target
		m.countdown = 0
		return
	}
	m.current += m.step * float64(n)
	m.countdown -= n
}

// Value returns the last published level.
func (m *LevelMeter) Value() float64 {
	return math.Float64frombits(m.published.Load())
}

func rms(block []float32) float64 {
	var sum float64
	for _, s := range block {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(block)))
}
