package proxysampler

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

const testSampleRate = 44100

// constantSample returns a mono sample holding value in every frame.
func constantSample(t *testing.T, name string, frames int, value float32) *Sample {
	t.Helper()
	data := make([]float32, frames)
	for i := range data {
		data[i] = value
	}
	s, err := NewSample(name, testSampleRate, [][]float32{data})
	if err != nil {
		t.Fatalf("Failed to create sample %s: %v", name, err)
	}
	return s
}

// rampSample returns a mono sample whose frame i holds float32(i).
func rampSample(t *testing.T, name string, frames int) *Sample {
	t.Helper()
	data := make([]float32, frames)
	for i := range data {
		data[i] = float32(i)
	}
	s, err := NewSample(name, testSampleRate, [][]float32{data})
	if err != nil {
		t.Fatalf("Failed to create sample %s: %v", name, err)
	}
	return s
}

// sineSample returns a one-second stereo sine at freq.
func sineSample(t *testing.T, name string, freq float64) *Sample {
	t.Helper()
	left := make([]float32, testSampleRate)
	right := make([]float32, testSampleRate)
	for i := range left {
		v := float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate))
		left[i] = v
		right[i] = v
	}
	s, err := NewSample(name, testSampleRate, [][]float32{left, right})
	if err != nil {
		t.Fatalf("Failed to create sample %s: %v", name, err)
	}
	return s
}

// newTestEngine returns a prepared engine with s selected.
func newTestEngine(t *testing.T, s *Sample, maxBlock int) *Engine {
	t.Helper()
	store := NewSampleStore()
	store.Add(s)
	e := NewEngine(store)
	if err := e.Prepare(testSampleRate, maxBlock); err != nil {
		t.Fatalf("Failed to prepare engine: %v", err)
	}
	if err := e.SetSample(s.Name); err != nil {
		t.Fatalf("Failed to select sample: %v", err)
	}
	return e
}

// stereoBlock allocates an n-frame stereo output buffer.
func stereoBlock(n int) [][]float32 {
	return [][]float32{make([]float32, n), make([]float32, n)}
}

// writeTestWAV writes planar data as a 16-bit WAV in a temp dir and returns
// its path.
func writeTestWAV(t *testing.T, dir, file string, data [][]float32) string {
	t.Helper()
	path := filepath.Join(dir, file)
	if err := WriteWAV(path, data, testSampleRate); err != nil {
		t.Fatalf("Failed to write test WAV %s: %v", path, err)
	}
	return path
}

// writeTestFile writes content to dir/file and returns its path.
func writeTestFile(t *testing.T, dir, file, content string) string {
	t.Helper()
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func maxAbs(buf []float32) float32 {
	var m float32
	for _, v := range buf {
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}

// maxStep returns the largest jump between neighbouring frames.
func maxStep(buf []float32) float32 {
	var m float32
	for i := 1; i < len(buf); i++ {
		d := buf[i] - buf[i-1]
		if d < 0 {
			d = -d
		}
		if d > m {
			m = d
		}
	}
	return m
}

func approxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}
