package proxysampler

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GeoffreyPlitt/debuggo"
)

var sampleDebug = debuggo.Debug("proxysampler:sample")

var (
	ErrSampleNotFound    = errors.New("sample not found")
	ErrEmptySample       = errors.New("sample has no frames")
	ErrInvalidChannels   = errors.New("sample must have 1 or 2 channels")
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
)

// Sample is a decoded, immutable block of PCM audio. Voices hold a pointer
// to it for as long as they sound, so the data must never be written after
// NewSample returns.
type Sample struct {
	Name       string
	Category   string
	SampleRate int
	Channels   int
	Length     int         // frames per channel
	Data       [][]float32 // planar, Data[ch][frame]
}

// NewSample builds a Sample from planar channel data. The slices are taken
// over by the sample; callers must not modify them afterwards.
func NewSample(name string, sampleRate int, data [][]float32) (*Sample, error) {
	if len(data) < 1 || len(data) > 2 {
		return nil, fmt.Errorf("sample %q: %w (got %d)", name, ErrInvalidChannels, len(data))
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample %q: %w (got %d)", name, ErrInvalidSampleRate, sampleRate)
	}
	length := len(data[0])
	for ch := 1; ch < len(data); ch++ {
		if len(data[ch]) < length {
			length = len(data[ch])
		}
	}
	if length == 0 {
		return nil, fmt.Errorf("sample %q: %w", name, ErrEmptySample)
	}
	planar := make([][]float32, len(data))
	for ch := range data {
		planar[ch] = data[ch][:length:length]
	}
	return &Sample{
		Name:       name,
		SampleRate: sampleRate,
		Channels:   len(planar),
		Length:     length,
		Data:       planar,
	}, nil
}

// NewSampleInterleaved deinterleaves frames into a new Sample.
func NewSampleInterleaved(name string, sampleRate, channels int, interleaved []float32) (*Sample, error) {
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("sample %q: %w (got %d)", name, ErrInvalidChannels, channels)
	}
	frames := len(interleaved) / channels
	data := make([][]float32, channels)
	for ch := range data {
		data[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			data[ch][i] = interleaved[i*channels+ch]
		}
	}
	return NewSample(name, sampleRate, data)
}

// SampleStore holds every sample known to the engine, keyed by name.
// It is used from the control thread; the audio thread only sees the
// *Sample pointers handed out by Get.
type SampleStore struct {
	mu      sync.RWMutex
	samples map[string]*Sample
}

// NewSampleStore creates an empty store
func NewSampleStore() *SampleStore {
	return &SampleStore{
		samples: make(map[string]*Sample),
	}
}

// Add stores s under its name, replacing any previous entry. The replaced
// Sample is left untouched so voices still reading it keep working.
func (st *SampleStore) Add(s *Sample) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.samples[s.Name]; exists {
		sampleDebug("Replacing sample: %s", s.Name)
	}
	st.samples[s.Name] = s
	sampleDebug("Registered sample: %s (rate: %d Hz, channels: %d, length: %d frames)",
		s.Name, s.SampleRate, s.Channels, s.Length)
}

// Register creates a Sample from already decoded planar data and stores it.
func (st *SampleStore) Register(name string, sampleRate int, data [][]float32) (*Sample, error) {
	s, err := NewSample(name, sampleRate, data)
	if err != nil {
		return nil, err
	}
	st.Add(s)
	return s, nil
}

// Get returns the sample registered under name
func (st *SampleStore) Get(name string) (*Sample, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.samples[name]
	return s, ok
}

// Contains reports whether name is registered
func (st *SampleStore) Contains(name string) bool {
	_, ok := st.Get(name)
	return ok
}

// Names returns the registered sample names in sorted order.
func (st *SampleStore) Names() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	names := make([]string, 0, len(st.samples))
	for name := range st.samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove drops name from the store and reports whether it was present.
func (st *SampleStore) Remove(name string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.samples[name]; !ok {
		return false
	}
	delete(st.samples, name)
	sampleDebug("Removed sample: %s", name)
	return true
}

// Clear removes all samples
func (st *SampleStore) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.samples = make(map[string]*Sample)
	sampleDebug("Sample store cleared")
}

// Size returns the number of registered samples
func (st *SampleStore) Size() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.samples)
}
