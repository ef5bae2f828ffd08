package proxysampler

import (
	"errors"
	"testing"
)

func TestSampleStore(t *testing.T) {
	store := NewSampleStore()
	if store.Size() != 0 {
		t.Errorf("Expected empty store, got %d", store.Size())
	}

	if _, err := store.Register("b", testSampleRate, [][]float32{{0.1, 0.2}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	store.Add(constantSample(t, "a", 4, 0.5))

	if store.Size() != 2 {
		t.Errorf("Expected 2 samples, got %d", store.Size())
	}
	if names := store.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Expected sorted names [a b], got %v", names)
	}
	if !store.Contains("a") || store.Contains("c") {
		t.Error("Contains returned the wrong answer")
	}

	if !store.Remove("a") || store.Remove("a") {
		t.Error("Expected Remove to succeed once")
	}
	store.Clear()
	if store.Size() != 0 {
		t.Errorf("Expected Clear to empty the store, got %d", store.Size())
	}
}

func TestSampleStoreReplaceKeepsOldSample(t *testing.T) {
	store := NewSampleStore()
	old := constantSample(t, "pad", 4, 0.5)
	store.Add(old)
	store.Add(constantSample(t, "pad", 8, 0.25))

	got, _ := store.Get("pad")
	if got.Length != 8 {
		t.Errorf("Expected the replacement, got length %d", got.Length)
	}
	if old.Length != 4 || old.Data[0][0] != 0.5 {
		t.Error("The replaced sample must stay intact for voices still playing it")
	}
}

func TestNewSampleValidation(t *testing.T) {
	if _, err := NewSample("x", testSampleRate, nil); !errors.Is(err, ErrInvalidChannels) {
		t.Errorf("Expected ErrInvalidChannels, got %v", err)
	}
	if _, err := NewSample("x", testSampleRate, [][]float32{{1}, {1}, {1}}); !errors.Is(err, ErrInvalidChannels) {
		t.Errorf("Expected ErrInvalidChannels for 3 channels, got %v", err)
	}
	if _, err := NewSample("x", 0, [][]float32{{1}}); !errors.Is(err, ErrInvalidSampleRate) {
		t.Errorf("Expected ErrInvalidSampleRate, got %v", err)
	}
	if _, err := NewSample("x", testSampleRate, [][]float32{{}}); !errors.Is(err, ErrEmptySample) {
		t.Errorf("Expected ErrEmptySample, got %v", err)
	}
}

func TestNewSampleTrimsToShortestChannel(t *testing.T) {
	s, err := NewSample("x", testSampleRate, [][]float32{{1, 2, 3}, {4, 5}})
	if err != nil {
		t.Fatalf("NewSample failed: %v", err)
	}
	if s.Length != 2 || len(s.Data[0]) != 2 {
		t.Errorf("Expected both channels trimmed to 2 frames, got %d", s.Length)
	}
}

func TestNewSampleInterleaved(t *testing.T) {
	s, err := NewSampleInterleaved("x", testSampleRate, 2, []float32{1, -1, 2, -2, 3, -3})
	if err != nil {
		t.Fatalf("NewSampleInterleaved failed: %v", err)
	}
	if s.Channels != 2 || s.Length != 3 {
		t.Fatalf("Expected 2 channels of 3 frames, got %d/%d", s.Channels, s.Length)
	}
	if s.Data[0][2] != 3 || s.Data[1][2] != -3 {
		t.Errorf("Unexpected deinterleaved data: %v", s.Data)
	}
}
