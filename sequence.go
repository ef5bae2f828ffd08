package proxysampler

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/GeoffreyPlitt/debuggo"
	"gitlab.com/gomidi/midi/v2/smf"
)

var sequenceDebug = debuggo.Debug("proxysampler:sequence")

// TimedEvent places a NoteEvent at an absolute output frame.
type TimedEvent struct {
	Frame int64
	Event NoteEvent
}

// SortTimedEvents orders events by frame, keeping the order of events that
// share a frame.
func SortTimedEvents(events []TimedEvent) {
	slices.SortStableFunc(events, func(a, b TimedEvent) int {
		return cmp.Compare(a.Frame, b.Frame)
	})
}

// ReadMIDIFile reads the note events of every track of a standard MIDI file,
// timed in frames at sampleRate.
func ReadMIDIFile(filePath string, sampleRate float64) ([]TimedEvent, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open MIDI file: %w", err)
	}
	defer f.Close()
	return ReadMIDI(f, sampleRate)
}

// ReadMIDI is ReadMIDIFile for an already open stream.
func ReadMIDI(r io.Reader, sampleRate float64) ([]TimedEvent, error) {
	if !(sampleRate > 0) {
		return nil, fmt.Errorf("%w: sample rate %v", ErrInvalidParameter, sampleRate)
	}

	var events []TimedEvent
	reader := smf.ReadTracksFrom(r).Do(func(te smf.TrackEvent) {
		if te.Message.IsMeta() {
			return
		}
		ev, ok := ParseMIDI(te.Message, 0)
		if !ok {
			return
		}
		frame := int64(float64(te.AbsMicroSeconds) * sampleRate / 1e6)
		events = append(events, TimedEvent{Frame: frame, Event: ev})
	})
	if err := reader.Error(); err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}

	SortTimedEvents(events)
	sequenceDebug("Read %d note events", len(events))
	return events, nil
}

// RenderOffline renders frames of audio from a prepared engine, feeding it
// events at their frames. Events must be sorted by frame. It returns one
// slice per output channel.
func RenderOffline(e *Engine, events []TimedEvent, frames int64, channels int) ([][]float32, error) {
	if !e.Prepared() {
		return nil, ErrNotPrepared
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: %d output channels", ErrInvalidParameter, channels)
	}
	if frames < 0 {
		return nil, fmt.Errorf("%w: %d frames", ErrInvalidParameter, frames)
	}

	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	block := int64(e.MaxBlock())
	view := make([][]float32, channels)
	pending := make([]NoteEvent, 0, 64)

	next := 0
	for start := int64(0); start < frames; start += block {
		end := min(start+block, frames)
		pending = pending[:0]
		for next < len(events) && events[next].Frame < end {
			ev := events[next].Event
			ev.Offset = int(max(events[next].Frame-start, 0))
			pending = append(pending, ev)
			next++
		}
		for ch := range view {
			view[ch] = out[ch][start:end]
		}
		e.Render(view, pending)
	}
	sequenceDebug("Rendered %d frames, %d of %d events applied", frames, next, len(events))
	return out, nil
}

// SequenceEnd returns the frame of the last event, or 0 for none.
func SequenceEnd(events []TimedEvent) int64 {
	var end int64
	for _, ev := range events {
		end = max(end, ev.Frame)
	}
	return end
}

// ParseNoteList reads a comma separated list of MIDI note numbers.
func ParseNoteList(list string) ([]int, error) {
	var notes []int
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		note, err := strconv.Atoi(field)
		if err != nil || note < 0 || note > 127 {
			return nil, fmt.Errorf("%w: note %q", ErrInvalidParameter, field)
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// NoteSequence plays notes one after another, each held for length seconds
// and followed by gap seconds of silence.
func NoteSequence(notes []int, length, gap float64, velocity float32, sampleRate float64) []TimedEvent {
	step := int64((length + gap) * sampleRate)
	held := int64(length * sampleRate)

	events := make([]TimedEvent, 0, 2*len(notes))
	for i, note := range notes {
		start := int64(i) * step
		events = append(events,
			TimedEvent{Frame: start, Event: NoteEvent{Kind: NoteOn, Note: note, Velocity: velocity}},
			TimedEvent{Frame: start + held, Event: NoteEvent{Kind: NoteOff, Note: note}},
		)
	}
	SortTimedEvents(events)
	return events
}
