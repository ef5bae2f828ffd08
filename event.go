package proxysampler

import (
	"sync/atomic"

	"gitlab.com/gomidi/midi/v2"
)

// EventKind selects what a NoteEvent does
type EventKind int

const (
	NoteOn EventKind = iota
	NoteOff
	AllNotesOff
)

func (k EventKind) String() string {
	switch k {
	case NoteOn:
		return "note-on"
	case NoteOff:
		return "note-off"
	case AllNotesOff:
		return "all-notes-off"
	}
	return "unknown"
}

// MIDI controllers that silence everything
const (
	ccAllSoundOff = 120
	ccAllNotesOff = 123
)

// NoteEvent is a timestamped note instruction for one render block.
// Offset is the frame within the block at which the event applies.
type NoteEvent struct {
	Kind     EventKind
	Channel  int
	Note     int
	Velocity float32 // 0.0-1.0
	Offset   int
}

// ParseMIDI converts a raw MIDI message into a NoteEvent. Only note and
// all-notes-off messages are understood; everything else returns false.
func ParseMIDI(msg []byte, offset int) (NoteEvent, bool) {
	// every message handled here is three bytes long
	if len(msg) < 3 {
		return NoteEvent{}, false
	}
	m := midi.Message(msg)
	var ch, key, vel uint8

	switch {
	case m.GetNoteStart(&ch, &key, &vel):
		return NoteEvent{Kind: NoteOn, Channel: int(ch), Note: int(key), Velocity: float32(vel) / 127.0, Offset: offset}, true
	case m.GetNoteEnd(&ch, &key):
		return NoteEvent{Kind: NoteOff, Channel: int(ch), Note: int(key), Offset: offset}, true
	}

	var cc, val uint8
	if m.GetControlChange(&ch, &cc, &val) && (cc == ccAllNotesOff || cc == ccAllSoundOff) {
		return NoteEvent{Kind: AllNotesOff, Channel: int(ch), Offset: offset}, true
	}
	return NoteEvent{}, false
}

// eventQueueSize must be a power of two.
const eventQueueSize = 256

// eventSlot carries a sequence number telling producers and the consumer
// whose turn the slot is. seq is stored relative to the slot index so the
// zero value marks every slot free for the first lap.
type eventSlot struct {
	seq atomic.Uint64
	ev  NoteEvent
}

// EventQueue is a bounded multi-producer single-consumer ring. Any number
// of control goroutines may push; only the audio thread pops. Neither side
// blocks or allocates.
type EventQueue struct {
	slots [eventQueueSize]eventSlot
	head  atomic.Uint64 // next position to read
	tail  atomic.Uint64 // next position to reserve
}

// Push appends ev, returning false when the queue is full.
func (q *EventQueue) Push(ev NoteEvent) bool {
	for {
		pos := q.tail.Load()
		idx := pos & (eventQueueSize - 1)
		slot := &q.slots[idx]
		diff := int64(slot.seq.Load()+idx) - int64(pos)
		switch {
		case diff == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				slot.ev = ev
				slot.seq.Store(pos + 1 - idx)
				return true
			}
		case diff < 0:
			// the slot still holds an unread event from the previous lap
			return false
		}
		// another producer took pos, try again
	}
}

// Pop removes the oldest event. It must only be called from one goroutine.
func (q *EventQueue) Pop() (NoteEvent, bool) {
	pos := q.head.Load()
	idx := pos & (eventQueueSize - 1)
	slot := &q.slots[idx]
	if slot.seq.Load()+idx != pos+1 {
		return NoteEvent{}, false
	}
	ev := slot.ev
	slot.seq.Store(pos + eventQueueSize - idx)
	q.head.Store(pos + 1)
	return ev, true
}

// Len returns the number of queued events, counting pushes still in flight
func (q *EventQueue) Len() int {
	return int(q.tail.Load() - q.head.Load())
}
