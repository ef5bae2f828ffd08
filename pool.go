package proxysampler

// MaxVoices is the fixed polyphony of a VoicePool.
const MaxVoices = 8

// noNote marks the absence of a held monophonic note.
const noNote = -1

// VoicePosition is the display state of one voice slot.
type VoicePosition struct {
	Position int
	Length   int // frames in the sample this slot plays, 0 when idle
	Active   bool
}

// VoicePool owns a fixed set of voices and routes note events to them.
// All methods run on the audio thread.
type VoicePool struct {
	voices      [MaxVoices]Voice
	monophonic  bool
	lastMono    int
	attackRate  float64
	releaseRate float64
}

// NewVoicePool returns a polyphonic pool with instant envelope ramps.
func NewVoicePool() *VoicePool {
	p := &VoicePool{lastMono: noNote}
	p.SetRates(1, 1)
	return p
}

// SetRates pushes new envelope increments to every voice, including the
// ones currently sounding.
func (p *VoicePool) SetRates(attackRate, releaseRate float64) {
	p.attackRate = attackRate
	p.releaseRate = releaseRate
	for i := range p.voices {
		p.voices[i].SetRates(attackRate, releaseRate)
	}
}

// Monophonic reports the mode the pool is running in.
func (p *VoicePool) Monophonic() bool { return p.monophonic }

// LastMonophonicNote returns the note held in monophonic mode, or -1.
func (p *VoicePool) LastMonophonicNote() int { return p.lastMono }

// SetMonophonic switches mode. Any change hard-stops every voice, since
// notes started under one mode have no meaning in the other.
func (p *VoicePool) SetMonophonic(mono bool) {
	if mono == p.monophonic {
		return
	}
	p.stopAll()
	p.monophonic = mono
}

// NoteOn starts note on s. Notes outside 0-127 and notes without a sample
// are ignored; in polyphonic mode a note-on with no idle voice is dropped.
func (p *VoicePool) NoteOn(note int, velocity float32, s *Sample) {
	if note < 0 || note > 127 || s == nil {
		return
	}
	if velocity < 0 {
		velocity = 0
	} else if velocity > 1 {
		velocity = 1
	}
	if p.monophonic {
		p.monoNoteOn(note, velocity, s)
		return
	}

	// a repeated note releases its previous instance first
	for i := range p.voices {
		v := &p.voices[i]
		if v.IsActive() && v.Note() == note {
			v.Stop(true)
		}
	}
	for i := range p.voices {
		v := &p.voices[i]
		if v.IsIdle() {
			v.Start(note, velocity, s)
			return
		}
	}
}

// monoNoteOn reuses the sounding voice, crossfading its old stream out,
// or starts the first idle voice when nothing is sounding.
func (p *VoicePool) monoNoteOn(note int, velocity float32, s *Sample) {
	p.lastMono = note

	target := -1
	for i := range p.voices {
		if p.voices[i].Sounding() {
			if target < 0 {
				target = i
				continue
			}
			// only one voice may carry the monophonic note
			p.voices[i].Stop(false)
		}
	}
	if target >= 0 {
		v := &p.voices[target]
		// an earlier fade finishes its window on a spare voice
		if v.Crossfading() {
			for i := range p.voices {
				if i != target && p.voices[i].TakeFade(v) {
					break
				}
			}
		}
		v.Retrigger(note, velocity, s)
		return
	}
	for i := range p.voices {
		if p.voices[i].IsIdle() {
			p.voices[i].Start(note, velocity, s)
			return
		}
	}
	p.voices[0].Start(note, velocity, s)
}

// NoteOff releases the voices playing note. In monophonic mode only the
// most recent note can be released; stray offs for older notes are ignored.
func (p *VoicePool) NoteOff(note int) {
	if note < 0 || note > 127 {
		return
	}
	if p.monophonic {
		if note != p.lastMono {
			return
		}
		p.lastMono = noNote
	}
	for i := range p.voices {
		v := &p.voices[i]
		if v.IsActive() && v.Note() == note {
			v.Stop(true)
		}
	}
}

// AllNotesOff silences every voice immediately.
func (p *VoicePool) AllNotesOff() {
	p.stopAll()
}

func (p *VoicePool) stopAll() {
	for i := range p.voices {
		p.voices[i].Stop(false)
	}
	p.lastMono = noNote
}

// Handle applies one note event using s for note-ons.
func (p *VoicePool) Handle(ev NoteEvent, s *Sample) {
	switch ev.Kind {
	case NoteOn:
		if ev.Velocity <= 0 {
			p.NoteOff(ev.Note)
			return
		}
		p.NoteOn(ev.Note, ev.Velocity, s)
	case NoteOff:
		p.NoteOff(ev.Note)
	case AllNotesOff:
		p.AllNotesOff()
	}
}

// Render accumulates every voice into out[.][start:start+n].
func (p *VoicePool) Render(out [][]float32, start, n int) {
	for i := range p.voices {
		p.voices[i].Render(out, start, n)
	}
}

// AnyActive reports whether any voice holds an unreleased note.
func (p *VoicePool) AnyActive() bool {
	for i := range p.voices {
		if p.voices[i].IsActive() {
			return true
		}
	}
	return false
}

// AnySounding reports whether any voice still produces audio.
func (p *VoicePool) AnySounding() bool {
	for i := range p.voices {
		if !p.voices[i].IsIdle() {
			return true
		}
	}
	return false
}

// ActiveCount returns the number of voices holding an unreleased note.
func (p *VoicePool) ActiveCount() int {
	n := 0
	for i := range p.voices {
		if p.voices[i].IsActive() {
			n++
		}
	}
	return n
}

// Positions fills dst with the display state of every slot.
func (p *VoicePool) Positions(dst *[MaxVoices]VoicePosition) {
	for i := range p.voices {
		v := &p.voices[i]
		dst[i] = VoicePosition{Position: v.CurrentPosition(), Length: v.SampleLength(), Active: v.IsActive()}
	}
}

// Voice exposes slot i for inspection.
func (p *VoicePool) Voice(i int) *Voice {
	return &p.voices[i]
}

// copyFrom makes p an exact copy of src. Voices are plain values, so this
// is a cheap snapshot usable on the audio thread.
func (p *VoicePool) copyFrom(src *VoicePool) {
	*p = *src
}
