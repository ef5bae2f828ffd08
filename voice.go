package proxysampler

import "math"

// CrossfadeFrames is the length of the fade-out applied to the previous
// note when a monophonic voice is retriggered (about 6.8 ms at 44.1 kHz).
const CrossfadeFrames = 300

// ReferenceNote plays the sample at its original speed.
const ReferenceNote = 60

// VoiceState is the externally visible state of a Voice
type VoiceState int

const (
	VoiceIdle VoiceState = iota
	VoiceAttacking
	VoiceSustaining
	VoiceReleasing
	VoiceCrossfading
)

func (s VoiceState) String() string {
	switch s {
	case VoiceIdle:
		return "idle"
	case VoiceAttacking:
		return "attacking"
	case VoiceSustaining:
		return "sustaining"
	case VoiceReleasing:
		return "releasing"
	case VoiceCrossfading:
		return "crossfading"
	}
	return "unknown"
}

// PitchRatio returns the playback speed for a MIDI note relative to
// ReferenceNote.
func PitchRatio(note int) float64 {
	return math.Pow(2.0, float64(note-ReferenceNote)/12.0)
}

// crossfade is the frozen copy of the stream a voice was playing before a
// monophonic retrigger. It fades out linearly over CrossfadeFrames.
type crossfade struct {
	active     bool
	sample     *Sample
	position   float64
	pitchRatio float64
	level      float64
	lgain      float32
	rgain      float32
	elapsed    int
}

// Voice plays one note of a Sample. Voices live in a fixed array inside the
// VoicePool and are reused; none of the methods allocate.
type Voice struct {
	sample     *Sample
	note       int
	position   float64 // fractional read cursor, in source frames
	pitchRatio float64
	lgain      float32
	rgain      float32
	env        Envelope

	// exhausted is set once the cursor has passed the end of the sample.
	// The cursor keeps wrapping for display but no more audio is read.
	exhausted bool

	fade crossfade
}

// Start begins note from the top of s with a fresh attack ramp.
func (v *Voice) Start(note int, velocity float32, s *Sample) {
	if s == nil {
		v.Stop(false)
		return
	}
	v.sample = s
	v.note = note
	v.position = 0
	v.pitchRatio = PitchRatio(note)
	v.lgain = velocity
	v.rgain = velocity
	v.exhausted = false
	v.fade = crossfade{}
	v.env.Trigger()
}

// Retrigger starts note like Start, but first freezes whatever the voice is
// currently playing into a crossfade so the old stream fades out instead of
// being cut. A fade already running on the voice is replaced; the pool
// hands it to a spare voice first with TakeFade.
func (v *Voice) Retrigger(note int, velocity float32, s *Sample) {
	var snap crossfade
	if v.sample != nil && !v.exhausted && v.env.Level() > 0 {
		snap = crossfade{
			active:     true,
			sample:     v.sample,
			position:   v.position,
			pitchRatio: v.pitchRatio,
			level:      v.env.Level(),
			lgain:      v.lgain,
			rgain:      v.rgain,
		}
	}
	v.Start(note, velocity, s)
	if v.sample != nil {
		v.fade = snap
	}
}

// TakeFade moves the crossfade running on src onto v, which must be idle.
// It reports false when there was nothing to move or v is busy.
func (v *Voice) TakeFade(src *Voice) bool {
	if !src.fade.active || !v.IsIdle() {
		return false
	}
	v.fade = src.fade
	src.fade = crossfade{}
	return true
}

// Stop ends the note. With allowTail the release ramp runs; without it the
// voice goes idle at once and drops its sample reference.
func (v *Voice) Stop(allowTail bool) {
	if allowTail {
		if v.sample != nil {
			v.env.Release()
		}
		return
	}
	v.sample = nil
	v.exhausted = false
	v.fade = crossfade{}
	v.env.Kill()
}

// SetRates forwards new envelope increments to the voice.
func (v *Voice) SetRates(attackRate, releaseRate float64) {
	v.env.SetRates(attackRate, releaseRate)
}

// IsActive reports whether the voice holds a note that has not been released.
func (v *Voice) IsActive() bool {
	return v.sample != nil && v.env.Stage() != EnvelopeRelease
}

// IsIdle reports whether the voice produces no sound at all.
func (v *Voice) IsIdle() bool {
	return v.sample == nil && !v.fade.active
}

// Sounding reports whether the voice carries a note, released or not.
func (v *Voice) Sounding() bool {
	return v.sample != nil
}

// Crossfading reports whether a previous note is still fading out.
func (v *Voice) Crossfading() bool {
	return v.fade.active
}

// State returns what the voice is doing, for display.
func (v *Voice) State() VoiceState {
	if v.sample == nil {
		return VoiceIdle
	}
	if v.fade.active {
		return VoiceCrossfading
	}
	switch v.env.Stage() {
	case EnvelopeAttack:
		return VoiceAttacking
	case EnvelopeHold:
		return VoiceSustaining
	case EnvelopeRelease:
		return VoiceReleasing
	}
	return VoiceIdle
}

// Note returns the MIDI note last started on the voice.
func (v *Voice) Note() int { return v.note }

// Level returns the current envelope level.
func (v *Voice) Level() float64 { return v.env.Level() }

// CurrentPosition is the read cursor as a frame index. It wraps to zero at
// the end of the sample and is meant for display only.
func (v *Voice) CurrentPosition() int {
	if v.sample == nil {
		return 0
	}
	return int(v.position)
}

// SampleLength returns the length of the sample the voice is playing, or 0.
func (v *Voice) SampleLength() int {
	if v.sample == nil {
		return 0
	}
	return v.sample.Length
}

// Render adds numFrames of this voice into out starting at startOffset.
// out holds one slice per output channel; a mono output receives the mix
// of both sample channels.
func (v *Voice) Render(out [][]float32, startOffset, numFrames int) {
	if v.IsIdle() || len(out) == 0 || numFrames <= 0 {
		return
	}
	outL := out[0][startOffset : startOffset+numFrames]
	var outR []float32
	if len(out) > 1 {
		outR = out[1][startOffset : startOffset+numFrames]
	}

	for i := 0; i < numFrames; i++ {
		if v.sample != nil {
			v.renderFrame(outL, outR, i)
		}
		if v.fade.active {
			v.renderFadeFrame(outL, outR, i)
		}
		if v.IsIdle() {
			return
		}
	}
}

func (v *Voice) renderFrame(outL, outR []float32, i int) {
	level, finished := v.env.Tick()
	if finished {
		v.sample = nil
		v.exhausted = false
		return
	}

	s := v.sample
	if !v.exhausted {
		l, r := interpolate(s, v.position)
		g := float32(level)
		mixFrame(outL, outR, i, l*g*v.lgain, r*g*v.rgain)
	}

	v.position += v.pitchRatio
	if v.position >= float64(s.Length) {
		// one-shot: the release ramp takes over, the cursor wraps for display
		if v.env.Stage() != EnvelopeRelease {
			v.env.Release()
		}
		v.exhausted = true
		v.position = 0
	}
}

func (v *Voice) renderFadeFrame(outL, outR []float32, i int) {
	f := &v.fade
	factor := 1.0 - float64(f.elapsed)/CrossfadeFrames
	g := float32(f.level * factor)
	l, r := interpolate(f.sample, f.position)
	mixFrame(outL, outR, i, l*g*f.lgain, r*g*f.rgain)

	f.position += f.pitchRatio
	f.elapsed++
	if f.elapsed >= CrossfadeFrames || f.position >= float64(f.sample.Length) {
		v.fade = crossfade{}
	}
}

// interpolate reads s at a fractional frame position. Indices are always
// clamped into the sample so the read can never run past the end.
func interpolate(s *Sample, pos float64) (l, r float32) {
	last := s.Length - 1
	i0 := int(pos)
	if i0 < 0 {
		i0 = 0
	} else if i0 > last {
		i0 = last
	}
	i1 := i0 + 1
	if i1 > last {
		i1 = last
	}
	alpha := float32(pos - float64(i0))
	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}

	a, b := s.Data[0][i0], s.Data[0][i1]
	l = a + alpha*(b-a)
	if s.Channels < 2 {
		return l, l
	}
	a, b = s.Data[1][i0], s.Data[1][i1]
	return l, a + alpha*(b-a)
}

func mixFrame(outL, outR []float32, i int, l, r float32) {
	if outR == nil {
		outL[i] += 0.5 * (l + r)
		return
	}
	outL[i] += l
	outR[i] += r
}
