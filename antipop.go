package proxysampler

// AntiPopFrames is the length of the block-level blend ramp.
const AntiPopFrames = 32

// AntiPop smooths the first frames after a burst of note events. Before the
// events are applied it renders a short preview of what the voices would
// have played without them; afterwards the real output is ramped in from
// that preview. It complements the per-voice crossfade and is off by default.
type AntiPop struct {
	shadow   VoicePool
	scratch  [2][AntiPopFrames]float32
	views    [][]float32
	offset   int
	frames   int
	captured bool
}

// NewAntiPop preallocates everything Capture and Apply need.
func NewAntiPop() *AntiPop {
	a := &AntiPop{}
	a.views = [][]float32{a.scratch[0][:], a.scratch[1][:]}
	return a
}

// Capture previews up to AntiPopFrames of pool starting at offset. Nothing
// is captured when no voice is sounding. Only the first capture in a block
// counts; later calls are ignored until Apply.
func (a *AntiPop) Capture(pool *VoicePool, channels, offset, remaining int) {
	if a.captured || !pool.AnySounding() {
		return
	}
	frames := remaining
	if frames > AntiPopFrames {
		frames = AntiPopFrames
	}
	if frames <= 0 {
		return
	}
	if channels > 2 {
		channels = 2
	}

	for ch := range a.scratch {
		clear(a.scratch[ch][:])
	}
	a.shadow.copyFrom(pool)
	a.shadow.Render(a.views[:channels], 0, frames)

	a.offset = offset
	a.frames = frames
	a.captured = true
}

// Apply blends the captured preview into out and discards it.
func (a *AntiPop) Apply(out [][]float32) {
	if !a.captured {
		return
	}
	a.captured = false

	for ch := 0; ch < len(out) && ch < 2; ch++ {
		dst := out[ch][a.offset : a.offset+a.frames]
		src := a.scratch[ch][:a.frames]
		for i := range dst {
			t := float32(i) / float32(a.frames)
			dst[i] = src[i]*(1-t) + dst[i]*t
		}
	}
}

// Pending reports whether a capture is waiting to be applied.
func (a *AntiPop) Pending() bool { return a.captured }
