package proxysampler

import (
	"github.com/GeoffreyPlitt/debuggo"
)

var reverbDebug = debuggo.Debug("proxysampler:reverb")

// Freeverb tuning (Jezar at Dreampoint), delays given at 44.1 kHz
const (
	numCombs     = 8
	numAllpasses = 4

	fixedGain    = 0.015
	scaleWet     = 3.0
	scaleDamp    = 0.4
	scaleRoom    = 0.28
	offsetRoom   = 0.7
	initialRoom  = 0.5
	initialDamp  = 0.5
	initialWidth = 1.0
	stereoSpread = 23
	allpassGain  = 0.5
)

var (
	combTunings    = [numCombs]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	allpassTunings = [numAllpasses]int{556, 441, 341, 225}
)

type combFilter struct {
	buffer      []float64
	idx         int
	feedback    float64
	damp1       float64
	damp2       float64
	filterStore float64
}

func newCombFilter(size int) *combFilter {
	if size < 1 {
		size = 1
	}
	return &combFilter{buffer: make([]float64, size)}
}

func (c *combFilter) process(input float64) float64 {
	output := c.buffer[c.idx]
	c.filterStore = output*c.damp2 + c.filterStore*c.damp1
	c.buffer[c.idx] = input + c.filterStore*c.feedback
	if c.idx++; c.idx >= len(c.buffer) {
		c.idx = 0
	}
	return output
}

type allpassFilter struct {
	buffer []float64
	idx    int
}

func newAllpassFilter(size int) *allpassFilter {
	if size < 1 {
		size = 1
	}
	return &allpassFilter{buffer: make([]float64, size)}
}

func (a *allpassFilter) process(input float64) float64 {
	bufout := a.buffer[a.idx]
	a.buffer[a.idx] = input + bufout*allpassGain
	if a.idx++; a.idx >= len(a.buffer) {
		a.idx = 0
	}
	return bufout - input
}

// Reverb is a stereo Freeverb used as a master send on the engine output.
// All delay lines are allocated up front; Process does not allocate.
type Reverb struct {
	combsL     [numCombs]*combFilter
	combsR     [numCombs]*combFilter
	allpassesL [numAllpasses]*allpassFilter
	allpassesR [numAllpasses]*allpassFilter

	roomSize float64
	damp     float64
	width    float64
}

// NewReverb builds a reverb with delay lines scaled to sampleRate.
func NewReverb(sampleRate int) *Reverb {
	rv := &Reverb{
		roomSize: initialRoom,
		damp:     initialDamp,
		width:    initialWidth,
	}
	scale := float64(sampleRate) / 44100.0
	for i, tuning := range combTunings {
		n := int(float64(tuning) * scale)
		rv.combsL[i] = newCombFilter(n)
		rv.combsR[i] = newCombFilter(n + stereoSpread)
	}
	for i, tuning := range allpassTunings {
		n := int(float64(tuning) * scale)
		rv.allpassesL[i] = newAllpassFilter(n)
		rv.allpassesR[i] = newAllpassFilter(n + stereoSpread)
	}
	rv.update()

	reverbDebug("Reverb initialized: sampleRate=%d, scale=%.2f", sampleRate, scale)
	return rv
}

func (rv *Reverb) update() {
	feedback := rv.roomSize*scaleRoom + offsetRoom
	damp := rv.damp * scaleDamp
	for i := 0; i < numCombs; i++ {
		for _, c := range [2]*combFilter{rv.combsL[i], rv.combsR[i]} {
			c.feedback = feedback
			c.damp1 = damp
			c.damp2 = 1 - damp
		}
	}
}

// SetRoomSize sets the room size (0.0 to 1.0)
func (rv *Reverb) SetRoomSize(size float64) {
	rv.roomSize = clampUnit(size)
	rv.update()
}

// SetDamping sets high frequency damping (0.0 to 1.0)
func (rv *Reverb) SetDamping(damp float64) {
	rv.damp = clampUnit(damp)
	rv.update()
}

// SetWidth sets the stereo width (0.0 to 1.0)
func (rv *Reverb) SetWidth(width float64) {
	rv.width = clampUnit(width)
}

// RoomSize returns the current room size
func (rv *Reverb) RoomSize() float64 { return rv.roomSize }

// Damping returns the current damping
func (rv *Reverb) Damping() float64 { return rv.damp }

// Width returns the current stereo width
func (rv *Reverb) Width() float64 { return rv.width }

// wet runs one input frame through the filter banks and returns the wet
// stereo pair.
func (rv *Reverb) wet(inL, inR float64) (float64, float64) {
	input := (inL + inR) * fixedGain
	var outL, outR float64
	for i := 0; i < numCombs; i++ {
		outL += rv.combsL[i].process(input)
		outR += rv.combsR[i].process(input)
	}
	for i := 0; i < numAllpasses; i++ {
		outL = rv.allpassesL[i].process(outL)
		outR = rv.allpassesR[i].process(outR)
	}
	outL *= scaleWet
	outR *= scaleWet

	wet1 := rv.width/2 + 0.5
	wet2 := (1 - rv.width) / 2
	return outL*wet1 + outR*wet2, outR*wet1 + outL*wet2
}

// Process mixes the reverb into the first n frames of out. send moves the
// balance from fully dry (0) to fully wet (1).
func (rv *Reverb) Process(out [][]float32, n int, send float64) {
	if send <= 0 || len(out) == 0 {
		return
	}
	send = clampUnit(send)
	dry := 1 - send

	if len(out) == 1 {
		buf := out[0][:n]
		for i, s := range buf {
			in := float64(s)
			wl, _ := rv.wet(in*send, in*send)
			buf[i] = float32(in*dry + wl)
		}
		return
	}

	left, right := out[0][:n], out[1][:n]
	for i := range left {
		inL, inR := float64(left[i]), float64(right[i])
		wl, wr := rv.wet(inL*send, inR*send)
		left[i] = float32(inL*dry + wl)
		right[i] = float32(inR*dry + wr)
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
