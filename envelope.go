package proxysampler

// EnvelopeStage is the phase of the linear attack/release envelope
type EnvelopeStage int

const (
	EnvelopeOff EnvelopeStage = iota
	EnvelopeAttack
	EnvelopeHold
	EnvelopeRelease
)

func (s EnvelopeStage) String() string {
	switch s {
	case EnvelopeOff:
		return "off"
	case EnvelopeAttack:
		return "attack"
	case EnvelopeHold:
		return "hold"
	case EnvelopeRelease:
		return "release"
	}
	return "unknown"
}

// EnvelopeRate converts a ramp time into a per-sample increment over the
// full [0,1] range. Zero, negative or unknown times give 1.0, an instant ramp.
func EnvelopeRate(sampleRate float64, timeMs float64) float64 {
	samples := sampleRate * timeMs / 1000.0
	if !(samples > 1) {
		return 1.0
	}
	return 1.0 / samples
}

// Envelope is a linear attack/hold/release gain generator ticked once per
// output frame.
type Envelope struct {
	stage       EnvelopeStage
	level       float64
	attackRate  float64
	releaseRate float64
}

// SetRates updates the ramp increments, taking effect on the next tick.
func (e *Envelope) SetRates(attackRate, releaseRate float64) {
	e.attackRate = clampRate(attackRate)
	e.releaseRate = clampRate(releaseRate)
}

func clampRate(r float64) float64 {
	if !(r > 0) || r > 1 {
		return 1.0
	}
	return r
}

// Trigger restarts the envelope from silence.
func (e *Envelope) Trigger() {
	e.level = 0
	e.stage = EnvelopeAttack
}

// Release starts the release ramp from the current level.
func (e *Envelope) Release() {
	if e.stage == EnvelopeOff {
		return
	}
	e.stage = EnvelopeRelease
}

// Kill silences the envelope immediately.
func (e *Envelope) Kill() {
	e.level = 0
	e.stage = EnvelopeOff
}

// Tick advances one frame and returns the gain to apply to it. finished is
// true once the release ramp has reached zero; the frame must then not be
// rendered and the stage is EnvelopeOff.
func (e *Envelope) Tick() (level float64, finished bool) {
	switch e.stage {
	case EnvelopeAttack:
		e.level += e.attackRate
		if e.level >= 1.0 {
			e.level = 1.0
			e.stage = EnvelopeHold
		}
	case EnvelopeRelease:
		e.level -= e.releaseRate
		if e.level <= 0 {
			e.level = 0
			e.stage = EnvelopeOff
			return 0, true
		}
	case EnvelopeOff:
		return 0, true
	}
	return e.level, false
}

// Level returns the current gain, 0 to 1.
func (e *Envelope) Level() float64 { return e.level }

// Stage returns the current stage
func (e *Envelope) Stage() EnvelopeStage { return e.stage }
