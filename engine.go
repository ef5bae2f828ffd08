package proxysampler

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/GeoffreyPlitt/debuggo"
)

var debug = debuggo.Debug("proxysampler:engine")

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNotPrepared      = errors.New("engine not prepared")
)

// Parameter defaults
const (
	DefaultAttackMs  = 5.0
	DefaultReleaseMs = 100.0
	DefaultGain      = 1.0
)

// State is the flat record a host persists between sessions.
type State struct {
	AttackMs   float64
	ReleaseMs  float64
	Gain       float64
	SampleName string
}

// Snapshot is what a display needs to mirror playback.
//
// SampleLength is the selected sample. A voice still draining a sample
// selected earlier reports its own length in Voices[i].Length, and
// PositionLength goes with Position.
type Snapshot struct {
	Voices         [MaxVoices]VoicePosition
	SampleLength   int  // frames in the selected sample
	Position       int  // cursor of the first active voice, held when silent
	PositionLength int  // frames in the sample Position belongs to
	AnyActive      bool // at least one unreleased note
}

type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64 { return math.Float64frombits(f.bits.Load()) }

func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

// Engine is the sampler facade. Setters and Snapshot may be called from any
// control goroutine; Render belongs to the audio thread and never blocks or
// allocates. Prepare must not run concurrently with Render.
type Engine struct {
	store *SampleStore

	// written by the control side, read by Render
	attackMs    atomicFloat
	releaseMs   atomicFloat
	gain        atomicFloat
	reverbSend  atomicFloat
	reverbRoom  atomicFloat
	reverbDamp  atomicFloat
	reverbWidth atomicFloat
	reverbGen   atomic.Uint64
	attackRate  atomicFloat
	releaseRate atomicFloat
	sampleRate  atomicFloat
	rateGen     atomic.Uint64
	monophonic  atomic.Bool
	antiPopOn   atomic.Bool
	sample      atomic.Pointer[Sample]
	queue       EventQueue

	prepared atomic.Bool
	maxBlock atomic.Int64

	// owned by the audio thread
	appliedGen       uint64
	appliedReverbGen uint64
	pool       *VoicePool
	antiPop    *AntiPop
	reverb     *Reverb
	levels     [2]LevelMeter
	positions  [MaxVoices]VoicePosition

	// published by Render for Snapshot
	slotPosition   [MaxVoices]atomic.Int64
	slotLength     [MaxVoices]atomic.Int64
	slotActive     [MaxVoices]atomic.Bool
	position       atomic.Int64
	positionLength atomic.Int64
	anyActive      atomic.Bool
}

// NewEngine creates an unprepared engine reading samples from store. A nil
// store gets a fresh empty one.
func NewEngine(store *SampleStore) *Engine {
	if store == nil {
		store = NewSampleStore()
	}
	e := &Engine{
		store:   store,
		pool:    NewVoicePool(),
		antiPop: NewAntiPop(),
	}
	e.attackMs.Store(DefaultAttackMs)
	e.releaseMs.Store(DefaultReleaseMs)
	e.gain.Store(DefaultGain)
	e.reverbRoom.Store(initialRoom)
	e.reverbDamp.Store(initialDamp)
	e.reverbWidth.Store(initialWidth)
	e.attackRate.Store(1)
	e.releaseRate.Store(1)
	return e
}

// Store returns the sample store backing the engine
func (e *Engine) Store() *SampleStore { return e.store }

// Prepare sets the output sample rate and the largest block Render will be
// given, computing any envelope rates that were deferred until now.
func (e *Engine) Prepare(sampleRate float64, maxBlock int) error {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("%w: sample rate %v", ErrInvalidParameter, sampleRate)
	}
	if maxBlock <= 0 {
		return fmt.Errorf("%w: block size %d", ErrInvalidParameter, maxBlock)
	}
	debug("Preparing engine: %.0f Hz, block %d", sampleRate, maxBlock)

	e.sampleRate.Store(sampleRate)
	e.maxBlock.Store(int64(maxBlock))
	e.reverb = NewReverb(int(sampleRate))
	e.configureReverb()
	for i := range e.levels {
		e.levels[i].Reset(sampleRate)
	}
	e.recomputeRates()
	e.prepared.Store(true)
	return nil
}

// SampleRate returns the prepared rate, or 0 before Prepare.
func (e *Engine) SampleRate() float64 { return e.sampleRate.Load() }

// MaxBlock returns the block size given to Prepare, or 0 before Prepare.
func (e *Engine) MaxBlock() int { return int(e.maxBlock.Load()) }

// Prepared reports whether Prepare has succeeded.
func (e *Engine) Prepared() bool { return e.prepared.Load() }

// recomputeRates derives the envelope increments from the current times.
// Without a sample rate the work is left for Prepare.
func (e *Engine) recomputeRates() {
	sr := e.sampleRate.Load()
	if sr <= 0 {
		debug("Sample rate unknown, deferring envelope rates")
		return
	}
	e.attackRate.Store(EnvelopeRate(sr, e.attackMs.Load()))
	e.releaseRate.Store(EnvelopeRate(sr, e.releaseMs.Load()))
	e.rateGen.Add(1)
}

func validTime(ms float64) bool {
	return ms >= 0 && !math.IsInf(ms, 0)
}

// SetAttack sets the attack time in milliseconds. Zero means instant.
func (e *Engine) SetAttack(ms float64) error {
	if !validTime(ms) {
		return fmt.Errorf("%w: attack %v ms", ErrInvalidParameter, ms)
	}
	debug("Attack set to %.2f ms", ms)
	e.attackMs.Store(ms)
	e.recomputeRates()
	return nil
}

// SetRelease sets the release time in milliseconds. Zero means instant.
func (e *Engine) SetRelease(ms float64) error {
	if !validTime(ms) {
		return fmt.Errorf("%w: release %v ms", ErrInvalidParameter, ms)
	}
	debug("Release set to %.2f ms", ms)
	e.releaseMs.Store(ms)
	e.recomputeRates()
	return nil
}

// SetGain sets the linear master gain
func (e *Engine) SetGain(g float64) error {
	if !(g >= 0) || math.IsInf(g, 0) {
		return fmt.Errorf("%w: gain %v", ErrInvalidParameter, g)
	}
	debug("Gain set to %.3f", g)
	e.gain.Store(g)
	return nil
}

// SetMonophonic switches voice mode. Sounding notes are cut when the next
// block starts.
func (e *Engine) SetMonophonic(mono bool) {
	debug("Monophonic set to %v", mono)
	e.monophonic.Store(mono)
}

// SetAntiPop enables the block-level anti-pop blend used in monophonic mode.
func (e *Engine) SetAntiPop(enabled bool) {
	e.antiPopOn.Store(enabled)
}

// SetReverbSend sets the reverb mix, 0 (bypassed) to 1 (fully wet).
func (e *Engine) SetReverbSend(send float64) error {
	if !(send >= 0 && send <= 1) {
		return fmt.Errorf("%w: reverb send %v", ErrInvalidParameter, send)
	}
	e.reverbSend.Store(send)
	return nil
}

// SetReverbRoom sets the reverb room size, 0 to 1.
func (e *Engine) SetReverbRoom(size float64) error {
	return e.setReverbParam(&e.reverbRoom, "reverb room", size)
}

// SetReverbDamping sets the reverb high frequency damping, 0 to 1.
func (e *Engine) SetReverbDamping(damp float64) error {
	return e.setReverbParam(&e.reverbDamp, "reverb damping", damp)
}

// SetReverbWidth sets the reverb stereo width, 0 to 1.
func (e *Engine) SetReverbWidth(width float64) error {
	return e.setReverbParam(&e.reverbWidth, "reverb width", width)
}

// setReverbParam stores v; the reverb picks it up at the next block.
func (e *Engine) setReverbParam(dst *atomicFloat, what string, v float64) error {
	if !(v >= 0 && v <= 1) {
		return fmt.Errorf("%w: %s %v", ErrInvalidParameter, what, v)
	}
	dst.Store(v)
	e.reverbGen.Add(1)
	return nil
}

// configureReverb copies the reverb settings into the audio-side Reverb.
func (e *Engine) configureReverb() {
	e.appliedReverbGen = e.reverbGen.Load()
	if e.reverb == nil {
		return
	}
	e.reverb.SetRoomSize(e.reverbRoom.Load())
	e.reverb.SetDamping(e.reverbDamp.Load())
	e.reverb.SetWidth(e.reverbWidth.Load())
}

// Attack returns the attack time in milliseconds.
func (e *Engine) Attack() float64 { return e.attackMs.Load() }

// Release returns the release time in milliseconds.
func (e *Engine) Release() float64 { return e.releaseMs.Load() }

// Gain returns the linear master gain.
func (e *Engine) Gain() float64 { return e.gain.Load() }

// Monophonic reports whether monophonic mode is requested.
func (e *Engine) Monophonic() bool { return e.monophonic.Load() }

// AntiPop reports whether the block-level anti-pop blend is enabled.
func (e *Engine) AntiPop() bool { return e.antiPopOn.Load() }

// ReverbSend returns the reverb mix.
func (e *Engine) ReverbSend() float64 { return e.reverbSend.Load() }

// ReverbRoom returns the reverb room size.
func (e *Engine) ReverbRoom() float64 { return e.reverbRoom.Load() }

// ReverbDamping returns the reverb damping.
func (e *Engine) ReverbDamping() float64 { return e.reverbDamp.Load() }

// ReverbWidth returns the reverb stereo width.
func (e *Engine) ReverbWidth() float64 { return e.reverbWidth.Load() }

// SetSample selects the named sample for new notes. On failure the previous
// selection stays in place. Voices already playing keep their own sample.
func (e *Engine) SetSample(name string) error {
	s, ok := e.store.Get(name)
	if !ok {
		return fmt.Errorf("failed to select %q: %w", name, ErrSampleNotFound)
	}
	if s.Length == 0 {
		return fmt.Errorf("failed to select %q: %w", name, ErrEmptySample)
	}
	if sr := e.sampleRate.Load(); sr > 0 && float64(s.SampleRate) != sr {
		debug("Sample %s authored at %d Hz, engine runs at %.0f Hz", name, s.SampleRate, sr)
	}
	e.sample.Store(s)
	debug("Selected sample: %s", name)
	return nil
}

// CurrentSample returns the selected sample, or nil.
func (e *Engine) CurrentSample() *Sample { return e.sample.Load() }

// CurrentSampleName returns the selected sample name, or "".
func (e *Engine) CurrentSampleName() string {
	if s := e.sample.Load(); s != nil {
		return s.Name
	}
	return ""
}

// AvailableSamples lists the names in the store.
func (e *Engine) AvailableSamples() []string { return e.store.Names() }

// LoadFile decodes filePath into the store, named after the file, and
// selects it.
func (e *Engine) LoadFile(filePath string) error {
	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	s, err := DecodeFile(name, filePath)
	if err != nil {
		return err
	}
	e.store.Add(s)
	return e.SetSample(name)
}

// State returns the persistable parameters.
func (e *Engine) State() State {
	return State{
		AttackMs:   e.Attack(),
		ReleaseMs:  e.Release(),
		Gain:       e.Gain(),
		SampleName: e.CurrentSampleName(),
	}
}

// Restore applies a persisted State. Scalar values are applied even when
// the sample can no longer be selected; every failure is reported.
func (e *Engine) Restore(st State) error {
	var errs []error
	if err := e.SetAttack(st.AttackMs); err != nil {
		errs = append(errs, err)
	}
	if err := e.SetRelease(st.ReleaseMs); err != nil {
		errs = append(errs, err)
	}
	if err := e.SetGain(st.Gain); err != nil {
		errs = append(errs, err)
	}
	if st.SampleName != "" {
		if err := e.SetSample(st.SampleName); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enqueue hands a live event to the audio thread. It is applied at the
// start of the next block. Safe to call from several goroutines at once.
// Returns false if the queue is full.
func (e *Engine) Enqueue(ev NoteEvent) bool {
	ev.Offset = 0
	return e.queue.Push(ev)
}

// Reset asks the audio thread to silence every voice.
func (e *Engine) Reset() {
	e.Enqueue(NoteEvent{Kind: AllNotesOff})
}

// Render clears out, applies events and renders one block into it. out has
// one or two channel slices of equal length. events are sorted in place by
// Offset, keeping the relative order of events sharing an offset.
func (e *Engine) Render(out [][]float32, events []NoteEvent) {
	if len(out) == 0 {
		return
	}
	n := len(out[0])
	for ch := range out {
		if len(out[ch]) < n {
			n = len(out[ch])
		}
	}
	for ch := range out {
		clear(out[ch][:n])
	}
	if !e.prepared.Load() {
		return
	}

	e.applyParameters()
	s := e.sample.Load()
	useAntiPop := e.antiPopOn.Load() && e.pool.Monophonic()

	cursor := 0
	for {
		ev, ok := e.queue.Pop()
		if !ok {
			break
		}
		cursor = e.dispatch(out, ev, s, cursor, n, useAntiPop)
	}
	slices.SortStableFunc(events, func(a, b NoteEvent) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	for _, ev := range events {
		cursor = e.dispatch(out, ev, s, cursor, n, useAntiPop)
	}
	if cursor < n {
		e.pool.Render(out, cursor, n-cursor)
	}
	e.antiPop.Apply(out)

	if g := float32(e.gain.Load()); g != 1 {
		for ch := range out {
			buf := out[ch][:n]
			for i := range buf {
				buf[i] *= g
			}
		}
	}
	if send := e.reverbSend.Load(); send > 0 && e.reverb != nil {
		e.reverb.Process(out, n, send)
	}

	for ch := 0; ch < len(out) && ch < len(e.levels); ch++ {
		e.levels[ch].Update(out[ch][:n])
	}
	e.publish()
}

// applyParameters brings the pool up to date with control-side changes.
func (e *Engine) applyParameters() {
	if gen := e.rateGen.Load(); gen != e.appliedGen {
		e.pool.SetRates(e.attackRate.Load(), e.releaseRate.Load())
		e.appliedGen = gen
	}
	if mono := e.monophonic.Load(); mono != e.pool.Monophonic() {
		e.pool.SetMonophonic(mono)
	}
	if e.reverbGen.Load() != e.appliedReverbGen {
		e.configureReverb()
	}
}

// dispatch renders up to the event's frame, then applies the event. It
// returns the new render cursor.
func (e *Engine) dispatch(out [][]float32, ev NoteEvent, s *Sample, cursor, n int, useAntiPop bool) int {
	offset := ev.Offset
	if offset > n-1 {
		offset = n - 1
	}
	if offset < cursor {
		offset = cursor
	}
	if offset > cursor {
		e.pool.Render(out, cursor, offset-cursor)
		cursor = offset
	}
	if useAntiPop {
		e.antiPop.Capture(e.pool, len(out), cursor, n-cursor)
	}
	e.pool.Handle(ev, s)
	return cursor
}

// publish copies voice display state into the atomics read by Snapshot.
func (e *Engine) publish() {
	e.pool.Positions(&e.positions)
	found := false
	for i, p := range e.positions {
		e.slotPosition[i].Store(int64(p.Position))
		e.slotLength[i].Store(int64(p.Length))
		e.slotActive[i].Store(p.Active)
		if p.Active && !found {
			e.position.Store(int64(p.Position))
			e.positionLength.Store(int64(p.Length))
			found = true
		}
	}
	e.anyActive.Store(found)
}

// Snapshot returns the voice positions published by the last block.
func (e *Engine) Snapshot() Snapshot {
	var snap Snapshot
	for i := range snap.Voices {
		snap.Voices[i] = VoicePosition{
			Position: int(e.slotPosition[i].Load()),
			Length:   int(e.slotLength[i].Load()),
			Active:   e.slotActive[i].Load(),
		}
	}
	if s := e.sample.Load(); s != nil {
		snap.SampleLength = s.Length
	}
	snap.Position = int(e.position.Load())
	snap.PositionLength = int(e.positionLength.Load())
	snap.AnyActive = e.anyActive.Load()
	return snap
}

// Levels returns the smoothed RMS of the left and right output channels.
// A mono output leaves right at zero.
func (e *Engine) Levels() (left, right float64) {
	return e.levels[0].Value(), e.levels[1].Value()
}
