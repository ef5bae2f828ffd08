package proxysampler

import (
	"errors"
	"math"
	"testing"
)

func TestEngineParameterRoundTrip(t *testing.T) {
	kick := constantSample(t, "kick", 4410, 0.5)
	e := newTestEngine(t, kick, 512)

	if err := e.SetAttack(7); err != nil {
		t.Fatalf("SetAttack failed: %v", err)
	}
	if err := e.SetRelease(150); err != nil {
		t.Fatalf("SetRelease failed: %v", err)
	}
	if err := e.SetGain(0.8); err != nil {
		t.Fatalf("SetGain failed: %v", err)
	}
	if err := e.SetSample("kick"); err != nil {
		t.Fatalf("SetSample failed: %v", err)
	}

	if e.Attack() != 7 || e.Release() != 150 || e.Gain() != 0.8 || e.CurrentSampleName() != "kick" {
		t.Errorf("Unexpected parameters after round trip: %+v", e.State())
	}

	out := stereoBlock(512)
	e.Render(out, nil)
	if maxAbs(out[0]) != 0 {
		t.Error("Expected silence with no note playing")
	}

	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 60, Velocity: 1.0}})
	if maxAbs(out[0]) == 0 {
		t.Error("Expected output while a note is active")
	}

	e.Render(out, []NoteEvent{{Kind: NoteOff, Note: 60}})
	// 150ms release is under 13 blocks of 512 frames
	for i := 0; i < 14; i++ {
		e.Render(out, nil)
	}
	if maxAbs(out[0]) != 0 {
		t.Error("Expected silence once the release has finished")
	}
}

func TestEngineClickScenario(t *testing.T) {
	click := constantSample(t, "click", 4410, 0.5)
	e := newTestEngine(t, click, 512)
	if err := e.SetAttack(0); err != nil {
		t.Fatalf("SetAttack failed: %v", err)
	}
	if err := e.SetRelease(10); err != nil {
		t.Fatalf("SetRelease failed: %v", err)
	}

	out := stereoBlock(512)
	e.Render(out, []NoteEvent{
		{Kind: NoteOn, Note: 60, Velocity: 1.0, Offset: 0},
		{Kind: NoteOff, Note: 60, Offset: 256},
	})

	for i := 0; i < 256; i++ {
		if out[0][i] == 0 {
			t.Fatalf("Expected non-zero output at frame %d", i)
		}
		if i > 0 && math.Abs(float64(out[0][i])) < math.Abs(float64(out[0][i-1])) {
			t.Fatalf("Expected non-decreasing magnitude before note-off at frame %d", i)
		}
	}
	for i := 257; i < 512; i++ {
		if math.Abs(float64(out[0][i])) > math.Abs(float64(out[0][i-1])) {
			t.Fatalf("Expected decaying output after note-off at frame %d", i)
		}
	}
	if out[0][511] >= out[0][255] {
		t.Error("Expected the release to have reduced the level by the end of the block")
	}

	// release_samples = 441, so the tail ends by frame 256+441 = 697
	next := stereoBlock(512)
	e.Render(next, nil)
	for i := 200; i < 512; i++ {
		if next[0][i] != 0 {
			t.Fatalf("Expected silence after the release, frame %d = %.6f", 512+i, next[0][i])
		}
	}
	if e.Snapshot().AnyActive {
		t.Error("Expected no active voice after the release")
	}
}

func TestEngineMonophonicCrossfadeScenario(t *testing.T) {
	s := constantSample(t, "pad", 44100, 0.5)
	e := newTestEngine(t, s, 512)
	e.SetMonophonic(true)

	out := stereoBlock(128)
	e.Render(out, []NoteEvent{
		{Kind: NoteOn, Note: 60, Velocity: 1.0, Offset: 0},
		{Kind: NoteOn, Note: 64, Velocity: 1.0, Offset: 50},
	})

	if e.pool.ActiveCount() != 1 {
		t.Errorf("Expected exactly one active voice, got %d", e.pool.ActiveCount())
	}
	v := e.pool.Voice(0)
	if v.Note() != 64 || !v.Crossfading() {
		t.Fatalf("Expected voice 0 to carry note 64 while fading out note 60, got note %d state %v", v.Note(), v.State())
	}
	// the old copy dominates right after the retrigger, the new note ramps from zero
	if out[0][50] < 0.05 {
		t.Errorf("Expected energy from the fading note at the retrigger, got %.4f", out[0][50])
	}
	if step := maxStep(out[0]); step > 0.05 {
		t.Errorf("Expected no discontinuity at the retrigger, largest step %.4f", step)
	}

	// 50 + 300 frames is inside the third block
	for i := 0; i < 2; i++ {
		e.Render(out, nil)
	}
	if v.Crossfading() {
		t.Error("Expected the crossfade to be discarded after the crossfade window")
	}
	if e.pool.ActiveCount() != 1 || v.Note() != 64 {
		t.Errorf("Expected exactly one voice carrying note 64, got %d active", e.pool.ActiveCount())
	}
}

func TestEngineMonophonicRapidRetriggers(t *testing.T) {
	s := constantSample(t, "pad", 44100, 0.5)
	e := newTestEngine(t, s, 512)
	e.SetMonophonic(true)

	// the third note lands while the first fade is still running
	out := stereoBlock(256)
	e.Render(out, []NoteEvent{
		{Kind: NoteOn, Note: 60, Velocity: 1.0, Offset: 0},
		{Kind: NoteOn, Note: 64, Velocity: 1.0, Offset: 100},
		{Kind: NoteOn, Note: 67, Velocity: 1.0, Offset: 200},
	})

	if step := maxStep(out[0]); step > 0.01 {
		t.Errorf("Expected no discontinuity across the retriggers, largest step %.4f", step)
	}
	if math.Abs(float64(out[0][200]-out[0][199])) > 0.01 {
		t.Errorf("Expected a smooth third retrigger, got %.4f then %.4f", out[0][199], out[0][200])
	}
	if e.pool.ActiveCount() != 1 || e.pool.Voice(0).Note() != 67 {
		t.Errorf("Expected one active voice carrying note 67, got %d active", e.pool.ActiveCount())
	}

	fading := 0
	for i := 0; i < MaxVoices; i++ {
		if e.pool.Voice(i).Crossfading() {
			fading++
		}
	}
	// 60 fades until frame 400 and 64 until frame 500
	if fading != 2 {
		t.Errorf("Expected both earlier notes to be fading, got %d fades", fading)
	}

	e.Render(out, nil)
	for i := 0; i < MaxVoices; i++ {
		if e.pool.Voice(i).Crossfading() {
			t.Errorf("Expected every fade to have finished, voice %d still fading", i)
		}
	}
	if !e.pool.AnySounding() {
		t.Error("Expected note 67 to keep sounding")
	}
}

func TestEngineMonophonicStrayNoteOff(t *testing.T) {
	s := constantSample(t, "pad", 44100, 0.5)
	e := newTestEngine(t, s, 256)
	e.SetMonophonic(true)

	out := stereoBlock(256)
	e.Render(out, []NoteEvent{
		{Kind: NoteOn, Note: 60, Velocity: 1.0},
		{Kind: NoteOn, Note: 64, Velocity: 1.0, Offset: 10},
	})
	before := e.pool.Voice(0).State()

	e.Render(out, []NoteEvent{{Kind: NoteOff, Note: 60}})
	if !e.pool.Voice(0).IsActive() {
		t.Errorf("A note-off for note 60 must not release note 64 (was %v, now %v)", before, e.pool.Voice(0).State())
	}
}

func TestEngineRenderBeforePrepare(t *testing.T) {
	e := NewEngine(nil)
	out := stereoBlock(64)
	out[0][0] = 1

	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 60, Velocity: 1}})
	if maxAbs(out[0]) != 0 {
		t.Error("An unprepared engine must render silence")
	}
	if e.Prepared() {
		t.Error("Expected engine to be unprepared")
	}
}

func TestEnginePrepareValidation(t *testing.T) {
	e := NewEngine(nil)
	if err := e.Prepare(0, 512); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter for zero sample rate, got %v", err)
	}
	if err := e.Prepare(44100, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter for zero block size, got %v", err)
	}
	if err := e.Prepare(48000, 256); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if e.SampleRate() != 48000 || e.MaxBlock() != 256 {
		t.Errorf("Expected 48000 Hz / 256, got %.0f / %d", e.SampleRate(), e.MaxBlock())
	}
}

func TestEngineRejectsInvalidParameters(t *testing.T) {
	e := NewEngine(nil)

	if err := e.SetAttack(-1); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected negative attack to fail, got %v", err)
	}
	if err := e.SetRelease(math.NaN()); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected NaN release to fail, got %v", err)
	}
	if err := e.SetGain(math.Inf(1)); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected infinite gain to fail, got %v", err)
	}
	if err := e.SetReverbSend(1.5); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected reverb send above 1 to fail, got %v", err)
	}

	if e.Attack() != DefaultAttackMs || e.Release() != DefaultReleaseMs || e.Gain() != DefaultGain {
		t.Errorf("Rejected values must not change state, got %+v", e.State())
	}
}

func TestEngineDeferredRates(t *testing.T) {
	s := constantSample(t, "const", 1000, 1.0)
	store := NewSampleStore()
	store.Add(s)
	e := NewEngine(store)

	// set before the sample rate is known
	if err := e.SetAttack(10); err != nil {
		t.Fatalf("SetAttack failed: %v", err)
	}
	if err := e.Prepare(testSampleRate, 64); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := e.SetSample("const"); err != nil {
		t.Fatalf("SetSample failed: %v", err)
	}

	out := stereoBlock(64)
	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 60, Velocity: 1}})

	want := EnvelopeRate(testSampleRate, 10)
	if !approxEqual(float64(out[0][0]), want, 1e-6) {
		t.Errorf("Expected the first frame at the 10ms attack rate %.6f, got %.6f", want, out[0][0])
	}
}

func TestEngineSetSampleFailureKeepsSelection(t *testing.T) {
	s := constantSample(t, "keep", 100, 0.5)
	e := newTestEngine(t, s, 64)

	err := e.SetSample("missing")
	if !errors.Is(err, ErrSampleNotFound) {
		t.Errorf("Expected ErrSampleNotFound, got %v", err)
	}
	if e.CurrentSampleName() != "keep" {
		t.Errorf("Expected selection to stay on 'keep', got %q", e.CurrentSampleName())
	}
}

func TestEngineRenderWithoutSample(t *testing.T) {
	e := NewEngine(nil)
	if err := e.Prepare(testSampleRate, 64); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	out := stereoBlock(64)
	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 60, Velocity: 1}})
	if maxAbs(out[0]) != 0 {
		t.Error("Expected silence when no sample is selected")
	}
}

func TestEngineVoicesKeepTheirSample(t *testing.T) {
	a := constantSample(t, "a", 10000, 0.25)
	b := constantSample(t, "b", 10000, 0.75)
	e := newTestEngine(t, a, 64)
	e.Store().Add(b)
	if err := e.SetAttack(0); err != nil {
		t.Fatalf("SetAttack failed: %v", err)
	}

	out := stereoBlock(64)
	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 60, Velocity: 1}})
	if err := e.SetSample("b"); err != nil {
		t.Fatalf("SetSample failed: %v", err)
	}
	e.Render(out, nil)

	if out[0][10] != 0.25 {
		t.Errorf("A playing voice should keep its original sample, got %.3f", out[0][10])
	}
}

func TestEngineStateAndRestore(t *testing.T) {
	s := constantSample(t, "kick", 100, 0.5)
	e := newTestEngine(t, s, 64)

	st := State{AttackMs: 12, ReleaseMs: 300, Gain: 0.5, SampleName: "kick"}
	if err := e.Restore(st); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if e.State() != st {
		t.Errorf("Expected state %+v, got %+v", st, e.State())
	}

	// a missing sample is reported but scalars still apply
	err := e.Restore(State{AttackMs: 1, ReleaseMs: 2, Gain: 0.3, SampleName: "gone"})
	if !errors.Is(err, ErrSampleNotFound) {
		t.Errorf("Expected ErrSampleNotFound from Restore, got %v", err)
	}
	if e.Attack() != 1 || e.Release() != 2 || e.Gain() != 0.3 {
		t.Errorf("Expected scalars applied despite the missing sample, got %+v", e.State())
	}
	if e.CurrentSampleName() != "kick" {
		t.Errorf("Expected selection unchanged, got %q", e.CurrentSampleName())
	}
}

func TestEngineGain(t *testing.T) {
	s := constantSample(t, "const", 1000, 1.0)
	e := newTestEngine(t, s, 64)
	if err := e.SetAttack(0); err != nil {
		t.Fatalf("SetAttack failed: %v", err)
	}
	if err := e.SetGain(0.5); err != nil {
		t.Fatalf("SetGain failed: %v", err)
	}

	out := stereoBlock(64)
	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 60, Velocity: 1}})
	if out[0][5] != 0.5 {
		t.Errorf("Expected gain 0.5 applied, got %.3f", out[0][5])
	}
}

func TestEngineSortsEvents(t *testing.T) {
	s := constantSample(t, "const", 1000, 1.0)
	e := newTestEngine(t, s, 64)
	if err := e.SetAttack(0); err != nil {
		t.Fatalf("SetAttack failed: %v", err)
	}
	if err := e.SetRelease(0); err != nil {
		t.Fatalf("SetRelease failed: %v", err)
	}

	out := stereoBlock(64)
	e.Render(out, []NoteEvent{
		{Kind: NoteOff, Note: 60, Offset: 40},
		{Kind: NoteOn, Note: 60, Velocity: 1, Offset: 20},
	})

	if out[0][19] != 0 || out[0][20] != 1 || out[0][39] != 1 || out[0][40] != 0 {
		t.Errorf("Expected sound exactly in frames 20-39, got %v", out[0][18:42])
	}
}

func TestEngineClampsLateOffsets(t *testing.T) {
	s := constantSample(t, "const", 1000, 1.0)
	e := newTestEngine(t, s, 64)
	if err := e.SetAttack(0); err != nil {
		t.Fatalf("SetAttack failed: %v", err)
	}

	out := stereoBlock(32)
	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 60, Velocity: 1, Offset: 1000}})
	if out[0][30] != 0 || out[0][31] != 1 {
		t.Errorf("Expected a late event to apply on the last frame, got %v", out[0][28:])
	}
}

func TestEngineEnqueueAndReset(t *testing.T) {
	s := constantSample(t, "const", 10000, 1.0)
	e := newTestEngine(t, s, 64)

	if !e.Enqueue(NoteEvent{Kind: NoteOn, Note: 60, Velocity: 1, Offset: 30}) {
		t.Fatal("Enqueue failed on an empty queue")
	}
	out := stereoBlock(64)
	e.Render(out, nil)
	if out[0][1] == 0 {
		t.Error("Expected a queued event to apply at the start of the block")
	}

	e.Reset()
	e.Render(out, nil)
	if maxAbs(out[0]) != 0 || e.pool.AnySounding() {
		t.Error("Expected Reset to silence every voice")
	}
}

func TestEngineModeChangeStopsVoices(t *testing.T) {
	s := constantSample(t, "const", 10000, 1.0)
	e := newTestEngine(t, s, 64)

	out := stereoBlock(64)
	e.Render(out, []NoteEvent{
		{Kind: NoteOn, Note: 60, Velocity: 1},
		{Kind: NoteOn, Note: 64, Velocity: 1},
	})
	e.SetMonophonic(true)
	e.Render(out, nil)

	if e.pool.AnySounding() || maxAbs(out[0]) != 0 {
		t.Error("Expected switching modes to stop every voice")
	}
	if !e.Monophonic() {
		t.Error("Expected monophonic mode")
	}
}

func TestEngineSnapshot(t *testing.T) {
	s := constantSample(t, "const", 1000, 1.0)
	e := newTestEngine(t, s, 100)

	out := stereoBlock(100)
	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 60, Velocity: 1}})

	snap := e.Snapshot()
	if !snap.AnyActive || snap.Position != 100 || snap.SampleLength != 1000 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
	if !snap.Voices[0].Active || snap.Voices[1].Active {
		t.Errorf("Expected only voice 0 active, got %+v", snap.Voices)
	}
}

func TestEngineSnapshotAfterSampleChange(t *testing.T) {
	long := constantSample(t, "long", 1000, 1.0)
	short := constantSample(t, "short", 50, 1.0)
	e := newTestEngine(t, long, 100)
	e.Store().Add(short)

	out := stereoBlock(100)
	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 60, Velocity: 1}})
	if err := e.SetSample("short"); err != nil {
		t.Fatalf("SetSample failed: %v", err)
	}
	e.Render(out, nil)

	snap := e.Snapshot()
	if snap.SampleLength != 50 {
		t.Errorf("Expected the selected sample length 50, got %d", snap.SampleLength)
	}
	if snap.Position != 200 || snap.PositionLength != 1000 {
		t.Errorf("Expected position 200 of 1000, got %d of %d", snap.Position, snap.PositionLength)
	}
	if snap.Voices[0].Length != 1000 || snap.Voices[1].Length != 0 {
		t.Errorf("Expected per-voice lengths 1000 and 0, got %+v", snap.Voices)
	}
}

func TestEngineReverbSettings(t *testing.T) {
	e := NewEngine(nil)
	if err := e.SetReverbRoom(0.9); err != nil {
		t.Fatalf("SetReverbRoom failed: %v", err)
	}
	if err := e.Prepare(testSampleRate, 64); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if e.reverb.RoomSize() != 0.9 {
		t.Errorf("Expected Prepare to build the reverb with room 0.9, got %v", e.reverb.RoomSize())
	}

	if err := e.SetReverbDamping(0.2); err != nil {
		t.Fatalf("SetReverbDamping failed: %v", err)
	}
	if err := e.SetReverbWidth(0.6); err != nil {
		t.Fatalf("SetReverbWidth failed: %v", err)
	}
	e.Render(stereoBlock(64), nil)
	if e.reverb.Damping() != 0.2 || e.reverb.Width() != 0.6 {
		t.Errorf("Expected damping 0.2 and width 0.6 after a block, got %v and %v",
			e.reverb.Damping(), e.reverb.Width())
	}

	for _, bad := range []float64{-0.1, 1.5, math.NaN()} {
		if err := e.SetReverbRoom(bad); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("Expected ErrInvalidParameter for room %v, got %v", bad, err)
		}
	}
	if e.ReverbRoom() != 0.9 {
		t.Errorf("Expected a rejected value to leave room at 0.9, got %v", e.ReverbRoom())
	}
}

func TestEngineMonoOutput(t *testing.T) {
	s := sineSample(t, "sine", 440)
	e := newTestEngine(t, s, 128)

	out := [][]float32{make([]float32, 128)}
	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 60, Velocity: 1}})
	if maxAbs(out[0]) == 0 {
		t.Error("Expected output on a single channel")
	}
	if _, right := e.Levels(); right != 0 {
		t.Errorf("Expected no right level for mono output, got %.4f", right)
	}
}

func TestEngineLevels(t *testing.T) {
	s := constantSample(t, "const", 44100, 0.5)
	e := newTestEngine(t, s, 512)
	if err := e.SetAttack(0); err != nil {
		t.Fatalf("SetAttack failed: %v", err)
	}

	out := stereoBlock(512)
	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 60, Velocity: 1}})
	first, _ := e.Levels()
	if first <= 0 || first >= 0.5 {
		t.Errorf("Expected the meter to start gliding towards 0.5, got %.4f", first)
	}

	// 100ms of smoothing is under 9 blocks
	for i := 0; i < 10; i++ {
		e.Render(out, nil)
	}
	left, right := e.Levels()
	if !approxEqual(left, 0.5, 1e-3) || !approxEqual(right, 0.5, 1e-3) {
		t.Errorf("Expected both meters to settle at 0.5, got %.4f / %.4f", left, right)
	}
}

func TestEngineReverbTail(t *testing.T) {
	s := constantSample(t, "short", 64, 0.5)
	e := newTestEngine(t, s, 512)
	if err := e.SetReverbSend(0.5); err != nil {
		t.Fatalf("SetReverbSend failed: %v", err)
	}
	if err := e.SetRelease(0); err != nil {
		t.Fatalf("SetRelease failed: %v", err)
	}

	out := stereoBlock(512)
	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 60, Velocity: 1}})
	for i := 0; i < 4; i++ {
		e.Render(out, nil)
	}
	if e.pool.AnySounding() {
		t.Fatal("Expected the voice to have finished")
	}
	if maxAbs(out[0]) == 0 {
		t.Error("Expected the reverb to keep ringing after the voice stopped")
	}
}

func TestEngineAntiPopSmoothsRetrigger(t *testing.T) {
	s := sineSample(t, "sine", 220)
	e := newTestEngine(t, s, 256)
	e.SetMonophonic(true)
	e.SetAntiPop(true)
	if err := e.SetAttack(0); err != nil {
		t.Fatalf("SetAttack failed: %v", err)
	}

	out := stereoBlock(256)
	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 60, Velocity: 1}})
	e.Render(out, []NoteEvent{{Kind: NoteOn, Note: 67, Velocity: 1, Offset: 100}})

	if e.antiPop.Pending() {
		t.Error("Expected the anti-pop capture to be consumed within the block")
	}
	if step := maxStep(out[0]); step > 0.2 {
		t.Errorf("Expected a smooth retrigger, largest step %.4f", step)
	}
}
