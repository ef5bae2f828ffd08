// Package cli holds the flags shared by the proxysampler commands.
package cli

import (
	"flag"
	"fmt"
	"os"

	"proxysampler"
)

// Flags are the engine and sequence options common to every command.
// Negative parameter values mean "keep what the kit or engine has".
type Flags struct {
	Kit        string
	Sample     string
	Folder     string
	Select     string
	MIDI       string
	Notes      string
	NoteLength float64
	NoteGap    float64
	Velocity   float64
	SampleRate int
	Block      int
	Attack     float64
	Release    float64
	Gain       float64
	Reverb     float64
	Room       float64
	Damp       float64
	Width      float64
	Mono       bool
	AntiPop    bool
	SavePreset string
}

// Register binds f to fs with the given default block size.
func (f *Flags) Register(fs *flag.FlagSet, block int) {
	fs.StringVar(&f.Kit, "kit", "", "Kit file to load")
	fs.StringVar(&f.Sample, "sample", "", "Single audio file to load (wav, flac, mp3)")
	fs.StringVar(&f.Folder, "folder", "", "Folder of audio files to add to the store")
	fs.StringVar(&f.Select, "select", "", "Sample to play, by name")
	fs.StringVar(&f.MIDI, "midi", "", "Standard MIDI file to play")
	fs.StringVar(&f.Notes, "notes", "60,64,67,72", "Comma separated notes when no MIDI file is given")
	fs.Float64Var(&f.NoteLength, "note-length", 0.4, "Seconds each note is held")
	fs.Float64Var(&f.NoteGap, "note-gap", 0.1, "Seconds between notes")
	fs.Float64Var(&f.Velocity, "velocity", 1.0, "Note velocity (0-1)")
	fs.IntVar(&f.SampleRate, "sample-rate", 44100, "Output sample rate")
	fs.IntVar(&f.Block, "block", block, "Render block size in frames")
	fs.Float64Var(&f.Attack, "attack", -1, "Attack time in ms (default from kit or engine)")
	fs.Float64Var(&f.Release, "release", -1, "Release time in ms (default from kit or engine)")
	fs.Float64Var(&f.Gain, "gain", -1, "Master gain (default from kit or engine)")
	fs.Float64Var(&f.Reverb, "reverb", -1, "Reverb send 0-1 (default from kit or engine)")
	fs.Float64Var(&f.Room, "reverb-room", -1, "Reverb room size 0-1 (default from kit or engine)")
	fs.Float64Var(&f.Damp, "reverb-damp", -1, "Reverb damping 0-1 (default from kit or engine)")
	fs.Float64Var(&f.Width, "reverb-width", -1, "Reverb stereo width 0-1 (default from kit or engine)")
	fs.BoolVar(&f.Mono, "mono", false, "Monophonic mode")
	fs.BoolVar(&f.AntiPop, "antipop", false, "Enable the block-level anti-pop blend")
	fs.StringVar(&f.SavePreset, "save-preset", "", "Write the final settings as a <preset> section to this path")
}

// Setup loads the requested samples into engine and applies every
// parameter flag on top of what the kit set. engine must already be
// prepared when the rates matter.
func (f *Flags) Setup(engine *proxysampler.Engine) error {
	sources := proxysampler.Sources{Kit: f.Kit, Folder: f.Folder, File: f.Sample, Select: f.Select}
	if err := engine.Load(sources); err != nil {
		return err
	}
	if f.Attack >= 0 {
		if err := engine.SetAttack(f.Attack); err != nil {
			return err
		}
	}
	if f.Release >= 0 {
		if err := engine.SetRelease(f.Release); err != nil {
			return err
		}
	}
	if f.Gain >= 0 {
		if err := engine.SetGain(f.Gain); err != nil {
			return err
		}
	}
	if f.Reverb >= 0 {
		if err := engine.SetReverbSend(f.Reverb); err != nil {
			return err
		}
	}
	if f.Room >= 0 {
		if err := engine.SetReverbRoom(f.Room); err != nil {
			return err
		}
	}
	if f.Damp >= 0 {
		if err := engine.SetReverbDamping(f.Damp); err != nil {
			return err
		}
	}
	if f.Width >= 0 {
		if err := engine.SetReverbWidth(f.Width); err != nil {
			return err
		}
	}
	if f.Mono {
		engine.SetMonophonic(true)
	}
	if f.AntiPop {
		engine.SetAntiPop(true)
	}
	return nil
}

// Events returns the MIDI file's events, or the -notes sequence without one.
func (f *Flags) Events() ([]proxysampler.TimedEvent, error) {
	sr := float64(f.SampleRate)
	if f.MIDI != "" {
		return proxysampler.ReadMIDIFile(f.MIDI, sr)
	}
	notes, err := proxysampler.ParseNoteList(f.Notes)
	if err != nil {
		return nil, err
	}
	return proxysampler.NoteSequence(notes, f.NoteLength, f.NoteGap, float32(f.Velocity), sr), nil
}

// WritePreset saves the engine's settings when -save-preset was given.
func (f *Flags) WritePreset(engine *proxysampler.Engine) error {
	if f.SavePreset == "" {
		return nil
	}
	if err := os.WriteFile(f.SavePreset, []byte(proxysampler.FormatPreset(engine.Preset())), 0o644); err != nil {
		return fmt.Errorf("failed to write preset: %w", err)
	}
	return nil
}
