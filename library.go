package proxysampler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/GeoffreyPlitt/debuggo"
)

var libraryDebug = debuggo.Debug("proxysampler:library")

// maxScanFiles bounds how many files one folder scan will decode.
const maxScanFiles = 200

var scanExtensions = map[string]bool{
	".wav":  true,
	".flac": true,
	".mp3":  true,
}

// LoadFile decodes filePath and registers it under name.
func (st *SampleStore) LoadFile(name, filePath string) (*Sample, error) {
	s, err := DecodeFile(name, filePath)
	if err != nil {
		return nil, err
	}
	st.Add(s)
	return s, nil
}

// ScanFolder loads every audio file directly inside dir, named after the
// file without extension. Names already in the store are skipped, as are
// files that fail to decode. It returns how many samples were added.
func (st *SampleStore) ScanFolder(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to scan sample folder: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !scanExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	if len(files) > maxScanFiles {
		libraryDebug("Folder %s has %d audio files, scanning the first %d", dir, len(files), maxScanFiles)
		files = files[:maxScanFiles]
	}

	loaded := 0
	for _, file := range files {
		name := strings.TrimSuffix(file, filepath.Ext(file))
		if st.Contains(name) {
			continue
		}
		if _, err := st.LoadFile(name, filepath.Join(dir, file)); err != nil {
			libraryDebug("Skipping %s: %v", file, err)
			continue
		}
		loaded++
	}
	libraryDebug("Scanned %s: %d samples loaded", dir, loaded)
	return loaded, nil
}

// ApplyPreset restores p into the engine, including the settings outside
// the persisted State.
func (e *Engine) ApplyPreset(p Preset) error {
	var errs []error
	if err := e.Restore(p.State); err != nil {
		errs = append(errs, err)
	}
	if err := e.SetReverbSend(p.ReverbSend); err != nil {
		errs = append(errs, err)
	}
	if err := e.SetReverbRoom(p.ReverbRoom); err != nil {
		errs = append(errs, err)
	}
	if err := e.SetReverbDamping(p.ReverbDamp); err != nil {
		errs = append(errs, err)
	}
	if err := e.SetReverbWidth(p.ReverbWidth); err != nil {
		errs = append(errs, err)
	}
	e.SetMonophonic(p.Monophonic)
	e.SetAntiPop(p.AntiPop)
	return errors.Join(errs...)
}

// Preset returns the engine's current settings.
func (e *Engine) Preset() Preset {
	return Preset{
		State:       e.State(),
		Monophonic:  e.Monophonic(),
		ReverbSend:  e.ReverbSend(),
		ReverbRoom:  e.ReverbRoom(),
		ReverbDamp:  e.ReverbDamping(),
		ReverbWidth: e.ReverbWidth(),
		AntiPop:     e.AntiPop(),
	}
}

// LoadKit loads every <sample> of the kit at kitPath into the engine's store,
// resolving paths against the kit directory, then applies the <preset>.
// With no preset sample the first kit sample is selected.
func (e *Engine) LoadKit(kitPath string) error {
	kit, err := ParseKitFile(kitPath)
	if err != nil {
		return err
	}
	dir := filepath.Dir(kitPath)

	first := ""
	for _, section := range kit.Samples {
		name := section.GetString("name")
		path := section.GetString("path")
		if path == "" {
			libraryDebug("Skipping <sample> without path")
			continue
		}
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}

		s, err := DecodeFile(name, path)
		if err != nil {
			return fmt.Errorf("failed to load kit sample %q: %w", name, err)
		}
		s.Category = section.GetString("category")
		e.store.Add(s)
		if first == "" {
			first = name
		}
	}

	p := kit.PresetValues()
	if p.SampleName == "" {
		p.SampleName = first
	}
	return e.ApplyPreset(p)
}

// Sources lists what a front end asks to load. Kit, Folder and File are
// loaded in that order; Select then picks the sample to play.
type Sources struct {
	Kit    string
	Folder string
	File   string
	Select string
}

// Load loads src into the engine. Without Select, and with nothing chosen
// by a kit or file, the first sample by name is selected.
func (e *Engine) Load(src Sources) error {
	if src.Kit != "" {
		if err := e.LoadKit(src.Kit); err != nil {
			return err
		}
	}
	if src.Folder != "" {
		if _, err := e.store.ScanFolder(src.Folder); err != nil {
			return err
		}
	}
	if src.File != "" {
		if err := e.LoadFile(src.File); err != nil {
			return err
		}
	}
	if src.Select != "" {
		return e.SetSample(src.Select)
	}
	if e.CurrentSample() != nil {
		return nil
	}
	names := e.AvailableSamples()
	if len(names) == 0 {
		return fmt.Errorf("%w: nothing loaded", ErrSampleNotFound)
	}
	return e.SetSample(names[0])
}
