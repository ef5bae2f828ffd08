package proxysampler

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/GeoffreyPlitt/debuggo"
)

var kitDebug = debuggo.Debug("proxysampler:kit")

// Kit is a parsed kit file: the samples to load and the preset to apply.
//
//	// drums
//	<sample> name=kick path=kick.wav category=drums
//	<preset> attack_ms=7 release_ms=150 gain=0.8 sample=kick
type Kit struct {
	Samples []*KitSection
	Preset  *KitSection
}

// KitSection is one <sample> or <preset> header with its opcodes.
type KitSection struct {
	Type    string
	Opcodes map[string]string
}

var knownOpcodes = map[string]map[string]bool{
	"sample": {
		"name":     true,
		"path":     true,
		"category": true,
	},
	"preset": {
		"attack_ms":   true,
		"release_ms":  true,
		"gain":        true,
		"sample":      true,
		"monophonic":  true,
		"reverb_send":  true,
		"reverb_room":  true,
		"reverb_damp":  true,
		"reverb_width": true,
		"antipop":      true,
	},
}

// ParseKitFile parses the kit file at filePath
func ParseKitFile(filePath string) (*Kit, error) {
	kitDebug("Parsing kit file: %s", filePath)

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open kit file: %w", err)
	}
	defer file.Close()

	return ParseKit(file)
}

// ParseKit reads kit text from r. Unknown sections and opcodes are skipped.
func ParseKit(r io.Reader) (*Kit, error) {
	kit := &Kit{}
	scanner := bufio.NewScanner(r)
	lineNum := 0
	var current *KitSection

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}

		// a header may share its line with opcodes
		for strings.HasPrefix(line, "<") {
			end := strings.Index(line, ">")
			if end < 0 {
				kitDebug("Warning: unterminated header at line %d: %s", lineNum, line)
				line = ""
				break
			}
			current = kit.openSection(strings.ToLower(line[1:end]), lineNum)
			line = strings.TrimSpace(line[end+1:])
		}
		if line == "" {
			continue
		}

		if current == nil {
			kitDebug("Warning: opcode outside of section at line %d: %s", lineNum, line)
			continue
		}
		current.parseOpcodes(line, lineNum)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading kit: %w", err)
	}

	kitDebug("Kit parsed: %d samples, preset=%v", len(kit.Samples), kit.Preset != nil)
	return kit, nil
}

func (k *Kit) openSection(sectionType string, lineNum int) *KitSection {
	section := &KitSection{Type: sectionType, Opcodes: make(map[string]string)}
	switch sectionType {
	case "sample":
		k.Samples = append(k.Samples, section)
	case "preset":
		if k.Preset != nil {
			kitDebug("Warning: second <preset> at line %d replaces the first", lineNum)
		}
		k.Preset = section
	default:
		kitDebug("Warning: unknown section <%s> at line %d", sectionType, lineNum)
	}
	return section
}

// opcodeKey matches the start of a key=value pair.
var opcodeKey = regexp.MustCompile(`(?:^|\s)([A-Za-z_][A-Za-z0-9_]*)=`)

// parseOpcodes reads key=value pairs. A value runs up to the next key, so
// names and paths may contain spaces.
func (s *KitSection) parseOpcodes(line string, lineNum int) {
	matches := opcodeKey.FindAllStringSubmatchIndex(line, -1)
	for i, m := range matches {
		end := len(line)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		opcode := strings.ToLower(line[m[2]:m[3]])
		value := strings.TrimSpace(line[m[1]:end])
		if !knownOpcodes[s.Type][opcode] {
			kitDebug("Warning: unknown opcode '%s' in <%s> at line %d", opcode, s.Type, lineNum)
			continue
		}
		s.Opcodes[opcode] = value
	}
}

// GetString returns the opcode value, or "" when missing
func (s *KitSection) GetString(opcode string) string {
	if s == nil || s.Opcodes == nil {
		return ""
	}
	return s.Opcodes[opcode]
}

// GetFloat returns the opcode as a float, or def when missing or invalid
func (s *KitSection) GetFloat(opcode string, def float64) float64 {
	value := s.GetString(opcode)
	if value == "" {
		return def
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		kitDebug("Warning: invalid float value for opcode %s: %s", opcode, value)
		return def
	}
	return f
}

// GetBool returns the opcode as a bool, or def when missing or invalid
func (s *KitSection) GetBool(opcode string, def bool) bool {
	value := s.GetString(opcode)
	if value == "" {
		return def
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		kitDebug("Warning: invalid bool value for opcode %s: %s", opcode, value)
		return def
	}
	return b
}

// Preset is the full set of engine settings a kit can carry.
type Preset struct {
	State
	Monophonic  bool
	ReverbSend  float64
	ReverbRoom  float64
	ReverbDamp  float64
	ReverbWidth float64
	AntiPop     bool
}

// DefaultPreset returns the engine defaults.
func DefaultPreset() Preset {
	return Preset{
		State: State{
			AttackMs:  DefaultAttackMs,
			ReleaseMs: DefaultReleaseMs,
			Gain:      DefaultGain,
		},
		ReverbRoom:  initialRoom,
		ReverbDamp:  initialDamp,
		ReverbWidth: initialWidth,
	}
}

// PresetValues reads the <preset> section on top of the defaults.
func (k *Kit) PresetValues() Preset {
	p := DefaultPreset()
	s := k.Preset
	if s == nil {
		return p
	}
	p.AttackMs = s.GetFloat("attack_ms", p.AttackMs)
	p.ReleaseMs = s.GetFloat("release_ms", p.ReleaseMs)
	p.Gain = s.GetFloat("gain", p.Gain)
	p.SampleName = s.GetString("sample")
	p.Monophonic = s.GetBool("monophonic", p.Monophonic)
	p.ReverbSend = s.GetFloat("reverb_send", p.ReverbSend)
	p.ReverbRoom = s.GetFloat("reverb_room", p.ReverbRoom)
	p.ReverbDamp = s.GetFloat("reverb_damp", p.ReverbDamp)
	p.ReverbWidth = s.GetFloat("reverb_width", p.ReverbWidth)
	p.AntiPop = s.GetBool("antipop", p.AntiPop)
	return p
}

// FormatPreset renders p as a <preset> section that ParseKit reads back.
func FormatPreset(p Preset) string {
	var b strings.Builder
	b.WriteString("<preset>\n")
	fmt.Fprintf(&b, "attack_ms=%s release_ms=%s gain=%s\n",
		formatFloat(p.AttackMs), formatFloat(p.ReleaseMs), formatFloat(p.Gain))
	if p.SampleName != "" {
		fmt.Fprintf(&b, "sample=%s\n", p.SampleName)
	}
	fmt.Fprintf(&b, "monophonic=%t antipop=%t\n", p.Monophonic, p.AntiPop)
	fmt.Fprintf(&b, "reverb_send=%s reverb_room=%s reverb_damp=%s reverb_width=%s\n",
		formatFloat(p.ReverbSend), formatFloat(p.ReverbRoom), formatFloat(p.ReverbDamp), formatFloat(p.ReverbWidth))
	return b.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
