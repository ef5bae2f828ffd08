//go:build jack
// +build jack

package proxysampler

import (
	"fmt"
	"unsafe"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/xthexder/go-jack"
)

var jackDebug = debuggo.Debug("proxysampler:jack")

// maxBlockEvents bounds the MIDI events handled per JACK period.
const maxBlockEvents = 256

// JackClient drives an Engine from a JACK process callback: MIDI in, a
// stereo pair of audio outs.
type JackClient struct {
	client    *jack.Client
	engine    *Engine
	outPorts  [2]*jack.Port
	midiIn    *jack.Port
	events    []NoteEvent
	outBuffer [][]float32
}

// NewJackClient opens a JACK client and prepares engine for its sample rate
// and buffer size.
func NewJackClient(engine *Engine, clientName string) (*JackClient, error) {
	jackDebug("Creating JACK client: %s", clientName)

	client, status := jack.ClientOpen(clientName, jack.NoStartServer)
	if client == nil {
		return nil, fmt.Errorf("failed to open JACK client: %w", jack.StrError(status))
	}

	jc := &JackClient{
		client:    client,
		engine:    engine,
		events:    make([]NoteEvent, 0, maxBlockEvents),
		outBuffer: make([][]float32, 2),
	}

	sampleRate := float64(client.GetSampleRate())
	bufferSize := int(client.GetBufferSize())
	if err := engine.Prepare(sampleRate, bufferSize); err != nil {
		client.Close()
		return nil, err
	}

	for i, name := range []string{"out_left", "out_right"} {
		port := client.PortRegister(name, jack.DEFAULT_AUDIO_TYPE, jack.PortIsOutput, 0)
		if port == nil {
			client.Close()
			return nil, fmt.Errorf("failed to register audio output port %s", name)
		}
		jc.outPorts[i] = port
	}
	jc.midiIn = client.PortRegister("midi_in", jack.DEFAULT_MIDI_TYPE, jack.PortIsInput, 0)
	if jc.midiIn == nil {
		client.Close()
		return nil, fmt.Errorf("failed to register MIDI input port")
	}

	if code := client.SetProcessCallback(jc.process); code != 0 {
		client.Close()
		return nil, fmt.Errorf("failed to set process callback: %w", jack.StrError(code))
	}

	jackDebug("JACK client created (sample rate: %.0f Hz, buffer size: %d)", sampleRate, bufferSize)
	return jc, nil
}

// Start activates the client
func (jc *JackClient) Start() error {
	if code := jc.client.Activate(); code != 0 {
		return fmt.Errorf("failed to activate JACK client: %w", jack.StrError(code))
	}
	jackDebug("JACK client activated")
	return nil
}

// Stop deactivates the client
func (jc *JackClient) Stop() error {
	if code := jc.client.Deactivate(); code != 0 {
		return fmt.Errorf("failed to deactivate JACK client: %w", jack.StrError(code))
	}
	jackDebug("JACK client deactivated")
	return nil
}

// Close closes the connection to the JACK server
func (jc *JackClient) Close() error {
	if code := jc.client.Close(); code != 0 {
		return fmt.Errorf("failed to close JACK client: %w", jack.StrError(code))
	}
	jackDebug("JACK client closed")
	return nil
}

func (jc *JackClient) process(nframes uint32) int {
	jc.events = jc.events[:0]
	for _, ev := range jc.midiIn.GetMidiEvents(nframes) {
		if len(jc.events) == cap(jc.events) {
			break
		}
		if ne, ok := ParseMIDI(ev.Buffer, int(ev.Time)); ok {
			jc.events = append(jc.events, ne)
		}
	}

	for i, port := range jc.outPorts {
		jc.outBuffer[i] = audioSamples(port.GetBuffer(nframes))
	}
	jc.engine.Render(jc.outBuffer, jc.events)
	return 0
}

// audioSamples views a JACK buffer as float32 without copying.
func audioSamples(buf []jack.AudioSample) []float32 {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&buf[0])), len(buf))
}
