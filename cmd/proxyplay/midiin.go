//go:build rtmidi

package main

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"proxysampler"
)

// listenMIDI forwards note messages from the named input port to engine.
func listenMIDI(portName string, engine *proxysampler.Engine) (func(), error) {
	in, err := midi.FindInPort(portName)
	if err != nil {
		return nil, fmt.Errorf("MIDI input %q not found: %w", portName, err)
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		if ev, ok := proxysampler.ParseMIDI(msg, 0); ok {
			engine.Enqueue(ev)
		}
	}, midi.HandleError(func(listenErr error) {
		fmt.Printf("\nMIDI listener error: %v\n", listenErr)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %q: %w", portName, err)
	}
	fmt.Printf("Listening on MIDI input %s\n", in.String())
	return func() {
		stop()
		midi.CloseDriver()
	}, nil
}
