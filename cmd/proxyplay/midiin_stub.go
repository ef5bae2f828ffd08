//go:build !rtmidi

package main

import (
	"errors"

	"proxysampler"
)

func listenMIDI(portName string, engine *proxysampler.Engine) (func(), error) {
	return nil, errors.New("live MIDI input not enabled - rebuild with '-tags rtmidi'")
}
