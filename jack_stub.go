//go:build !jack
// +build !jack

package proxysampler

import "errors"

var errNoJack = errors.New("JACK support not enabled")

// JackClient stub for builds without JACK support
type JackClient struct{}

// NewJackClient always fails; rebuild with '-tags jack' and the JACK headers installed.
func NewJackClient(engine *Engine, clientName string) (*JackClient, error) {
	return nil, errors.New("JACK support not enabled - rebuild with '-tags jack' and ensure JACK development headers are installed")
}

func (jc *JackClient) Start() error { return errNoJack }

func (jc *JackClient) Stop() error { return errNoJack }

func (jc *JackClient) Close() error { return errNoJack }
