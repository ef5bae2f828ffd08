package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"proxysampler"
	"proxysampler/internal/cli"
)

func main() {
	var opts cli.Flags
	opts.Register(flag.CommandLine, 512)
	output := flag.String("output", "render.wav", "Output WAV path")
	channels := flag.Int("channels", 2, "Output channels (1 or 2)")
	tail := flag.Float64("tail", 1.0, "Seconds rendered after the last event")
	flag.Parse()

	engine := proxysampler.NewEngine(nil)
	if err := engine.Prepare(float64(opts.SampleRate), opts.Block); err != nil {
		fail("prepare error: %v", err)
	}
	if err := opts.Setup(engine); err != nil {
		fail("setup error: %v", err)
	}
	events, err := opts.Events()
	if err != nil {
		fail("sequence error: %v", err)
	}

	frames := proxysampler.SequenceEnd(events) + int64(*tail*float64(opts.SampleRate))
	out, err := proxysampler.RenderOffline(engine, events, frames, *channels)
	if err != nil {
		fail("render error: %v", err)
	}
	if err := proxysampler.WriteWAV(*output, out, opts.SampleRate); err != nil {
		fail("wav write error: %v", err)
	}
	if err := opts.WritePreset(engine); err != nil {
		fail("%v", err)
	}

	peak, rms := stats(out)
	fmt.Printf("Wrote %s\n", *output)
	fmt.Printf("Sample: %s, SampleRate: %d Hz, Frames: %d, Events: %d\n",
		engine.CurrentSampleName(), opts.SampleRate, frames, len(events))
	fmt.Printf("Peak: %.6f, RMS: %.6f\n", peak, rms)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "proxyrender: "+format+"\n", args...)
	os.Exit(1)
}

func stats(out [][]float32) (peak float64, rms float64) {
	var sum float64
	var n int
	for _, ch := range out {
		for _, v := range ch {
			a := math.Abs(float64(v))
			if a > peak {
				peak = a
			}
			sum += float64(v) * float64(v)
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return peak, math.Sqrt(sum / float64(n))
}
