package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ebitengine/oto/v3"
	"golang.org/x/term"

	"proxysampler"
	"proxysampler/internal/cli"
)

func main() {
	var opts cli.Flags
	opts.Register(flag.CommandLine, 256)
	useJack := flag.Bool("jack", false, "Play through JACK instead of the system audio device (needs -tags jack)")
	midiIn := flag.String("midi-in", "", "Live MIDI input port name (needs -tags rtmidi)")
	live := flag.Bool("live", false, "Only play live input, skip the note sequence")
	tail := flag.Duration("tail", 2*time.Second, "How long to keep playing after the last event")
	meter := flag.Bool("meter", term.IsTerminal(int(os.Stdout.Fd())), "Show a level meter while playing")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := proxysampler.NewEngine(nil)
	closeOutput, err := openOutput(engine, &opts, *useJack)
	if err != nil {
		fail("output error: %v", err)
	}
	defer closeOutput()

	if *midiIn != "" {
		closeMIDI, err := listenMIDI(*midiIn, engine)
		if err != nil {
			fail("MIDI input error: %v", err)
		}
		defer closeMIDI()
	}

	if *meter {
		go runMeter(ctx, engine)
	}

	if *live {
		fmt.Println("Playing live input, press Ctrl+C to stop")
		<-ctx.Done()
	} else {
		events, err := opts.Events()
		if err != nil {
			fail("sequence error: %v", err)
		}
		play(ctx, engine, events, float64(opts.SampleRate))
		select {
		case <-ctx.Done():
		case <-time.After(*tail):
		}
	}

	engine.Reset()
	if err := opts.WritePreset(engine); err != nil {
		fmt.Fprintf(os.Stderr, "proxyplay: %v\n", err)
	}
	fmt.Println()
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "proxyplay: "+format+"\n", args...)
	os.Exit(1)
}

// openOutput prepares engine for the chosen backend, loads the samples and
// starts audio. The returned func stops it.
func openOutput(engine *proxysampler.Engine, opts *cli.Flags, useJack bool) (func(), error) {
	if useJack {
		jc, err := proxysampler.NewJackClient(engine, "proxysampler")
		if err != nil {
			return nil, err
		}
		if err := opts.Setup(engine); err != nil {
			jc.Close()
			return nil, err
		}
		if err := jc.Start(); err != nil {
			jc.Close()
			return nil, err
		}
		return func() {
			jc.Stop()
			jc.Close()
		}, nil
	}

	if err := engine.Prepare(float64(opts.SampleRate), opts.Block); err != nil {
		return nil, err
	}
	if err := opts.Setup(engine); err != nil {
		return nil, err
	}
	reader, err := proxysampler.NewStreamReader(engine, 2)
	if err != nil {
		return nil, err
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   opts.SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(opts.Block) * time.Second / time.Duration(opts.SampleRate) * 2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	<-ready

	player := otoCtx.NewPlayer(reader)
	player.Play()
	return func() {
		player.Close()
		reader.Close()
	}, nil
}

// play hands each event to the engine at its wall clock time.
func play(ctx context.Context, engine *proxysampler.Engine, events []proxysampler.TimedEvent, sampleRate float64) {
	start := time.Now()
	for _, ev := range events {
		at := start.Add(time.Duration(float64(ev.Frame) / sampleRate * float64(time.Second)))
		timer := time.NewTimer(time.Until(at))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if !engine.Enqueue(ev.Event) {
			fmt.Fprintln(os.Stderr, "proxyplay: event queue full, dropping event")
		}
	}
}

// runMeter redraws a one line display of the playback state.
func runMeter(ctx context.Context, engine *proxysampler.Engine) {
	const width = 30
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		left, right := engine.Levels()
		snap := engine.Snapshot()
		voices := 0
		for _, v := range snap.Voices {
			if v.Active {
				voices++
			}
		}
		progress := 0.0
		if snap.PositionLength > 0 {
			progress = float64(snap.Position) / float64(snap.PositionLength)
		}
		fmt.Printf("\rL %s R %s  %-12s %3.0f%%  voices %d ",
			bar(left, width), bar(right, width), engine.CurrentSampleName(), progress*100, voices)
	}
}

func bar(level float64, width int) string {
	n := int(level * float64(width))
	n = max(0, min(n, width))
	return "[" + strings.Repeat("#", n) + strings.Repeat(" ", width-n) + "]"
}
