package main

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"os"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/voicepause/pkg/audio/resampler"
	"github.com/xaionaro-go/voicepause/pkg/capture"
	"github.com/xaionaro-go/voicepause/pkg/profile"
	"github.com/xaionaro-go/voicepause/pkg/vad"
	"github.com/xaionaro-go/voicepause/pkg/vad/implementations/heuristic"
	"github.com/xaionaro-go/voicepause/pkg/vadengine"
)

func main() {
	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	profileName := pflag.String("profile", profile.NameBusy, "the preset to evaluate: quiet, busy or traffic")
	immediateRelease := pflag.Bool("immediate-release", false, "end the speech on the first silent frame")
	pace := pflag.Bool("pace", false, "replay the file in real time instead of as fast as possible")
	printLevels := pflag.Bool("levels", true, "print the measurements of every frame")
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <file.wav>\n", os.Args[0])
		pflag.PrintDefaults()
		os.Exit(2)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	p, err := profile.ByName(*profileName)
	assertNoError(err)

	samples := loadSamples(ctx, pflag.Arg(0))
	frameCount := len(samples) / capture.FrameSamples

	maxRMS, offset, err := vad.FindNextVoice(
		ctx,
		heuristic.New(p.Aggressiveness),
		samples,
		capture.FrameSamples,
		capture.FrameDuration,
		p.MinSpeechDuration,
	)
	assertNoError(err)
	if offset < 0 {
		fmt.Printf("# no speech of at least %v found (max speech RMS: %.1f)\n", p.MinSpeechDuration, maxRMS)
	} else {
		fmt.Printf("# first speech at %v (max speech RMS: %.1f)\n", offset, maxRMS)
	}

	// trailing silence lets the last episode end
	padded := append(samples, make([]int16, samplesFor(p.SilenceDelay+2*capture.FrameDuration))...)
	device := capture.NewReplayDevice(padded, capture.SampleRate)
	device.Pace = *pace

	var processed atomic.Uint64
	engine := vadengine.New(device)
	engine.ImmediateRelease = *immediateRelease
	engine.LevelObserver = vadengine.LevelObserverFunc(func(ctx context.Context, level vadengine.Level) {
		defer processed.Add(1)
		if !*printLevels || level.Index >= uint64(frameCount) {
			return
		}
		start := int(level.Index) * capture.FrameSamples
		fmt.Printf("%6d %10v rms=%8.1f zcr=%.3f freq=%6.0fHz speech=%v\n",
			level.Index, level.Timestamp, level.RMS, level.ZCR,
			dominantFrequency(samples[start:start+capture.FrameSamples]), level.IsSpeech)
	})

	var episodes atomic.Int32
	listener := vadengine.ListenerFuncs{
		SpeechStarted: func(ctx context.Context, ev vadengine.SpeechEvent) {
			episodes.Add(1)
			fmt.Printf("# speech started at %v (rms %.1f, near field: %v)\n", ev.Timestamp, ev.RMS, ev.NearField)
		},
		SpeechEnded: func(ctx context.Context, ev vadengine.SpeechEvent) {
			fmt.Printf("# speech ended at %v (peak rms %.1f, near field: %v)\n", ev.Timestamp, ev.PeakRMS, ev.NearField)
		},
		Error: func(ctx context.Context, err error) {
			logger.Errorf(ctx, "capture failed: %v", err)
		},
	}

	assertNoError(engine.Initialize(ctx, listener, p))
	defer func() {
		assertNoError(engine.Release(ctx))
	}()
	assertNoError(engine.Start(ctx))

	<-device.Done()
	total := uint64(len(padded) / capture.FrameSamples)
	deadline := time.Now().Add(5 * time.Second)
	for processed.Load() < total && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	engine.Stop(ctx)

	fmt.Printf("# %d frames, %d speech episodes, profile %s\n", frameCount, episodes.Load(), p)
}

func loadSamples(ctx context.Context, path string) []int16 {
	f, err := os.Open(path)
	assertNoError(err)
	defer f.Close()

	samples, rate, err := capture.LoadWAV(f)
	assertNoError(err)
	if rate != capture.SampleRate {
		logger.Infof(ctx, "resampling from %d Hz to %d Hz", rate, capture.SampleRate)
		samples, err = resampler.ResampleS16(samples, rate, capture.SampleRate)
		assertNoError(err)
	}
	return samples
}

func samplesFor(d time.Duration) int {
	return int(int64(capture.SampleRate) * int64(d) / int64(time.Second))
}

func dominantFrequency(samples []int16) float64 {
	x := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = float64(s)
	}
	window.Apply(x, window.Hann)
	spectrum := fft.FFTReal(x)

	var peakBin int
	var peak float64
	for i := 1; i < len(spectrum)/2; i++ {
		if m := cmplx.Abs(spectrum[i]); m > peak {
			peak, peakBin = m, i
		}
	}
	return math.Round(float64(peakBin) * float64(capture.SampleRate) / float64(len(samples)))
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
