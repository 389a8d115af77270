package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voicepause/pkg/audio"
	_ "github.com/xaionaro-go/voicepause/pkg/audio/backends/portaudio"
	_ "github.com/xaionaro-go/voicepause/pkg/audio/backends/pulseaudio"
	"github.com/xaionaro-go/voicepause/pkg/capture"
)

type frameSink struct {
	locker  sync.Mutex
	samples []int16
	errCh   chan error
}

var _ capture.Listener = (*frameSink)(nil)

func (s *frameSink) OnFrame(ctx context.Context, frame capture.Frame) {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.samples = append(s.samples, frame.Samples...)
}

func (s *frameSink) OnCaptureError(ctx context.Context, err error) {
	s.errCh <- err
}

func main() {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	duration := pflag.Duration("duration", 10*time.Second, "how long to record; zero means until interrupted")
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <output.wav>\n", os.Args[0])
		pflag.PrintDefaults()
		os.Exit(2)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt)
	defer cancelFn()
	if *duration > 0 {
		ctx, cancelFn = context.WithTimeout(ctx, *duration)
		defer cancelFn()
	}

	logger.Infof(ctx, "starting...")
	recorder, err := audio.NewRecorderAuto(ctx)
	assertNoError(err)
	defer recorder.Close()

	device := capture.NewRecorderDevice(recorder)
	source := capture.NewFrameSource(device)
	sink := &frameSink{errCh: make(chan error, 1)}
	assertNoError(source.Initialize(ctx, sink))
	defer func() {
		assertNoError(source.Release(context.WithoutCancel(ctx)))
	}()
	assertNoError(source.StartCapture(ctx))

	observability.Go(ctx, func() {
		logger.Tracef(ctx, "started the traffic count printer loop")
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				logger.Debugf(ctx, "captured: %d bytes", device.CapturedBytes())
			}
		}
	})

	select {
	case <-ctx.Done():
	case err := <-sink.errCh:
		logger.Errorf(ctx, "the capture stopped: %v", err)
	}
	source.StopCapture(context.WithoutCancel(ctx))

	sink.locker.Lock()
	samples := sink.samples
	sink.locker.Unlock()

	f, err := os.Create(pflag.Arg(0))
	assertNoError(err)
	defer f.Close()
	assertNoError(capture.WriteWAV(f, samples, capture.SampleRate))
	logger.Infof(ctx, "written %d samples (%v) to %s",
		len(samples), time.Duration(len(samples))*time.Second/time.Duration(capture.SampleRate), pflag.Arg(0))
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
