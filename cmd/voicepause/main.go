package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voicepause/pkg/audio"
	_ "github.com/xaionaro-go/voicepause/pkg/audio/backends/oto"
	_ "github.com/xaionaro-go/voicepause/pkg/audio/backends/portaudio"
	_ "github.com/xaionaro-go/voicepause/pkg/audio/backends/pulseaudio"
	"github.com/xaionaro-go/voicepause/pkg/audio/pausable"
	"github.com/xaionaro-go/voicepause/pkg/capture"
	"github.com/xaionaro-go/voicepause/pkg/focus"
	"github.com/xaionaro-go/voicepause/pkg/monitor"
	"github.com/xaionaro-go/voicepause/pkg/profile"
	"github.com/xaionaro-go/voicepause/pkg/vadengine"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	profileName := pflag.String("profile", profile.NameBusy, "the profile to use: quiet, busy, traffic or custom")
	profileFile := pflag.String("profile-file", "", "a YAML file with the profile selection; it is re-read every second and overrides --profile")
	aggressiveness := pflag.Int("aggressiveness", 1, "custom profile: aggressiveness of the detector (0..3)")
	minSpeech := pflag.Duration("min-speech", 400*time.Millisecond, "custom profile: how long the speech must last to pause the playback")
	minVoiceEnergy := pflag.Float64("min-voice-energy", 300, "custom profile: minimal RMS of a voice frame")
	pauseHold := pflag.Duration("pause-hold", 3*time.Second, "custom profile: how long the playback stays paused after the voice")
	sensitivity := pflag.Float64("sensitivity", 1, "custom profile: sensitivity multiplier (0.8..1.8)")
	resumeDelay := pflag.Duration("resume-delay", 0, "extra silence required before the speech is considered ended")
	autoStop := pflag.Duration("auto-stop", monitor.DefaultAutoStopTimeout, "exit after the playback is inactive for this long")
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <file.ogg>\n", os.Args[0])
		pflag.PrintDefaults()
		os.Exit(2)
	}
	filePath := pflag.Arg(0)

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelFn()

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	var src profile.Source
	if *profileFile != "" {
		src = &profile.FileSource{Path: *profileFile}
	} else {
		var p profile.Profile
		if *profileName == profile.NameCustom {
			p = profile.Custom(*aggressiveness, *minSpeech, *minVoiceEnergy, *pauseHold, *sensitivity)
		} else {
			var err error
			p, err = profile.ByName(*profileName)
			assertNoError(err)
		}
		src = profile.NewStaticSource(profile.Selection{
			Profile:     p,
			ResumeDelay: *resumeDelay,
		})
	}
	sel, err := src.Selection(ctx)
	assertNoError(err)
	logger.Infof(ctx, "profile: %s", sel.Profile)

	file, err := os.Open(filePath)
	assertNoError(err)
	defer file.Close()

	player := audio.NewPlayerAuto(ctx)
	defer player.Close()

	var music *pausable.Reader
	streamPlay, err := player.PlayVorbis(ctx, file, func(r io.Reader) io.Reader {
		music = pausable.NewReader(r)
		return music
	})
	assertNoError(err)
	defer func() {
		if err := streamPlay.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the playback stream: %v", err)
		}
	}()
	logger.Infof(ctx, "playing %s using %T", filePath, player.PlayerPCM)

	recorder, err := audio.NewRecorderAuto(ctx)
	assertNoError(err)
	defer recorder.Close()
	device := capture.NewRecorderDevice(recorder)

	focusController := focus.New(music, sel.Profile.PauseHold)
	defer focusController.Close(ctx)

	engine := vadengine.New(device)
	mon := monitor.New(engine, src, music, focusController)
	mon.AutoStopTimeout = *autoStop

	err = engine.Initialize(ctx, vadengine.Listeners{focusController, mon.Listener()}, sel.Profile)
	assertNoError(err)
	defer func() {
		if err := engine.Release(ctx); err != nil {
			logger.Errorf(ctx, "unable to release the engine: %v", err)
		}
	}()

	observability.Go(ctx, func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				logger.Debugf(ctx, "captured: %d bytes; engine running: %v; paused by voice: %v",
					device.CapturedBytes(), engine.IsRunning(), focusController.PausedByVoice())
			}
		}
	})

	err = mon.Run(ctx)
	switch {
	case errors.Is(err, monitor.ErrAutoStopped):
		logger.Infof(ctx, "the playback is over")
	case errors.Is(err, context.Canceled):
		logger.Infof(ctx, "interrupted")
	default:
		logger.Errorf(ctx, "stopped: %v", err)
	}
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
