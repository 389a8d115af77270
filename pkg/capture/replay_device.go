package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaionaro-go/voicepause/pkg/audio"
)

const DefaultReplayChunkSize = 512

// ReplayDevice is a Device that plays back samples held in memory.
//
// If Pace is set, samples become available at the pace of the configured
// sample rate, as if they were captured live; otherwise every Read
// returns up to ChunkSize samples immediately.
type ReplayDevice struct {
	Samples    []int16
	SampleRate audio.SampleRate
	ChunkSize  int
	Pace       bool

	locker     sync.Mutex
	cfg        Config
	opened     bool
	started    bool
	position   int
	startedAt  time.Time
	startedPos int
	done       chan struct{}
}

var _ Device = (*ReplayDevice)(nil)

func NewReplayDevice(
	samples []int16,
	sampleRate audio.SampleRate,
) *ReplayDevice {
	return &ReplayDevice{
		Samples:    samples,
		SampleRate: sampleRate,
		ChunkSize:  DefaultReplayChunkSize,
		done:       make(chan struct{}),
	}
}

func (d *ReplayDevice) Open(_ context.Context, cfg Config) error {
	if cfg.Channels != 1 || cfg.PCMFormat != audio.PCMFormatS16LE {
		return fmt.Errorf("%w: %d channels, %s", ErrInvalidConfiguration, cfg.Channels, cfg.PCMFormat)
	}
	if d.SampleRate != 0 && d.SampleRate != cfg.SampleRate {
		return fmt.Errorf("%w: the samples are %d Hz, but %d Hz was requested", ErrInvalidConfiguration, d.SampleRate, cfg.SampleRate)
	}

	d.locker.Lock()
	defer d.locker.Unlock()
	d.cfg = cfg
	d.opened = true
	if d.done == nil {
		d.done = make(chan struct{})
	}
	return nil
}

func (d *ReplayDevice) Start(context.Context) error {
	d.locker.Lock()
	defer d.locker.Unlock()
	if !d.opened {
		return ErrInvalidOperation
	}
	if !d.started {
		d.started = true
		d.startedAt = time.Now()
		d.startedPos = d.position
	}
	return nil
}

func (d *ReplayDevice) Read(_ context.Context, samples []int16) (int, error) {
	d.locker.Lock()
	defer d.locker.Unlock()

	if !d.started {
		return 0, ErrInvalidOperation
	}

	end := len(d.Samples)
	if d.Pace {
		available := d.startedPos + int(time.Since(d.startedAt)*time.Duration(d.cfg.SampleRate)/time.Second)
		end = min(end, available)
	}
	chunkSize := d.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultReplayChunkSize
	}
	end = min(end, d.position+chunkSize, d.position+len(samples))

	n := 0
	if end > d.position {
		n = copy(samples, d.Samples[d.position:end])
		d.position += n
	}
	if d.position >= len(d.Samples) {
		d.markDoneLocked()
	}
	return n, nil
}

func (d *ReplayDevice) markDoneLocked() {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
}

// Stop pauses the replay; a following Start continues from the same
// position.
func (d *ReplayDevice) Stop(context.Context) error {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.started = false
	return nil
}

func (d *ReplayDevice) Close() error {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.started = false
	d.opened = false
	return nil
}

// Done is closed once all the samples were read.
func (d *ReplayDevice) Done() <-chan struct{} {
	d.locker.Lock()
	defer d.locker.Unlock()
	if d.done == nil {
		d.done = make(chan struct{})
	}
	return d.done
}

// Position returns the amount of samples consumed so far.
func (d *ReplayDevice) Position() int {
	d.locker.Lock()
	defer d.locker.Unlock()
	return d.position
}
