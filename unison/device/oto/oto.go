// Package oto implements the playback device on top of ebitengine/oto. It
// exists for bring-up on machines without ALSA access: oto exposes no
// hardware clock, so timestamps are synthesized from time.Now and the
// unplayed-buffer readback, and underruns are stretched silently by the
// library instead of surfacing as errors. Tight multi-machine sync needs
// the alsa backend.
package oto

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/unisonwave/go-unison/unison/device"
)

// Device adapts oto's pull-model player to the loop's push-model writes
// with an internal FIFO.
type Device struct {
	cfg     device.Config
	ctx     *oto.Context
	player  *oto.Player
	started bool

	mu     sync.Mutex
	cond   *sync.Cond
	fifo   []byte
	closed bool
}

var _ device.Device = (*Device)(nil)

func New() *Device {
	d := &Device{}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *Device) Configure(cfg device.Config) error {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.Rate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("oto: creating context: %w", err)
	}
	<-ready
	d.cfg = cfg
	d.ctx = ctx
	d.player = ctx.NewPlayer(pullReader{d})
	d.player.SetBufferSize(2 * cfg.PeriodFrames * cfg.Channels * 2)
	return nil
}

func (d *Device) Status() (device.Status, error) {
	bytesPerFrame := int64(d.cfg.Channels) * 2
	d.mu.Lock()
	queued := int64(len(d.fifo))
	d.mu.Unlock()
	if d.player != nil {
		queued += int64(d.player.BufferedSize())
	}
	state := device.StatePrepared
	if d.started {
		state = device.StateRunning
	}
	return device.Status{
		State: state,
		Stamp: time.Now().UnixNano(),
		Delay: queued / bytesPerFrame,
	}, nil
}

func (d *Device) Write(buf []int16) (int, error) {
	bytesPerFrame := d.cfg.Channels * 2
	limit := 4 * d.cfg.PeriodFrames * bytesPerFrame

	// Emulate a bounded hardware queue: block until there is room.
	for {
		d.mu.Lock()
		queued := len(d.fifo)
		d.mu.Unlock()
		if d.player != nil {
			queued += d.player.BufferedSize()
		}
		if queued+len(buf)*2 <= limit {
			break
		}
		time.Sleep(time.Millisecond)
	}

	d.mu.Lock()
	for _, s := range buf {
		d.fifo = append(d.fifo, byte(s), byte(s>>8))
	}
	queuedFrames := len(d.fifo) / bytesPerFrame
	d.cond.Signal()
	d.mu.Unlock()

	if !d.started && queuedFrames >= d.cfg.StartThreshold {
		d.player.Play()
		d.started = true
	}
	return len(buf) / d.cfg.Channels, nil
}

func (d *Device) Prepare() error {
	return nil
}

func (d *Device) Drain() error {
	for {
		d.mu.Lock()
		queued := len(d.fifo)
		d.mu.Unlock()
		if d.player != nil {
			queued += d.player.BufferedSize()
		}
		if queued == 0 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	if d.player != nil {
		return d.player.Close()
	}
	return nil
}

// pullReader feeds the oto player from the FIFO, blocking while it is
// empty so the player never sees a premature end of stream.
type pullReader struct {
	d *Device
}

func (r pullReader) Read(p []byte) (int, error) {
	d := r.d
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.fifo) == 0 && !d.closed {
		d.cond.Wait()
	}
	if d.closed && len(d.fifo) == 0 {
		return 0, io.EOF
	}
	n := copy(p, d.fifo)
	d.fifo = d.fifo[n:]
	return n, nil
}
