// Package sim implements a deterministic software playback device: frames
// written to it are consumed at a configurable true sample rate against the
// wall clock, with the same status/underrun semantics as a hardware PCM.
// It is the bring-up target for the playback loop: a rate offset of a few
// hundred ppm reproduces the clock drift the loop corrects on real
// hardware, without touching a sound card.
package sim

import (
	"time"

	"github.com/unisonwave/go-unison/unison/device"
)

// Device consumes frames against its own notion of the true sample
// duration. Not safe for concurrent use.
type Device struct {
	cfg     device.Config
	ppm     float64 // clock offset from nominal
	trueDur float64 // ns per frame actually consumed
	buffer  int64   // frames the queue can hold

	started bool
	xrun    bool
	startNs int64
	queued  int64 // frames written since the last prepare

	now func() int64
}

var _ device.Device = (*Device)(nil)

// New creates a simulated device whose true sample clock deviates from
// nominal by ratePPM parts per million (positive means the device consumes
// slower than nominal, as a slow crystal would).
func New(ratePPM float64) *Device {
	return &Device{
		ppm: ratePPM,
		now: func() int64 { return time.Now().UnixNano() },
	}
}

func (d *Device) Configure(cfg device.Config) error {
	d.cfg = cfg
	d.trueDur = 1e9 / float64(cfg.Rate) * (1 + d.ppm/1e6)
	d.buffer = int64(4 * cfg.PeriodFrames)
	return nil
}

func (d *Device) consumed(now int64) int64 {
	if !d.started {
		return 0
	}
	return int64(float64(now-d.startNs) / d.trueDur)
}

func (d *Device) Status() (device.Status, error) {
	now := d.now()
	st := device.Status{Stamp: now, Delay: d.queued - d.consumed(now)}
	switch {
	case d.xrun:
		st.State = device.StateXRun
	case d.started:
		st.State = device.StateRunning
		if st.Delay < 0 {
			d.xrun = true
			st.State = device.StateXRun
			st.Delay = 0
		}
	default:
		st.State = device.StatePrepared
	}
	return st, nil
}

func (d *Device) Write(buf []int16) (int, error) {
	frames := int64(len(buf) / d.cfg.Channels)
	now := d.now()
	if d.started && d.queued-d.consumed(now) < 0 {
		d.xrun = true
	}
	if d.xrun {
		return 0, device.ErrUnderrun
	}

	// Block like a hardware queue would while the buffer is full.
	for d.queued+frames-d.consumed(d.now()) > d.buffer {
		time.Sleep(time.Duration(d.trueDur) * time.Duration(d.cfg.PeriodFrames) / 4)
	}

	d.queued += frames
	if !d.started && d.queued >= int64(d.cfg.StartThreshold) {
		d.started = true
		d.startNs = d.now()
	}
	return int(frames), nil
}

func (d *Device) Prepare() error {
	d.started = false
	d.xrun = false
	d.queued = 0
	return nil
}

func (d *Device) Drain() error {
	if !d.started {
		return nil
	}
	for {
		now := d.now()
		left := d.queued - d.consumed(now)
		if left <= 0 {
			return nil
		}
		time.Sleep(time.Duration(float64(left) * d.trueDur))
	}
}

func (d *Device) Close() error {
	return nil
}
