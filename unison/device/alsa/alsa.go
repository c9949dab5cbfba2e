//go:build linux

// Package alsa implements the playback device over the ALSA kernel PCM
// interface, talking to /dev/snd/pcmC*D*p directly with ioctls. Going
// through the raw interface rather than a userspace wrapper is what makes
// hardware timestamps available: status reports carry a CLOCK_REALTIME
// stamp and the queued delay, which the control loop's estimators are
// built on.
package alsa

import (
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/unisonwave/go-unison/unison/device"
)

// Device is an open playback PCM. Not safe for concurrent use.
type Device struct {
	fd   int
	cfg  device.Config
	path string
}

var _ device.Device = (*Device)(nil)

// Open opens a playback PCM by name. Supported names are "default" (card
// 0, device 0) and "hw:C" / "hw:C,D".
func Open(name string) (*Device, error) {
	card, dev := 0, 0
	switch {
	case name == "" || name == "default":
	default:
		if n, _ := fmt.Sscanf(name, "hw:%d,%d", &card, &dev); n < 1 {
			return nil, fmt.Errorf("alsa: unsupported device name %q (want \"default\" or \"hw:C,D\")", name)
		}
	}
	path := fmt.Sprintf("/dev/snd/pcmC%dD%dp", card, dev)
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("alsa: opening %s: %w", path, err)
	}
	return &Device{fd: fd, path: path}, nil
}

func (d *Device) Configure(cfg device.Config) error {
	var hw hwParams
	hw.any()
	hw.setMask(paramAccess, accessRWInterleaved)
	hw.setMask(paramFormat, formatS16LE)
	hw.setMask(paramSubformat, subformatStd)
	hw.setInterval(paramChannels, uint32(cfg.Channels))
	hw.setInterval(paramRate, uint32(cfg.Rate))
	hw.setInterval(paramPeriodSize, uint32(cfg.PeriodFrames))
	hw.setInterval(paramBufferSize, uint32(4*cfg.PeriodFrames))
	if err := ioctl(d.fd, ioctlHwParams, unsafe.Pointer(&hw)); err != nil {
		return fmt.Errorf("alsa: %s: hw params (%d ch, %d Hz, period %d): %w",
			d.path, cfg.Channels, cfg.Rate, cfg.PeriodFrames, err)
	}
	bufferSize := uint64(hw.interval(paramBufferSize).Min)

	// Ask for wall-clock stamps both ways: the legacy ioctl for older
	// kernels and the sw_params field for ones that honour tstamp_type.
	tstamp := int32(tstampTypeGettimeofday)
	if err := ioctl(d.fd, ioctlTTstamp, unsafe.Pointer(&tstamp)); err != nil {
		return fmt.Errorf("alsa: %s: timestamp type: %w", d.path, err)
	}

	boundary := bufferSize
	for boundary*2 <= math.MaxInt64-boundary {
		boundary *= 2
	}
	sw := swParams{
		TstampMode:     tstampModeEnable,
		PeriodStep:     1,
		AvailMin:       uint64(cfg.PeriodFrames),
		XferAlign:      1,
		StartThreshold: uint64(cfg.StartThreshold),
		StopThreshold:  bufferSize,
		Boundary:       boundary,
		Proto:          pcmProtoVersion,
		TstampType:     tstampTypeGettimeofday,
	}
	if err := ioctl(d.fd, ioctlSwParams, unsafe.Pointer(&sw)); err != nil {
		return fmt.Errorf("alsa: %s: sw params: %w", d.path, err)
	}

	d.cfg = cfg
	return d.Prepare()
}

func (d *Device) Status() (device.Status, error) {
	var st pcmStatus
	if err := ioctl(d.fd, ioctlStatus, unsafe.Pointer(&st)); err != nil {
		return device.Status{}, fmt.Errorf("alsa: %s: status: %w", d.path, err)
	}
	return device.Status{
		State: device.State(st.State),
		Stamp: st.Tstamp.Sec*1e9 + st.Tstamp.Nsec,
		Delay: st.Delay,
	}, nil
}

func (d *Device) Write(buf []int16) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	frames := len(buf) / d.cfg.Channels
	// S16_LE matches the in-memory layout on the little-endian targets
	// this backend runs on, so the slice is handed to the kernel as-is.
	xf := xferi{Buf: unsafe.Pointer(&buf[0]), Frames: uint64(frames)}
	if err := ioctl(d.fd, ioctlWriteiFrames, unsafe.Pointer(&xf)); err != nil {
		if err == unix.EPIPE {
			return 0, device.ErrUnderrun
		}
		return 0, fmt.Errorf("alsa: %s: writei: %w", d.path, err)
	}
	return int(xf.Result), nil
}

func (d *Device) Prepare() error {
	if err := ioctl(d.fd, ioctlPrepare, nil); err != nil {
		return fmt.Errorf("alsa: %s: prepare: %w", d.path, err)
	}
	return nil
}

func (d *Device) Drain() error {
	if err := ioctl(d.fd, ioctlDrain, nil); err != nil {
		return fmt.Errorf("alsa: %s: drain: %w", d.path, err)
	}
	return nil
}

func (d *Device) Close() error {
	return unix.Close(d.fd)
}
