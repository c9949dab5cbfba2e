//go:build !linux

// Package alsa implements the playback device over the ALSA kernel PCM
// interface. It is only available on Linux; this stub keeps other
// platforms compiling.
package alsa

import (
	"fmt"
	"runtime"

	"github.com/unisonwave/go-unison/unison/device"
)

type Device struct{}

var _ device.Device = (*Device)(nil)

func Open(name string) (*Device, error) {
	return nil, fmt.Errorf("alsa: not available on %s, use the oto backend", runtime.GOOS)
}

func (d *Device) Configure(cfg device.Config) error { return errUnavailable() }

func (d *Device) Status() (device.Status, error) { return device.Status{}, errUnavailable() }

func (d *Device) Write(buf []int16) (int, error) { return 0, errUnavailable() }

func (d *Device) Prepare() error { return errUnavailable() }

func (d *Device) Drain() error { return errUnavailable() }

func (d *Device) Close() error { return nil }

func errUnavailable() error {
	return fmt.Errorf("alsa: not available on %s", runtime.GOOS)
}
