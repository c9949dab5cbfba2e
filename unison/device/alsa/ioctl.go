//go:build linux

package alsa

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Kernel PCM ABI, from <sound/asound.h>. Only the slice of the interface
// the playback loop needs is declared: hw/sw parameter negotiation, status
// with timestamps, interleaved writes and the prepare/drain lifecycle.

const (
	accessRWInterleaved = 3
	formatS16LE         = 2
	subformatStd        = 0

	tstampTypeGettimeofday = 0 // wall clock, shared epoch with startstamp
	tstampModeEnable       = 1

	// protocol version 2.0.14, needed for sw_params.tstamp_type
	pcmProtoVersion = (2 << 16) | (0 << 8) | 14
)

// hw_params parameter indices.
const (
	paramAccess    = 0
	paramFormat    = 1
	paramSubformat = 2

	paramFirstInterval = 8
	paramSampleBits    = 8
	paramFrameBits     = 9
	paramChannels      = 10
	paramRate          = 11
	paramPeriodTime    = 12
	paramPeriodSize    = 13
	paramPeriodBytes   = 14
	paramPeriods       = 15
	paramBufferTime    = 16
	paramBufferSize    = 17
	paramBufferBytes   = 18
	paramTickTime      = 19
)

const intervalInteger = 1 << 2 // snd_interval flags bit

type sndMask struct {
	Bits [8]uint32
}

func (m *sndMask) any() {
	for i := range m.Bits {
		m.Bits[i] = 0xffffffff
	}
}

func (m *sndMask) only(bit uint) {
	*m = sndMask{}
	m.Bits[bit>>5] = 1 << (bit & 31)
}

type sndInterval struct {
	Min   uint32
	Max   uint32
	Flags uint32
}

type hwParams struct {
	Flags     uint32
	Masks     [3]sndMask
	Mres      [5]sndMask
	Intervals [12]sndInterval
	Ires      [9]sndInterval
	Rmask     uint32
	Cmask     uint32
	Info      uint32
	Msbits    uint32
	RateNum   uint32
	RateDen   uint32
	FifoSize  uint64
	Reserved  [64]byte
}

// any resets p so every configuration the hardware supports is allowed.
func (p *hwParams) any() {
	*p = hwParams{Rmask: 0xffffffff, Info: 0xffffffff}
	for i := range p.Masks {
		p.Masks[i].any()
	}
	for i := range p.Mres {
		p.Mres[i].any()
	}
	for i := range p.Intervals {
		p.Intervals[i] = sndInterval{Max: 0xffffffff}
	}
	for i := range p.Ires {
		p.Ires[i] = sndInterval{Max: 0xffffffff}
	}
}

func (p *hwParams) setMask(param int, bit uint) {
	p.Masks[param].only(bit)
}

func (p *hwParams) setInterval(param int, v uint32) {
	p.Intervals[param-paramFirstInterval] = sndInterval{Min: v, Max: v, Flags: intervalInteger}
}

func (p *hwParams) interval(param int) sndInterval {
	return p.Intervals[param-paramFirstInterval]
}

type swParams struct {
	TstampMode       int32
	PeriodStep       uint32
	SleepMin         uint32
	_                uint32
	AvailMin         uint64
	XferAlign        uint64
	StartThreshold   uint64
	StopThreshold    uint64
	SilenceThreshold uint64
	SilenceSize      uint64
	Boundary         uint64
	Proto            uint32
	TstampType       uint32
	Reserved         [56]byte
}

type pcmStatus struct {
	State               int32
	_                   int32
	TriggerTstamp       unix.Timespec
	Tstamp              unix.Timespec
	ApplPtr             uint64
	HwPtr               uint64
	Delay               int64
	Avail               uint64
	AvailMax            uint64
	Overrange           uint64
	SuspendedState      int32
	AudioTstampData     uint32
	AudioTstamp         unix.Timespec
	DriverTstamp        unix.Timespec
	AudioTstampAccuracy uint32
	Reserved            [20]byte
}

type xferi struct {
	Result int64
	Buf    unsafe.Pointer
	Frames uint64
}

// ioctl request encoding, asm-generic flavour.
const (
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | 'A'<<8 | nr
}

var (
	ioctlTTstamp      = ioc(iocWrite, 0x03, 4)
	ioctlHwRefine     = ioc(iocRead|iocWrite, 0x10, unsafe.Sizeof(hwParams{}))
	ioctlHwParams     = ioc(iocRead|iocWrite, 0x11, unsafe.Sizeof(hwParams{}))
	ioctlSwParams     = ioc(iocRead|iocWrite, 0x13, unsafe.Sizeof(swParams{}))
	ioctlStatus       = ioc(iocRead, 0x20, unsafe.Sizeof(pcmStatus{}))
	ioctlPrepare      = ioc(0, 0x40, 0)
	ioctlDrain        = ioc(0, 0x44, 0)
	ioctlWriteiFrames = ioc(iocWrite, 0x50, unsafe.Sizeof(xferi{}))
)

// ioctl retries on EINTR; the device write path handles everything else.
func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		if errno == 0 {
			return nil
		}
		if errno != unix.EINTR {
			return errno
		}
	}
}
