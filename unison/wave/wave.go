// Package wave provides a frame-addressable reader for 16-bit signed PCM
// wave files. Header and chunk parsing is delegated to go-audio/wav; sample
// access is done with explicit offset math against the PCM chunk so the
// playback loop can seek to arbitrary frames cheaply and repeatedly.
package wave

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

// Reader reads interleaved int16 frames from a wave file and supports
// absolute frame seeks. It is not safe for concurrent use.
type Reader struct {
	f         *os.File
	rate      int
	channels  int
	dataStart int64 // byte offset of the PCM chunk
	frames    int64
	pos       int64 // cursor, in frames
	scratch   []byte
}

// Open opens a wave file and validates that it carries 16-bit signed PCM.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	d := wav.NewDecoder(f)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("wave: reading %s: %w", path, err)
	}
	if d.BitDepth != 16 {
		f.Close()
		return nil, fmt.Errorf("wave: %s: unsupported bit depth %d, want 16", path, d.BitDepth)
	}
	if d.NumChans < 1 || d.SampleRate < 1 {
		f.Close()
		return nil, fmt.Errorf("wave: %s: invalid format (%d channels at %d Hz)", path, d.NumChans, d.SampleRate)
	}
	if err := d.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("wave: %s: no PCM data: %w", path, err)
	}
	dataStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		f.Close()
		return nil, err
	}
	bytesPerFrame := int64(d.NumChans) * 2
	return &Reader{
		f:         f,
		rate:      int(d.SampleRate),
		channels:  int(d.NumChans),
		dataStart: dataStart,
		frames:    d.PCMLen() / bytesPerFrame,
	}, nil
}

// Spec reports the sample rate and channel count from the file header.
func (r *Reader) Spec() (rate, channels int) {
	return r.rate, r.channels
}

// Len reports the total number of frames in the file.
func (r *Reader) Len() int64 {
	return r.frames
}

// Pos reports the current cursor position in frames.
func (r *Reader) Pos() int64 {
	return r.pos
}

// Seek moves the cursor to an absolute frame, saturating at the file
// bounds.
func (r *Reader) Seek(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if frame > r.frames {
		frame = r.frames
	}
	r.pos = frame
	return nil
}

// ReadFrames fills dst with interleaved samples from the cursor onward and
// advances the cursor. It returns the number of whole frames read; at end
// of file it returns 0, io.EOF.
func (r *Reader) ReadFrames(dst []int16) (int, error) {
	bytesPerFrame := r.channels * 2
	want := len(dst) / r.channels
	if remaining := r.frames - r.pos; int64(want) > remaining {
		want = int(remaining)
	}
	if want == 0 {
		return 0, io.EOF
	}
	nbytes := want * bytesPerFrame
	if cap(r.scratch) < nbytes {
		r.scratch = make([]byte, nbytes)
	}
	buf := r.scratch[:nbytes]
	n, err := r.f.ReadAt(buf, r.dataStart+r.pos*int64(bytesPerFrame))
	if err != nil && err != io.EOF {
		return 0, err
	}
	got := n / 2 / r.channels // whole frames only
	for i := 0; i < got*r.channels; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
	}
	r.pos += int64(got)
	if got == 0 {
		return 0, io.EOF
	}
	return got, nil
}

func (r *Reader) Close() error {
	return r.f.Close()
}
