package resample

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestShiftIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		k := rapid.IntRange(1, 8).Draw(t, "k")
		ch := rapid.IntRange(1, 4).Draw(t, "ch")
		frames := rapid.IntRange(2*k+2, 256).Draw(t, "frames")
		buf := rapid.SliceOfN(
			rapid.Int16Range(math.MinInt16, math.MaxInt16), frames*ch, frames*ch,
		).Draw(t, "buf")

		out := Shift(buf, 0, k, ch)
		if len(out) != len(buf)-(2*k+1)*ch {
			t.Fatalf("output length %d, want %d", len(out), len(buf)-(2*k+1)*ch)
		}
		for i := range out {
			if out[i] != buf[i+k*ch] {
				t.Fatalf("sample %d: got %d want %d", i, out[i], buf[i+k*ch])
			}
		}
	})
}

func TestShiftShortBlockPassthrough(t *testing.T) {
	k, ch := 2, 2
	buf := make([]int16, (2*k+1)*ch) // exactly the overlap, nothing to filter
	for i := range buf {
		buf[i] = int16(i)
	}
	out := Shift(buf, 0.5, k, ch)
	assert.Equal(t, buf[k*ch:], out)
}

func TestShiftLinearity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		k := rapid.IntRange(1, 4).Draw(t, "k")
		frames := rapid.IntRange(2*k+2, 64).Draw(t, "frames")
		rho := rapid.Float64Range(-0.99, 0.99).Draw(t, "rho")
		// Amplitudes kept well inside int16 so the sum cannot clamp.
		u := rapid.SliceOfN(rapid.Int16Range(-8000, 8000), frames, frames).Draw(t, "u")
		v := rapid.SliceOfN(rapid.Int16Range(-8000, 8000), frames, frames).Draw(t, "v")

		sum := make([]int16, frames)
		for i := range sum {
			sum[i] = u[i] + v[i]
		}
		su := Shift(u, rho, k, 1)
		sv := Shift(v, rho, k, 1)
		ssum := Shift(sum, rho, k, 1)
		for i := range ssum {
			if d := int(ssum[i]) - int(su[i]) - int(sv[i]); d < -2 || d > 2 {
				t.Fatalf("sample %d: shift(u+v)=%d, shift(u)+shift(v)=%d", i, ssum[i], int(su[i])+int(sv[i]))
			}
		}
	})
}

func TestShiftClamps(t *testing.T) {
	k := 2
	buf := make([]int16, 64)
	for i := range buf {
		buf[i] = math.MaxInt16
	}
	out := Shift(buf, 0.5, k, 1)
	for i, v := range out {
		require.LessOrEqual(t, v, int16(math.MaxInt16), "sample %d", i)
		require.GreaterOrEqual(t, v, int16(math.MinInt16), "sample %d", i)
	}
}

func TestShiftMovesSine(t *testing.T) {
	// A fractional shift of a sampled sine must land close to the sine
	// evaluated at the shifted positions. Truncating the sinc at k taps
	// leaves some ripple, so the tolerance is loose.
	const (
		k      = 8
		freq   = 440.0
		rate   = 48000.0
		amp    = 16000.0
		frames = 512
		rho    = 0.3
	)
	buf := make([]int16, frames)
	for i := range buf {
		buf[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	out := Shift(buf, rho, k, 1)
	for j := range out {
		want := amp * math.Sin(2*math.Pi*freq*(float64(j+k)+rho)/rate)
		assert.InDelta(t, want, float64(out[j]), amp*0.05, "sample %d", j)
	}
}
