package wave

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestFile encodes frames of stereo PCM where sample i carries the
// value i on the left channel and -i on the right, so positions are easy to
// assert after seeks.
func writeTestFile(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ramp.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	e := wav.NewEncoder(f, 48000, 16, 2, 1)
	data := make([]int, frames*2)
	for i := 0; i < frames; i++ {
		data[2*i] = i
		data[2*i+1] = -i
	}
	require.NoError(t, e.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 48000},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, e.Close())
	require.NoError(t, f.Close())
	return path
}

func TestOpenSpec(t *testing.T) {
	r, err := Open(writeTestFile(t, 100))
	require.NoError(t, err)
	defer r.Close()

	rate, channels := r.Spec()
	assert.Equal(t, 48000, rate)
	assert.Equal(t, 2, channels)
	assert.Equal(t, int64(100), r.Len())
	assert.Equal(t, int64(0), r.Pos())
}

func TestReadSequential(t *testing.T) {
	r, err := Open(writeTestFile(t, 64))
	require.NoError(t, err)
	defer r.Close()

	dst := make([]int16, 20*2)
	n, err := r.ReadFrames(dst)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	for i := 0; i < 20; i++ {
		assert.Equal(t, int16(i), dst[2*i])
		assert.Equal(t, int16(-i), dst[2*i+1])
	}
	assert.Equal(t, int64(20), r.Pos())

	// Tail read comes back short, then EOF.
	require.NoError(t, r.Seek(60))
	n, err = r.ReadFrames(dst)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int16(60), dst[0])

	_, err = r.ReadFrames(dst)
	assert.Equal(t, io.EOF, err)
}

func TestSeekSaturates(t *testing.T) {
	r, err := Open(writeTestFile(t, 32))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Seek(-5))
	assert.Equal(t, int64(0), r.Pos())

	require.NoError(t, r.Seek(1000))
	assert.Equal(t, int64(32), r.Pos())
	_, err = r.ReadFrames(make([]int16, 2))
	assert.Equal(t, io.EOF, err)

	require.NoError(t, r.Seek(10))
	dst := make([]int16, 2)
	n, err := r.ReadFrames(dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int16(10), dst[0])
}

func TestOpenRejectsWrongDepth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	e := wav.NewEncoder(f, 48000, 24, 1, 1)
	require.NoError(t, e.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 48000},
		Data:           []int{0, 1, 2, 3},
		SourceBitDepth: 24,
	}))
	require.NoError(t, e.Close())
	require.NoError(t, f.Close())

	_, err = Open(path)
	assert.ErrorContains(t, err, "bit depth")
}
