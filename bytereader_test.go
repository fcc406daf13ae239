package streamunzip

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// chunksOf splits data into fixed-size chunks, simulating an upstream
// producer whose chunking has nothing to do with the structures read
// from it.
func chunksOf(data []byte, size int) ChunkSource {
	i := 0
	return func() ([]byte, error) {
		if i >= len(data) {
			return nil, io.EOF
		}
		end := i + size
		if end > len(data) {
			end = len(data)
		}
		c := data[i:end]
		i = end
		return c, nil
	}
}

func TestByteReaderGetAcrossChunkBoundaries(t *testing.T) {
	data := []byte("hello world, this is a streamed archive body")
	for _, chunkSize := range []int{1, 2, 3, 7, 1000} {
		br := NewByteReader(chunksOf(data, chunkSize), 0)
		got, err := br.Get(len(data))
		require.NoError(t, err)
		require.Equal(t, data, got)
		require.Equal(t, uint64(len(data)), br.AbsoluteOffset())
	}
}

func TestByteReaderGetTruncated(t *testing.T) {
	br := NewByteReader(chunksOf([]byte("short"), 2), 0)
	_, err := br.Get(10)
	require.Error(t, err)
	var terr *TruncatedError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, 10, terr.Wanted)
	require.Equal(t, 5, terr.Got)
}

func TestByteReaderYieldAllRespectsChunkCap(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i)
	}
	br := NewByteReader(chunksOf(data, 333), 100)
	var out []byte
	br.YieldAll()(func(slice []byte) bool {
		require.LessOrEqual(t, len(slice), 100)
		out = append(out, slice...)
		return true
	})
	require.NoError(t, br.Err())
	require.Equal(t, data, out)
}

func TestByteReaderPushBackNWithinCurrentChunk(t *testing.T) {
	br := NewByteReader(chunksOf([]byte("abcdefgh"), 8), 0)
	first, err := br.Get(5)
	require.NoError(t, err)
	require.Equal(t, []byte("abcde"), first)

	br.PushBackN(2)
	require.Equal(t, uint64(3), br.AbsoluteOffset())

	rest, err := br.Get(5)
	require.NoError(t, err)
	require.Equal(t, []byte("defgh"), rest)
}

func TestByteReaderPushBackNAcrossChunkBoundary(t *testing.T) {
	br := NewByteReader(chunksOf([]byte("abcdefgh"), 4), 0)
	first, err := br.Get(5) // "abcd" + "e", crossing into second chunk
	require.NoError(t, err)
	require.Equal(t, []byte("abcde"), first)

	br.PushBackN(3) // re-expose "cde"

	rest, err := br.Get(5)
	require.NoError(t, err)
	require.Equal(t, []byte("cdefg"), rest)
}

func TestByteReaderPushBackBytes(t *testing.T) {
	br := NewByteReader(chunksOf([]byte("0123456789"), 4), 0)
	_, err := br.Get(3) // "012"
	require.NoError(t, err)

	before := br.AbsoluteOffset()
	br.PushBackBytes([]byte("XY"))
	require.Equal(t, before-2, br.AbsoluteOffset())

	got, err := br.Get(5)
	require.NoError(t, err)
	require.Equal(t, []byte("XY345"), got)
}

func TestByteReaderReadAndReadByte(t *testing.T) {
	br := NewByteReader(chunksOf([]byte("abcdefgh"), 3), 0)
	b, err := br.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('a'), b)

	buf := make([]byte, 4)
	n, err := br.Read(buf)
	require.NoError(t, err)
	require.Greater(t, n, 0)
}
