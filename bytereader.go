package streamunzip

import "io"

// ChunkSource pulls the next opaque chunk of archive bytes from upstream
// (a file, a socket, a generator). It returns io.EOF once exhausted; any
// other error is an upstream failure and is propagated unchanged.
type ChunkSource func() ([]byte, error)

// DefaultChunkCap is the default cap (in bytes) on slices yielded by
// ByteReader.YieldAll.
const DefaultChunkCap = 65536

type chunkSlot struct {
	chunk  []byte
	offset int
}

// ByteReader is a pull-based reader over a ChunkSource that supports
// "unread" (push-back) across chunk boundaries. It never seeks; every byte
// pulled from the source is either delivered to a caller or pushed back
// for a later caller, and the running AbsoluteOffset always reflects bytes
// delivered minus bytes pushed back.
type ByteReader struct {
	src ChunkSource

	prevChunk []byte
	chunk     []byte
	offset    int

	queue *chunkSlot

	chunkCap  int
	absOffset uint64
	err       error
}

// NewByteReader constructs a ByteReader pulling from src. chunkCap bounds
// the size of slices returned by YieldAll; a value <= 0 means
// DefaultChunkCap.
func NewByteReader(src ChunkSource, chunkCap int) *ByteReader {
	if chunkCap <= 0 {
		chunkCap = DefaultChunkCap
	}
	return &ByteReader{src: src, chunkCap: chunkCap}
}

// AbsoluteOffset returns the number of bytes exposed to consumers so far,
// minus bytes currently pushed back.
func (r *ByteReader) AbsoluteOffset() uint64 {
	return r.absOffset
}

// Err returns the sticky upstream error observed by YieldAll, if any.
func (r *ByteReader) Err() error {
	return r.err
}

// fill ensures r.chunk has at least one unconsumed byte available, pulling
// from the one-slot push-back queue first and then from upstream. It
// returns ok=false (with a nil error) once upstream is genuinely exhausted.
//
// Whenever a genuine chunk transition happens (the old chunk is fully
// consumed and a new one takes its place), the outgoing chunk is saved as
// prevChunk, so PushBackN can recover bytes that straddle the boundary even
// though only a single physical chunk of lookback is kept.
func (r *ByteReader) fill() (ok bool, err error) {
	if r.offset < len(r.chunk) {
		return true, nil
	}
	if r.queue != nil {
		r.prevChunk = r.chunk
		r.chunk = r.queue.chunk
		r.offset = r.queue.offset
		r.queue = nil
		if r.offset < len(r.chunk) {
			return true, nil
		}
	}
	for {
		c, err := r.src()
		if err != nil {
			if err == io.EOF {
				return false, nil
			}
			return false, err
		}
		if len(c) == 0 {
			continue
		}
		r.prevChunk = r.chunk
		r.chunk = c
		r.offset = 0
		return true, nil
	}
}

// yieldOne returns the next slice of at most cap bytes (cap <= 0 means
// unbounded), advancing internal state. ok is false only once upstream is
// exhausted with nothing left to give.
func (r *ByteReader) yieldOne(cap int) (out []byte, ok bool, err error) {
	ok, err = r.fill()
	if err != nil || !ok {
		return nil, false, err
	}
	start := r.offset
	toYield := len(r.chunk) - r.offset
	if cap > 0 && toYield > cap {
		toYield = cap
	}
	r.offset += toYield
	out = r.chunk[start : start+toYield]
	r.absOffset += uint64(toYield)
	return out, true, nil
}

// Get reads exactly n bytes, failing with TruncatedError if upstream ends
// first.
func (r *ByteReader) Get(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		slice, ok, err := r.yieldOne(n - len(out))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &TruncatedError{Wanted: n, Got: len(out)}
		}
		out = append(out, slice...)
	}
	return out, nil
}

// Read implements io.Reader over the same underlying chunk stream as
// YieldAll/Get, so a *ByteReader can itself be handed to a Decompressor
// for unencrypted members.
func (r *ByteReader) Read(p []byte) (int, error) {
	slice, ok, err := r.yieldOne(len(p))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, io.EOF
	}
	return copy(p, slice), nil
}

// ReadByte implements io.ByteReader, letting decompressors detect the
// exact end of their logical stream without overreading.
func (r *ByteReader) ReadByte() (byte, error) {
	slice, ok, err := r.yieldOne(1)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, io.EOF
	}
	return slice[0], nil
}

// YieldAll returns an iterator (Go's pull-iterator analogue of a
// generator) over whatever upstream produces, each slice clipped to the
// reader's configured chunk cap. It terminates silently when upstream
// ends; if upstream instead errors, the sequence stops early and the error
// is available from Err().
func (r *ByteReader) YieldAll() func(yield func([]byte) bool) {
	return func(yield func([]byte) bool) {
		for {
			slice, ok, err := r.yieldOne(r.chunkCap)
			if err != nil {
				r.err = err
				return
			}
			if !ok {
				return
			}
			if !yield(slice) {
				return
			}
		}
	}
}

// PushBackN re-exposes the last k bytes just produced by YieldAll/Get,
// rewinding state inside the current or immediately prior physical chunk.
// The caller must only use this for counts known to lie within that
// window (true for every caller in this package: decompressor "unused"
// counts are always a suffix of the most recently pulled chunk).
//
// When k reaches back past the start of the current chunk, the bytes
// already consumed from the current chunk (r.offset of them) must be
// re-exposed too, along with k-r.offset bytes from the tail of the
// immediately prior chunk.
func (r *ByteReader) PushBackN(k int) {
	if k == 0 {
		return
	}
	if k <= r.offset {
		r.offset -= k
	} else {
		need := k - r.offset
		tail := r.prevChunk[len(r.prevChunk)-need:]
		merged := make([]byte, 0, len(tail)+len(r.chunk))
		merged = append(merged, tail...)
		merged = append(merged, r.chunk...)
		r.chunk = merged
		r.offset = 0
	}
	r.absOffset -= uint64(k)
}

// PushBackBytes installs b as a new current chunk, displacing whatever
// remained of the real current chunk into the one-slot push-back queue.
// Used when the caller holds explicit bytes to re-inject (not merely a
// count of unconsumed trailing bytes), e.g. the data-descriptor heuristic
// re-injecting the next section's signature.
func (r *ByteReader) PushBackBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	if r.offset < len(r.chunk) {
		r.queue = &chunkSlot{chunk: r.chunk, offset: r.offset}
	} else {
		r.queue = nil
	}
	r.chunk = b
	r.offset = 0
	r.absOffset -= uint64(len(b))
}
