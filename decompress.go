package streamunzip

import (
	"bufio"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
)

// Decompressor is the abstract contract a concrete codec must satisfy:
// Read pulls decompressed bytes, IsDone reports whether the logical
// compressed stream has ended, and Unused reports how many trailing bytes
// of the most recently read upstream data were not actually part of the
// compressed stream.
//
// Store and the flate-backed variants are fed a source that also
// implements io.ByteReader (ByteReader and the decrypting sources all
// do); per github.com/klauspost/compress/flate's documented contract, a
// decompressor fed such a source never reads past the logical end of its
// stream, so Unused is hardcoded to 0 for those variants. Bzip2 carries
// no such documented guarantee, so it computes Unused properly instead
// of assuming it (see bzip2Decompressor below).
type Decompressor interface {
	io.Reader
	IsDone() bool
	Unused() int
}

type byteReader interface {
	io.Reader
	io.ByteReader
}

// storeDecompressor passes through exactly N bytes, buffering none.
type storeDecompressor struct {
	src       io.Reader
	total     uint64
	remaining uint64
}

// NewStoreDecompressor returns a Decompressor for method 0 (stored) data,
// passing through exactly n bytes from src.
func NewStoreDecompressor(src io.Reader, n uint64) Decompressor {
	return &storeDecompressor{src: src, total: n, remaining: n}
}

func (d *storeDecompressor) Read(p []byte) (int, error) {
	if d.remaining == 0 {
		return 0, io.EOF
	}
	if uint64(len(p)) > d.remaining {
		p = p[:d.remaining]
	}
	n, err := d.src.Read(p)
	d.remaining -= uint64(n)
	if err == io.EOF {
		// The upstream source ran dry before delivering the declared
		// uncompressed size: the archive was truncated inside this
		// member's body, not a clean end of stream.
		if d.remaining > 0 {
			return n, &TruncatedError{Wanted: int(d.total), Got: int(d.total - d.remaining)}
		}
		return n, nil
	}
	if err != nil {
		return n, err
	}
	// Match the convention of returning io.EOF only once the caller
	// observes it via a subsequent zero-byte Read.
	return n, nil
}

func (d *storeDecompressor) IsDone() bool { return d.remaining == 0 }
func (d *storeDecompressor) Unused() int  { return 0 }

// flateDecompressor wraps github.com/klauspost/compress/flate, used for
// both method 8 (Deflate) and method 9 (Deflate64, see
// NewDeflate64Decompressor for the fidelity caveat). Chosen over stdlib
// compress/flate because stdlib's documented tendency to read beyond the
// end of the DEFLATE stream would break this package's exact tail-offset
// accounting.
type flateDecompressor struct {
	fr   io.ReadCloser
	done bool
}

func newFlateDecompressor(src byteReader) *flateDecompressor {
	return &flateDecompressor{fr: flate.NewReader(src)}
}

// NewDeflateDecompressor returns a Decompressor for method 8 streams.
func NewDeflateDecompressor(src byteReader) Decompressor { return newFlateDecompressor(src) }

// NewDeflate64Decompressor returns a Decompressor for method 9 streams.
// The widened 64 KiB window and extended length code 285 are not
// specially decoded; Deflate64 streams that stay within classic DEFLATE
// limits decode correctly.
func NewDeflate64Decompressor(src byteReader) Decompressor { return newFlateDecompressor(src) }

func (d *flateDecompressor) Read(p []byte) (int, error) {
	n, err := d.fr.Read(p)
	if err == io.EOF {
		d.done = true
		return n, io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		// The source ran dry mid-stream: the archive was cut inside this
		// member's compressed body, not corrupted.
		return n, &TruncatedError{}
	}
	if err != nil {
		return n, &DeflateError{Err: err}
	}
	return n, nil
}

func (d *flateDecompressor) IsDone() bool { return d.done }
func (d *flateDecompressor) Unused() int  { return 0 }

// bzip2Decompressor wraps github.com/dsnet/compress/bzip2.
//
// Unlike klauspost/compress/flate, dsnet/compress/bzip2 documents no
// guarantee against reading past the end of the bzip2 stream, so this
// decompressor cannot simply hardcode Unused to 0. Instead it interposes
// a bufio.Reader it owns between src and the bzip2 reader: bufio only
// refills from its underlying Read once its buffer is fully drained (it
// never pulls ahead speculatively), so whatever bzip2 leaves unread in
// that buffer once it reports io.EOF is exactly the set of bytes pulled
// from src but never part of the logical bzip2 stream. Those bytes are
// always a suffix of the single most recent upstream chunk, satisfying
// PushBackN's within-current-or-prior-chunk precondition regardless of
// how far ahead the bzip2 reader itself buffers internally.
type bzip2Decompressor struct {
	buf  *bufio.Reader
	br   io.Reader
	done bool
}

// NewBzip2Decompressor returns a Decompressor for method 12 streams.
func NewBzip2Decompressor(src byteReader) (Decompressor, error) {
	buf := bufio.NewReader(src)
	r, err := bzip2.NewReader(buf, nil)
	if err != nil {
		return nil, &Bzip2Error{Err: err}
	}
	return &bzip2Decompressor{buf: buf, br: r}, nil
}

func (d *bzip2Decompressor) Read(p []byte) (int, error) {
	n, err := d.br.Read(p)
	if err == io.EOF {
		d.done = true
		return n, io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		return n, &TruncatedError{}
	}
	if err != nil {
		return n, &Bzip2Error{Err: err}
	}
	return n, nil
}

func (d *bzip2Decompressor) IsDone() bool { return d.done }
func (d *bzip2Decompressor) Unused() int  { return d.buf.Buffered() }
