package streamunzip

import "encoding/binary"

// Reader iterates the members of a ZIP archive in encounter order. It is
// a pull-based, single-owner driver over a ByteReader: Next advances to
// the next member, Member exposes the one currently being read, and Err
// reports the first fatal error (nil once iteration ends cleanly).
//
// The caller must fully drain the current Member's plaintext (read until
// io.EOF) before calling Next again; failing to do so surfaces
// UnfinishedIterationError.
type Reader struct {
	br      *ByteReader
	opts    Options
	current *Member
	done    bool
	err     error
}

// NewReader constructs a Reader pulling archive bytes from src.
func NewReader(src ChunkSource, opts Options) *Reader {
	return &Reader{br: NewByteReader(src, opts.ChunkCap), opts: opts}
}

// Next advances to the next member, returning false when iteration has
// ended (check Err to distinguish clean end from failure).
func (r *Reader) Next() bool {
	if r.err != nil || r.done {
		return false
	}
	if r.current != nil {
		if !r.current.done {
			r.err = &UnfinishedIterationError{}
			return false
		}
		if r.current.err != nil {
			r.err = r.current.err
			return false
		}
	}
	r.current = nil

	sig, err := r.br.Get(4)
	if err != nil {
		r.err = err
		return false
	}
	switch binary.LittleEndian.Uint32(sig) {
	case sigLocalFile:
		m, err := parseMember(r.br, &r.opts)
		if err != nil {
			r.err = err
			return false
		}
		r.current = m
		return true
	case sigCentralDir, sigEndCentralDir:
		r.drainRemainder()
		r.done = true
		return false
	default:
		var got [4]byte
		copy(got[:], sig)
		r.err = &UnexpectedSignatureError{Got: got}
		return false
	}
}

// drainRemainder consumes whatever is left of upstream, ignoring it. The
// central directory and end-of-central-directory record are read but
// discarded; this module never parses them.
func (r *Reader) drainRemainder() {
	r.br.YieldAll()(func([]byte) bool { return true })
	if err := r.br.Err(); err != nil {
		r.err = err
	}
}

// Member returns the member currently being iterated, or nil before the
// first call to Next or after iteration ends.
func (r *Reader) Member() *Member { return r.current }

// Err returns the first fatal error encountered, or nil if iteration
// completed cleanly.
func (r *Reader) Err() error { return r.err }
