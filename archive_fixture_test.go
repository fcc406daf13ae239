package streamunzip

import (
	"bytes"
	"encoding/binary"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
)

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func deflateBytes(data []byte) []byte {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	_, _ = w.Write(data)
	_ = w.Close()
	return buf.Bytes()
}

func bzip2Bytes(data []byte) []byte {
	var buf bytes.Buffer
	w, _ := bzip2.NewWriter(&buf, nil)
	_, _ = w.Write(data)
	_ = w.Close()
	return buf.Bytes()
}

// descriptor renders a data descriptor in any of the four layouts the
// heuristic must disambiguate.
type descriptor struct {
	withSig bool
	wide    bool
	crc     uint32
	comp    uint64
	uncomp  uint64
}

func (d descriptor) bytes() []byte {
	var buf bytes.Buffer
	if d.withSig {
		buf.Write([]byte{0x50, 0x4b, 0x07, 0x08})
	}
	buf.Write(le32(d.crc))
	if d.wide {
		buf.Write(le64(d.comp))
		buf.Write(le64(d.uncomp))
	} else {
		buf.Write(le32(uint32(d.comp)))
		buf.Write(le32(uint32(d.uncomp)))
	}
	return buf.Bytes()
}

// rawMember builds one local-file-header-and-body fragment byte for byte,
// so tests can construct exactly the archive shapes they need
// without depending on any particular third-party ZIP writer's choices.
type rawMember struct {
	name       string
	flags      uint16
	method     uint16
	modTime    uint16
	modDate    uint16
	crc        uint32
	compSize   uint32
	uncompSize uint32
	extra      []byte
	body       []byte
}

func (m rawMember) bytes() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x50, 0x4b, 0x03, 0x04})
	buf.Write(le16(20))
	buf.Write(le16(m.flags))
	buf.Write(le16(m.method))
	buf.Write(le16(m.modTime))
	buf.Write(le16(m.modDate))
	buf.Write(le32(m.crc))
	buf.Write(le32(m.compSize))
	buf.Write(le32(m.uncompSize))
	buf.Write(le16(uint16(len(m.name))))
	buf.Write(le16(uint16(len(m.extra))))
	buf.WriteString(m.name)
	buf.Write(m.extra)
	buf.Write(m.body)
	return buf.Bytes()
}

func centralDirStub() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x50, 0x4b, 0x01, 0x02})
	buf.Write(make([]byte, 42))
	return buf.Bytes()
}

func eocdStub() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x50, 0x4b, 0x05, 0x06})
	buf.Write(make([]byte, 18))
	return buf.Bytes()
}
