package streamunzip

import (
	"encoding/binary"
	"hash/crc32"
	"io"
)

const (
	sigLocalFile      uint32 = 0x04034b50
	sigCentralDir     uint32 = 0x02014b50
	sigEndCentralDir  uint32 = 0x06054b50
	sigDataDescriptor uint32 = 0x08074b50
)

const (
	zip64ExtraID uint16 = 0x0001
	aesExtraID   uint16 = 0x9901
)

const forbiddenFlagsMask uint16 = 1<<4 | 1<<5 | 1<<6 | 1<<13

// MechanismSet is an allow-list of encryption mechanisms a caller is
// willing to accept. A nil set allows everything; a non-nil set (even an
// empty one) denies any mechanism not explicitly present. NoEncryption is
// checked only when a password is supplied: an unencrypted member read
// without a password is accepted whatever the set holds.
type MechanismSet map[EncryptionMechanism]bool

func (s MechanismSet) allows(m EncryptionMechanism) bool {
	if s == nil {
		return true
	}
	return s[m]
}

// Options configures how an archive is decoded.
type Options struct {
	// Password decrypts ZipCrypto/AES members. Required when any member
	// in the archive is encrypted.
	Password []byte

	// ChunkCap bounds the size of slices ByteReader.YieldAll yields and
	// the number of plaintext bytes a single Member.Read returns; each
	// Read is additionally bounded by the caller's own buffer. A value
	// <= 0 means DefaultChunkCap.
	ChunkCap int

	// DisallowZip64 rejects any member carrying a ZIP64 extra field. The
	// zero value (false) allows ZIP64, matching this format's prevalence
	// in real-world archives.
	DisallowZip64 bool

	// AllowedMechanisms restricts which encryption mechanisms members may
	// use. Nil allows all of them.
	AllowedMechanisms MechanismSet
}

func aesKeyLengthMechanism(keyLen int) EncryptionMechanism {
	switch keyLen {
	case 16:
		return AES128Mechanism
	case 24:
		return AES192Mechanism
	default:
		return AES256Mechanism
	}
}

// Member is one archive entry. Name and Size are available as soon as the
// member is produced; Size is nil when the member carries a data
// descriptor over a compressed method, in which case the true size is
// only known once the plaintext stream has been fully drained. Read
// drains the member's decrypted, decompressed plaintext; the final Read
// that returns io.EOF also performs tail verification, so a caller that
// ignores the returned error on EOF silently accepts a corrupt member.
type Member struct {
	Name []byte
	Size *uint64

	br        *ByteReader
	decomp    Decompressor
	aesTail   *aesSource
	mechanism EncryptionMechanism

	crc      uint32
	plainLen uint64
	startOff uint64

	hasDescriptor     bool
	allowZip64        bool
	zip64ExtraPresent bool

	headerCRC   uint32
	headerCSize uint64
	headerUSize uint64

	done bool
	err  error
}

func (m *Member) Read(p []byte) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	if m.done {
		return 0, io.EOF
	}
	if len(p) > m.br.chunkCap {
		p = p[:m.br.chunkCap]
	}
	n, err := m.decomp.Read(p)
	if n > 0 {
		m.crc = crc32.Update(m.crc, crc32.IEEETable, p[:n])
		m.plainLen += uint64(n)
	}
	if err == io.EOF {
		m.done = true
		if verr := m.finish(); verr != nil {
			m.err = verr
			return n, verr
		}
		return n, io.EOF
	}
	if err != nil {
		m.done = true
		m.err = err
		return n, err
	}
	return n, nil
}

// finish runs once, when the plaintext stream reports io.EOF: it pushes
// back any bytes the decompressor pulled but did not consume, verifies
// the AES HMAC trailer when present (excluding those unused bytes from
// the MAC), and resolves tail integrity either against the fixed local
// header fields or, when a data descriptor is present, against the
// heuristically chosen descriptor layout.
func (m *Member) finish() error {
	unused := m.decomp.Unused()
	if unused != 0 {
		m.br.PushBackN(unused)
	}
	if m.aesTail != nil {
		if err := m.aesTail.verifyTail(unused); err != nil {
			return err
		}
	}

	endOff := m.br.AbsoluteOffset()
	compressedObserved := endOff - m.startOff
	isAE2 := m.mechanism == AE2Mechanism

	if m.hasDescriptor {
		return resolveDataDescriptor(m.br, m.allowZip64, m.zip64ExtraPresent, isAE2, m.crc, compressedObserved, m.plainLen)
	}

	if !isAE2 && m.crc != m.headerCRC {
		return &CRC32IntegrityError{Want: m.headerCRC, Got: m.crc}
	}
	if compressedObserved != m.headerCSize {
		return &CompressedSizeIntegrityError{Want: m.headerCSize, Got: compressedObserved}
	}
	if m.plainLen != m.headerUSize {
		return &UncompressedSizeIntegrityError{Want: m.headerUSize, Got: m.plainLen}
	}
	return nil
}

// parseExtras decodes the local file header's extra-field area into a map
// keyed by signature, tolerating a trailing fragment shorter than the
// 4-byte (id, length) prefix by silently dropping it.
func parseExtras(data []byte) map[uint16][]byte {
	extras := make(map[uint16][]byte)
	b := readBuf(data)
	for len(b) >= 4 {
		id := b.uint16()
		size := int(b.uint16())
		if size > len(b) {
			break
		}
		extras[id] = []byte(b.sub(size))
	}
	return extras
}

// parseMember reads and classifies one local file header, assuming its
// 4-byte signature has already been consumed by the caller, and returns a
// Member whose Read drives the full decrypt/decompress/verify pipeline.
func parseMember(br *ByteReader, opts *Options) (*Member, error) {
	header, err := br.Get(26)
	if err != nil {
		return nil, err
	}
	b := readBuf(header)
	_ = b.uint16() // version needed to extract
	flags := b.uint16()
	rawMethod := b.uint16()
	modTime := b.uint16()
	_ = b.uint16() // mod date
	headerCRC := b.uint32()
	headerCSize32 := b.uint32()
	headerUSize32 := b.uint32()
	nameLen := int(b.uint16())
	extraLen := int(b.uint16())

	if flags&forbiddenFlagsMask != 0 {
		return nil, &UnsupportedFlagsError{Flags: flags}
	}
	encrypted := flags&1 != 0
	hasDescriptor := flags&(1<<3) != 0

	name, err := br.Get(nameLen)
	if err != nil {
		return nil, err
	}
	extraData, err := br.Get(extraLen)
	if err != nil {
		return nil, err
	}
	extras := parseExtras(extraData)

	mechanism := NoEncryption
	var aesKeyLen, aesSaltLen int
	if encrypted {
		if rawMethod != 99 {
			mechanism = ZipCryptoMechanism
		} else {
			aesExtra, ok := extras[aesExtraID]
			if !ok {
				return nil, &MissingAESExtraError{}
			}
			if len(aesExtra) < 7 {
				return nil, &TruncatedAESExtraError{Len: len(aesExtra)}
			}
			eb := readBuf(aesExtra)
			version := eb.uint16()
			_ = eb.sub(2) // vendor id, "AE"
			strength := eb.uint8()
			aesKeyLen, aesSaltLen, err = aesKeyParams(strength)
			if err != nil {
				return nil, err
			}
			if version == 2 {
				mechanism = AE2Mechanism
			} else {
				mechanism = AE1Mechanism
			}
		}
	}

	if mechanism == NoEncryption {
		if len(opts.Password) != 0 && !opts.AllowedMechanisms.allows(NoEncryption) {
			return nil, &FileIsNotEncryptedError{}
		}
	} else {
		if len(opts.Password) == 0 {
			if mechanism == ZipCryptoMechanism {
				return nil, &MissingZipCryptoPasswordError{}
			}
			return nil, &MissingAESPasswordError{}
		}
		if !opts.AllowedMechanisms.allows(mechanism) {
			return nil, &MechanismNotAllowedError{Mechanism: mechanism}
		}
		if mechanism == AE1Mechanism || mechanism == AE2Mechanism {
			km := aesKeyLengthMechanism(aesKeyLen)
			if !opts.AllowedMechanisms.allows(km) {
				return nil, &MechanismNotAllowedError{Mechanism: km}
			}
		}
	}

	effMethod := rawMethod
	if mechanism == AE1Mechanism || mechanism == AE2Mechanism {
		effMethod = binary.LittleEndian.Uint16(extras[aesExtraID][5:7])
	}
	switch effMethod {
	case 0, 8, 9, 12:
	default:
		return nil, &UnsupportedCompressionTypeError{Method: effMethod}
	}

	headerCSize := uint64(headerCSize32)
	headerUSize := uint64(headerUSize32)
	zip64Extra, hasZip64Extra := extras[zip64ExtraID]
	if hasZip64Extra && opts.DisallowZip64 {
		return nil, &UnsupportedZip64Error{}
	}
	if headerCSize32 == 0xFFFFFFFF && headerUSize32 == 0xFFFFFFFF {
		if !hasZip64Extra {
			return nil, &TruncatedZip64ExtraError{Len: 0}
		}
		if len(zip64Extra) < 16 {
			return nil, &TruncatedZip64ExtraError{Len: len(zip64Extra)}
		}
		zb := readBuf(zip64Extra)
		headerUSize = zb.uint64()
		headerCSize = zb.uint64()
	}

	sizesKnown := true
	if hasDescriptor && (effMethod == 8 || effMethod == 9 || effMethod == 12) {
		sizesKnown = false
	}
	if effMethod == 0 && hasDescriptor && headerUSize == 0 {
		return nil, &NotStreamUnzippableError{}
	}

	startOff := br.AbsoluteOffset()

	var src byteReader = br
	var aesSrc *aesSource
	switch mechanism {
	case ZipCryptoMechanism:
		checkByte := byte(headerCRC >> 24)
		if hasDescriptor {
			checkByte = byte(modTime >> 8)
		}
		zc, err := newZipCryptoSource(br, opts.Password, checkByte)
		if err != nil {
			return nil, err
		}
		src = zc
	case AE1Mechanism, AE2Mechanism:
		as, err := newAESSource(br, opts.Password, aesKeyLen, aesSaltLen)
		if err != nil {
			return nil, err
		}
		aesSrc = as
		src = as
	}

	var decomp Decompressor
	switch effMethod {
	case 0:
		decomp = NewStoreDecompressor(src, headerUSize)
	case 8:
		decomp = NewDeflateDecompressor(src)
	case 9:
		decomp = NewDeflate64Decompressor(src)
	case 12:
		d, err := NewBzip2Decompressor(src)
		if err != nil {
			return nil, err
		}
		decomp = d
	}

	m := &Member{
		Name:              name,
		br:                br,
		decomp:            decomp,
		aesTail:           aesSrc,
		mechanism:         mechanism,
		startOff:          startOff,
		hasDescriptor:     hasDescriptor,
		allowZip64:        !opts.DisallowZip64,
		zip64ExtraPresent: hasZip64Extra,
		headerCRC:         headerCRC,
		headerCSize:       headerCSize,
		headerUSize:       headerUSize,
	}
	if sizesKnown {
		sz := headerUSize
		m.Size = &sz
	}
	return m, nil
}

// resolveDataDescriptor implements the heuristic recovery of an optional,
// size-ambiguous trailing data descriptor, following the scoring
// procedure Info-ZIP's unzip uses: read the longest plausible window,
// score every plausible (signature?, size-width) layout against what was
// actually observed while streaming, and keep the best-scoring one. On
// success it pushes back whatever bytes past the chosen layout were
// speculatively read, so the archive driver sees the next section's
// signature untouched.
func resolveDataDescriptor(br *ByteReader, allowZip64, zip64ExtraPresent, isAE2 bool, observedCRC uint32, observedCompressed, observedUncompressed uint64) error {
	maxLen := 16
	if allowZip64 {
		maxLen = 24
	}
	buf, err := br.Get(maxLen + 4)
	if err != nil {
		return err
	}

	suppress32 := allowZip64 && (zip64ExtraPresent || observedCompressed > 0xFFFFFFFF || observedUncompressed > 0xFFFFFFFF)

	type layout struct{ hasSig, is64 bool }
	var candidates []layout
	if allowZip64 {
		candidates = append(candidates, layout{true, true}, layout{false, true})
	}
	if !allowZip64 || !suppress32 {
		candidates = append(candidates, layout{true, false}, layout{false, false})
	}

	type scored struct {
		b            [5]bool
		consumed     int
		crc          uint32
		compressed   uint64
		uncompressed uint64
	}
	var best *scored
	bestScore := -1
	for _, c := range candidates {
		off := 0
		sigOK := true
		if c.hasSig {
			sigOK = binary.LittleEndian.Uint32(buf[off:off+4]) == sigDataDescriptor
			off += 4
		}
		crcVal := binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		var compVal, uncompVal uint64
		if c.is64 {
			compVal = binary.LittleEndian.Uint64(buf[off : off+8])
			off += 8
			uncompVal = binary.LittleEndian.Uint64(buf[off : off+8])
			off += 8
		} else {
			compVal = uint64(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
			uncompVal = uint64(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		}
		nextSig := binary.LittleEndian.Uint32(buf[off : off+4])
		b := [5]bool{
			sigOK,
			isAE2 || crcVal == observedCRC,
			compVal == observedCompressed,
			uncompVal == observedUncompressed,
			nextSig == sigLocalFile || nextSig == sigCentralDir,
		}
		n := 0
		for _, v := range b {
			if v {
				n++
			}
		}
		if n > bestScore {
			bestScore = n
			best = &scored{b: b, consumed: off, crc: crcVal, compressed: compVal, uncompressed: uncompVal}
		}
	}

	if !best.b[0] {
		got := [4]byte(buf[0:4])
		return &UnexpectedSignatureError{Got: got}
	}
	if !best.b[1] {
		return &CRC32IntegrityError{Want: best.crc, Got: observedCRC}
	}
	if !best.b[2] {
		return &CompressedSizeIntegrityError{Want: best.compressed, Got: observedCompressed}
	}
	if !best.b[3] {
		return &UncompressedSizeIntegrityError{Want: best.uncompressed, Got: observedUncompressed}
	}
	if !best.b[4] {
		got := [4]byte(buf[best.consumed : best.consumed+4])
		return &UnexpectedSignatureError{Got: got}
	}

	br.PushBackBytes(buf[best.consumed:])
	return nil
}
