package streamunzip

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // required by the WinZip AE-x format
	"hash"
	"hash/crc32"

	"golang.org/x/crypto/pbkdf2"
)

// zipCryptoKeys implements the PKWARE traditional ("ZipCrypto") stream
// cipher key schedule.
type zipCryptoKeys struct {
	k0, k1, k2 uint32
}

func newZipCryptoKeys(password []byte) *zipCryptoKeys {
	k := &zipCryptoKeys{k0: 0x12345678, k1: 0x23456789, k2: 0x34567890}
	for _, b := range password {
		k.update(b)
	}
	return k
}

// crc32RawUpdate applies one step of the raw CRC-32 table update used by
// ZipCrypto's key schedule, without the pre/post bit inversion the
// checksum functions in hash/crc32 apply.
func crc32RawUpdate(crc uint32, b byte) uint32 {
	return crc32.IEEETable[byte(crc)^b] ^ (crc >> 8)
}

func (k *zipCryptoKeys) update(b byte) {
	k.k0 = crc32RawUpdate(k.k0, b)
	k.k1 = (k.k1 + (k.k0 & 0xFF)) * 134775813
	k.k1++
	k.k2 = crc32RawUpdate(k.k2, byte(k.k1>>24))
}

func (k *zipCryptoKeys) decryptByte(cipherByte byte) byte {
	temp := k.k2 | 2
	streamByte := byte((temp * (temp ^ 1)) >> 8)
	plain := cipherByte ^ streamByte
	k.update(plain)
	return plain
}

// zipCryptoSource decrypts a ciphertext ByteReader into a plaintext
// io.Reader/io.ByteReader suitable for handing to a Decompressor.
type zipCryptoSource struct {
	br   *ByteReader
	keys *zipCryptoKeys
}

func (s *zipCryptoSource) Read(p []byte) (int, error) {
	n, err := s.br.Read(p)
	for i := 0; i < n; i++ {
		p[i] = s.keys.decryptByte(p[i])
	}
	return n, err
}

func (s *zipCryptoSource) ReadByte() (byte, error) {
	b, err := s.br.ReadByte()
	if err != nil {
		return 0, err
	}
	return s.keys.decryptByte(b), nil
}

// newZipCryptoSource verifies the password against the 12-byte encryption
// header and returns a decrypting source over the remaining ciphertext.
// checkByte is (mod_time>>8)&0xFF when the member has a data descriptor,
// else (crc32>>24)&0xFF.
func newZipCryptoSource(br *ByteReader, password []byte, checkByte byte) (*zipCryptoSource, error) {
	keys := newZipCryptoKeys(password)
	header, err := br.Get(12)
	if err != nil {
		return nil, err
	}
	var last byte
	for _, b := range header {
		last = keys.decryptByte(b)
	}
	if last != checkByte {
		return nil, &IncorrectZipCryptoPasswordError{}
	}
	return &zipCryptoSource{br: br, keys: keys}, nil
}

// aesCTR implements the WinZip AE-x counter-mode keystream: a 128-bit
// little-endian counter starting at 1, incrementing once per AES block.
// Go's stdlib cipher.NewCTR assumes a big-endian counter convention and
// cannot be reused here.
type aesCTR struct {
	block     cipher.Block
	counter   [16]byte
	keystream [16]byte
	pos       int
}

func newAESCTR(block cipher.Block) *aesCTR {
	c := &aesCTR{block: block, pos: 16}
	c.counter[0] = 1
	return c
}

func (c *aesCTR) nextKeystreamByte() byte {
	if c.pos == 16 {
		c.block.Encrypt(c.keystream[:], c.counter[:])
		for i := range c.counter {
			c.counter[i]++
			if c.counter[i] != 0 {
				break
			}
		}
		c.pos = 0
	}
	b := c.keystream[c.pos]
	c.pos++
	return b
}

func (c *aesCTR) xor(b byte) byte { return b ^ c.nextKeystreamByte() }

// aesSource decrypts AE-1/AE-2 ciphertext while accumulating an
// HMAC-SHA1 over only the ciphertext bytes the inner Decompressor
// actually consumes. Because a decompressor's Unused count is known only
// once its stream ends, the ciphertext of the most recent pull is held
// back from the MAC until the next pull proves it was consumed; verifyTail
// then trims the decompressor's final Unused count off that held-back
// tail before folding it in. Unused bytes are always a suffix of the
// single most recent pull (see decompress.go), so one deferred chunk of
// lookback is sufficient.
type aesSource struct {
	br      *ByteReader
	ctr     *aesCTR
	mac     hash.Hash
	pending []byte
}

// flushPending folds all but the trailing unused bytes of the deferred
// ciphertext into the MAC.
func (s *aesSource) flushPending(unused int) {
	if len(s.pending) > 0 {
		s.mac.Write(s.pending[:len(s.pending)-unused])
		s.pending = s.pending[:0]
	}
}

func (s *aesSource) Read(p []byte) (int, error) {
	n, err := s.br.Read(p)
	if n > 0 {
		s.flushPending(0)
		s.pending = append(s.pending, p[:n]...)
		for i := 0; i < n; i++ {
			p[i] = s.ctr.xor(p[i])
		}
	}
	return n, err
}

func (s *aesSource) ReadByte() (byte, error) {
	b, err := s.br.ReadByte()
	if err != nil {
		return 0, err
	}
	s.flushPending(0)
	s.pending = append(s.pending, b)
	return s.ctr.xor(b), nil
}

// aesKeyParams maps an AES extra field's key-strength byte to (key
// length, salt length).
func aesKeyParams(strength byte) (keyLen, saltLen int, err error) {
	switch strength {
	case 1:
		return 16, 8, nil
	case 2:
		return 24, 12, nil
	case 3:
		return 32, 16, nil
	default:
		return 0, 0, &InvalidAESKeyLengthError{Strength: strength}
	}
}

// newAESSource reads the salt and password verifier, derives the
// encryption/MAC keys via PBKDF2-HMAC-SHA1 (1000 iterations), and returns
// a decrypting source whose HMAC-SHA1 over the consumed ciphertext is
// checked by its verifyTail method.
func newAESSource(br *ByteReader, password []byte, keyLen, saltLen int) (*aesSource, error) {
	salt, err := br.Get(saltLen)
	if err != nil {
		return nil, err
	}
	derived := pbkdf2.Key(password, salt, 1000, 2*keyLen+2, sha1.New)
	verifier := derived[2*keyLen:]
	gotVerifier, err := br.Get(2)
	if err != nil {
		return nil, err
	}
	if string(gotVerifier) != string(verifier) {
		return nil, &IncorrectAESPasswordError{}
	}
	block, err := aes.NewCipher(derived[:keyLen])
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha1.New, derived[keyLen:2*keyLen])
	return &aesSource{br: br, ctr: newAESCTR(block), mac: mac}, nil
}

// verifyTail reads the trailing 10-byte authentication code and checks it
// against the first 10 bytes of the accumulated HMAC-SHA1 digest. unused
// is the decompressor's final Unused count: that many trailing ciphertext
// bytes were pulled but never part of the compressed stream, and must not
// be MACed. The caller pushes those bytes back onto the ByteReader before
// calling this, so the Get here starts at the authentication code.
func (s *aesSource) verifyTail(unused int) error {
	s.flushPending(unused)
	got, err := s.br.Get(10)
	if err != nil {
		return err
	}
	want := s.mac.Sum(nil)[:10]
	if string(got) != string(want) {
		return &HMACIntegrityError{}
	}
	return nil
}
