package streamunzip

import (
	"bytes"
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec
	"hash/crc32"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

// encryptZipCrypto mirrors zipCryptoKeys.decryptByte in the forward
// direction, for building test ciphertext without depending on any
// external ZipCrypto implementation.
func encryptZipCrypto(password, plaintext []byte) []byte {
	keys := newZipCryptoKeys(password)
	out := make([]byte, len(plaintext))
	for i, p := range plaintext {
		temp := keys.k2 | 2
		streamByte := byte((temp * (temp ^ 1)) >> 8)
		out[i] = p ^ streamByte
		keys.update(p)
	}
	return out
}

func TestZipCryptoRoundTrip(t *testing.T) {
	password := []byte("password")
	data := []byte("Some encrypted content to be compressed. Yes, compressed.")
	crc := crc32.ChecksumIEEE(data)
	checkByte := byte(crc >> 24)

	header := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, checkByte}
	plaintext := append(append([]byte{}, header...), data...)
	ciphertext := encryptZipCrypto(password, plaintext)

	br := NewByteReader(chunksOf(ciphertext, 5), 0)
	src, err := newZipCryptoSource(br, password, checkByte)
	require.NoError(t, err)

	got := make([]byte, len(data))
	_, err = io.ReadFull(src, got)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestZipCryptoIncorrectPassword(t *testing.T) {
	data := []byte("anything")
	crc := crc32.ChecksumIEEE(data)
	checkByte := byte(crc >> 24)
	header := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, checkByte}
	plaintext := append(append([]byte{}, header...), data...)
	ciphertext := encryptZipCrypto([]byte("password"), plaintext)

	br := NewByteReader(chunksOf(ciphertext, 4), 0)
	_, err := newZipCryptoSource(br, []byte("not-password"), checkByte)
	require.Error(t, err)
	var perr *IncorrectZipCryptoPasswordError
	require.ErrorAs(t, err, &perr)
}

// aesEncrypt returns the parts of an AE-x member body (password verifier,
// ciphertext, MAC trailer; the caller adds the salt and joins them) for a
// given salt, independent of aesSource
// so the test doesn't merely check a function against itself.
func aesEncrypt(t *testing.T, password, salt []byte, keyLen int, plaintext []byte) (verifier, ciphertext, tag []byte) {
	t.Helper()
	derived := pbkdf2.Key(password, salt, 1000, 2*keyLen+2, sha1.New)
	verifier = derived[2*keyLen:]
	block, err := aes.NewCipher(derived[:keyLen])
	require.NoError(t, err)
	ctr := newAESCTR(block)
	ciphertext = make([]byte, len(plaintext))
	for i, p := range plaintext {
		ciphertext[i] = ctr.xor(p)
	}
	mac := hmac.New(sha1.New, derived[keyLen:2*keyLen])
	mac.Write(ciphertext)
	tag = mac.Sum(nil)[:10]
	return verifier, ciphertext, tag
}

func TestAESRoundTrip(t *testing.T) {
	password := []byte("password")
	salt := bytes.Repeat([]byte{0x11}, 16)
	plaintext := bytes.Repeat([]byte("Some content to be compressed and AES-encrypted\n"), 1000)
	verifier, ciphertext, tag := aesEncrypt(t, password, salt, 32, plaintext)

	var blob []byte
	blob = append(blob, salt...)
	blob = append(blob, verifier...)
	blob = append(blob, ciphertext...)
	blob = append(blob, tag...)

	br := NewByteReader(chunksOf(blob, 173), 0)
	src, err := newAESSource(br, password, 32, 16)
	require.NoError(t, err)

	got := make([]byte, len(plaintext))
	_, err = io.ReadFull(src, got)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
	require.NoError(t, src.verifyTail(0))
}

func TestAESIncorrectPassword(t *testing.T) {
	salt := bytes.Repeat([]byte{0x22}, 16)
	plaintext := []byte("short message")
	verifier, ciphertext, tag := aesEncrypt(t, []byte("password"), salt, 32, plaintext)

	var blob []byte
	blob = append(blob, salt...)
	blob = append(blob, verifier...)
	blob = append(blob, ciphertext...)
	blob = append(blob, tag...)

	br := NewByteReader(chunksOf(blob, 16), 0)
	_, err := newAESSource(br, []byte("not-password"), 32, 16)
	require.Error(t, err)
	var perr *IncorrectAESPasswordError
	require.ErrorAs(t, err, &perr)
}

func TestAESTamperedMACFails(t *testing.T) {
	password := []byte("password")
	salt := bytes.Repeat([]byte{0x33}, 8)
	plaintext := []byte("a short aes-128 message for tamper testing")
	verifier, ciphertext, tag := aesEncrypt(t, password, salt, 16, plaintext)
	tag[0] ^= 0xFF

	var blob []byte
	blob = append(blob, salt...)
	blob = append(blob, verifier...)
	blob = append(blob, ciphertext...)
	blob = append(blob, tag...)

	br := NewByteReader(chunksOf(blob, 16), 0)
	src, err := newAESSource(br, password, 16, 8)
	require.NoError(t, err)

	got := make([]byte, len(plaintext))
	_, err = io.ReadFull(src, got)
	require.NoError(t, err)

	err = src.verifyTail(0)
	require.Error(t, err)
	var herr *HMACIntegrityError
	require.ErrorAs(t, err, &herr)
}
