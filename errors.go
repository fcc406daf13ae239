package streamunzip

import "fmt"

// UnexpectedSignatureError is returned when a 4-byte section signature does
// not match any signature this module understands at that point in the
// stream.
type UnexpectedSignatureError struct {
	Got [4]byte
}

func (e *UnexpectedSignatureError) Error() string {
	return fmt.Sprintf("streamunzip: unexpected signature % x", e.Got[:])
}

// TruncatedError is returned when the chunk source ends before the bytes
// required by the current parse step or compressed stream have been
// produced. Wanted and Got are zero when the cut happened inside a
// compressed stream, where the missing byte count is unknowable.
type TruncatedError struct {
	Wanted int
	Got    int
}

func (e *TruncatedError) Error() string {
	if e.Wanted == 0 {
		return "streamunzip: truncated archive"
	}
	return fmt.Sprintf("streamunzip: truncated archive, wanted %d bytes, got %d", e.Wanted, e.Got)
}

// UnsupportedFlagsError is returned when a local file header sets one of
// the general-purpose flag bits this module refuses to interpret.
type UnsupportedFlagsError struct {
	Flags uint16
}

func (e *UnsupportedFlagsError) Error() string {
	return fmt.Sprintf("streamunzip: unsupported general purpose flags 0x%04x", e.Flags)
}

// UnsupportedCompressionTypeError is returned when the effective
// compression method is not one of {0, 8, 9, 12}.
type UnsupportedCompressionTypeError struct {
	Method uint16
}

func (e *UnsupportedCompressionTypeError) Error() string {
	return fmt.Sprintf("streamunzip: unsupported compression method %d", e.Method)
}

// UnsupportedZip64Error is returned when a member carries a ZIP64 extra
// field but the caller disallowed ZIP64 support.
type UnsupportedZip64Error struct{}

func (e *UnsupportedZip64Error) Error() string {
	return "streamunzip: zip64 extra present but Options.DisallowZip64 is set"
}

// NotStreamUnzippableError is returned for the stored+data-descriptor+
// zero-size combination, which carries no way to locate the end of the
// member's body without seeking.
type NotStreamUnzippableError struct{}

func (e *NotStreamUnzippableError) Error() string {
	return "streamunzip: stored member with data descriptor and no declared size cannot be streamed"
}

// MissingAESExtraError is returned when a member is flagged as AES
// encrypted (raw method 99) but carries no 0x9901 extra field.
type MissingAESExtraError struct{}

func (e *MissingAESExtraError) Error() string {
	return "streamunzip: AES-encrypted member missing 0x9901 extra field"
}

// TruncatedAESExtraError is returned when the 0x9901 extra field is shorter
// than the 7 bytes required to describe the AES parameters.
type TruncatedAESExtraError struct {
	Len int
}

func (e *TruncatedAESExtraError) Error() string {
	return fmt.Sprintf("streamunzip: AES extra field too short (%d bytes, want >= 7)", e.Len)
}

// TruncatedZip64ExtraError is returned when the 0x0001 extra field is
// shorter than the 16 bytes required to carry both 64-bit sizes.
type TruncatedZip64ExtraError struct {
	Len int
}

func (e *TruncatedZip64ExtraError) Error() string {
	return fmt.Sprintf("streamunzip: zip64 extra field too short (%d bytes, want >= 16)", e.Len)
}

// InvalidAESKeyLengthError is returned when the AES extra field's key
// strength byte is not one of {1, 2, 3}.
type InvalidAESKeyLengthError struct {
	Strength byte
}

func (e *InvalidAESKeyLengthError) Error() string {
	return fmt.Sprintf("streamunzip: invalid AES key strength byte %d", e.Strength)
}

// CRC32IntegrityError is returned when the plaintext's observed CRC-32 does
// not match the declared or descriptor-supplied CRC-32.
type CRC32IntegrityError struct {
	Want, Got uint32
}

func (e *CRC32IntegrityError) Error() string {
	return fmt.Sprintf("streamunzip: crc-32 mismatch: want %08x, got %08x", e.Want, e.Got)
}

// CompressedSizeIntegrityError is returned when the observed compressed
// byte count does not match the declared or descriptor-supplied value.
type CompressedSizeIntegrityError struct {
	Want, Got uint64
}

func (e *CompressedSizeIntegrityError) Error() string {
	return fmt.Sprintf("streamunzip: compressed size mismatch: want %d, got %d", e.Want, e.Got)
}

// UncompressedSizeIntegrityError is returned when the observed plaintext
// byte count does not match the declared or descriptor-supplied value.
type UncompressedSizeIntegrityError struct {
	Want, Got uint64
}

func (e *UncompressedSizeIntegrityError) Error() string {
	return fmt.Sprintf("streamunzip: uncompressed size mismatch: want %d, got %d", e.Want, e.Got)
}

// HMACIntegrityError is returned when an AE-1/AE-2 member's trailing 10
// MAC bytes don't match the computed HMAC-SHA1 digest prefix.
type HMACIntegrityError struct{}

func (e *HMACIntegrityError) Error() string {
	return "streamunzip: AES HMAC-SHA1 integrity check failed"
}

// DeflateError wraps a failure surfaced by the underlying DEFLATE decoder.
type DeflateError struct {
	Err error
}

func (e *DeflateError) Error() string { return fmt.Sprintf("streamunzip: deflate: %s", e.Err) }
func (e *DeflateError) Unwrap() error { return e.Err }

// Bzip2Error wraps a failure surfaced by the underlying BZIP2 decoder.
type Bzip2Error struct {
	Err error
}

func (e *Bzip2Error) Error() string { return fmt.Sprintf("streamunzip: bzip2: %s", e.Err) }
func (e *Bzip2Error) Unwrap() error { return e.Err }

// MissingZipCryptoPasswordError is returned when a ZipCrypto member is
// encountered but no password was supplied.
type MissingZipCryptoPasswordError struct{}

func (e *MissingZipCryptoPasswordError) Error() string {
	return "streamunzip: member is ZipCrypto encrypted but no password was supplied"
}

// MissingAESPasswordError is returned when an AES member is encountered but
// no password was supplied.
type MissingAESPasswordError struct{}

func (e *MissingAESPasswordError) Error() string {
	return "streamunzip: member is AES encrypted but no password was supplied"
}

// IncorrectZipCryptoPasswordError is returned when the ZipCrypto header
// check byte doesn't match.
type IncorrectZipCryptoPasswordError struct{}

func (e *IncorrectZipCryptoPasswordError) Error() string {
	return "streamunzip: incorrect ZipCrypto password"
}

// IncorrectAESPasswordError is returned when the PBKDF2-derived password
// verifier doesn't match the stored one.
type IncorrectAESPasswordError struct{}

func (e *IncorrectAESPasswordError) Error() string {
	return "streamunzip: incorrect AES password"
}

// FileIsNotEncryptedError is returned when NoEncryption is disallowed and a
// password was supplied for a member that isn't encrypted.
type FileIsNotEncryptedError struct{}

func (e *FileIsNotEncryptedError) Error() string {
	return "streamunzip: member is not encrypted but NoEncryption is disallowed"
}

// EncryptionMechanism identifies an encryption scheme for allow-list
// policy purposes.
type EncryptionMechanism int

const (
	NoEncryption EncryptionMechanism = iota
	ZipCryptoMechanism
	AE1Mechanism
	AE2Mechanism
	AES128Mechanism
	AES192Mechanism
	AES256Mechanism
)

func (m EncryptionMechanism) String() string {
	switch m {
	case NoEncryption:
		return "None"
	case ZipCryptoMechanism:
		return "ZipCrypto"
	case AE1Mechanism:
		return "AE-1"
	case AE2Mechanism:
		return "AE-2"
	case AES128Mechanism:
		return "AES-128"
	case AES192Mechanism:
		return "AES-192"
	case AES256Mechanism:
		return "AES-256"
	default:
		return "unknown"
	}
}

// MechanismNotAllowedError is returned when a member's encryption mechanism
// is not present in the caller's allow-set.
type MechanismNotAllowedError struct {
	Mechanism EncryptionMechanism
}

func (e *MechanismNotAllowedError) Error() string {
	return fmt.Sprintf("streamunzip: encryption mechanism %s is not allowed", e.Mechanism)
}

// UnfinishedIterationError is returned when the caller advances to the next
// member without fully draining the current member's plaintext stream.
type UnfinishedIterationError struct{}

func (e *UnfinishedIterationError) Error() string {
	return "streamunzip: advanced to next member without draining current member's contents"
}
