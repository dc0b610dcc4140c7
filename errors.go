package sevenzip

import "fmt"

// InvalidArchiveError reports that the byte stream does not contain a
// recognisable 7z archive: no signature was found, or the structural
// grammar of the header could not be parsed at all.
type InvalidArchiveError struct {
	Reason string
}

func (e *InvalidArchiveError) Error() string {
	return fmt.Sprintf("sevenzip: invalid archive: %s", e.Reason)
}

// CorruptDataError reports that a CRC-32 checksum, recorded somewhere in
// the archive, did not match the bytes it covers.
type CorruptDataError struct {
	Context string
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("sevenzip: corrupt data: %s", e.Context)
}

// UnsupportedMethodError reports a coder method ID that has no registered
// decompressor, either because it isn't part of this implementation's
// scope (PPMd, Lizard, LZ5) or because it is simply unrecognised.
type UnsupportedMethodError struct {
	Method []byte
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("sevenzip: unsupported method %x", e.Method)
}

// PasswordRequiredError reports that the archive (or one of its streams)
// is encrypted and no password was supplied.
type PasswordRequiredError struct{}

func (e *PasswordRequiredError) Error() string {
	return "sevenzip: password required"
}

// BadPasswordOrCorruptError reports that a password was supplied and a
// file in an AES-encrypted folder was decoded in full, but its content's
// CRC-32 didn't match the stored value. The distinction from
// CorruptDataError matters because a caller can usefully retry this one
// with a different password.
type BadPasswordOrCorruptError struct {
	Context string
}

func (e *BadPasswordOrCorruptError) Error() string {
	return fmt.Sprintf("sevenzip: bad password or corrupt data: %s", e.Context)
}

// PathUnsafeError reports that an entry's name failed the safety kernel's
// normalisation rules: absolute paths, volume-relative paths, ../
// traversal, or an excessively deep symlink chain.
type PathUnsafeError struct {
	Name   string
	Reason string
}

func (e *PathUnsafeError) Error() string {
	return fmt.Sprintf("sevenzip: unsafe path %q: %s", e.Name, e.Reason)
}

// ResourceLimitExceededError reports that decoding would exceed one of
// the configured [ResourceLimits], guarding against zip-bomb style
// archives and pathological header structures.
type ResourceLimitExceededError struct {
	Reason string
}

func (e *ResourceLimitExceededError) Error() string {
	return fmt.Sprintf("sevenzip: resource limit exceeded: %s", e.Reason)
}

// VolumeMissingError reports that a multi-volume archive is missing one
// of its numbered parts.
type VolumeMissingError struct {
	Index int
}

func (e *VolumeMissingError) Error() string {
	return fmt.Sprintf("sevenzip: volume %d is missing", e.Index)
}

// CancelledError reports that the operation was aborted via its
// context.Context before it could complete.
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("sevenzip: cancelled: %v", e.Err)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// IoFailedError wraps an underlying I/O error from the byte source with
// context about which operation triggered it.
type IoFailedError struct {
	Op  string
	Err error
}

func (e *IoFailedError) Error() string {
	return fmt.Sprintf("sevenzip: %s: %v", e.Op, e.Err)
}

func (e *IoFailedError) Unwrap() error {
	return e.Err
}
