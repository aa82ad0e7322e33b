package dfu

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is/errors.As.
var (
	// ErrNoResponse is returned when a control request exhausted all
	// retry attempts without receiving a notification.
	ErrNoResponse = errors.New("dfu: no response from device")

	// ErrFraming is returned when a control response fails the
	// response-header shape check (too short, wrong response byte,
	// wrong echoed opcode).
	ErrFraming = errors.New("dfu: malformed response framing")

	// ErrResumeUnsupported is returned when ObjectSelect(Data) reports
	// nonzero offset/crc at the start of the Data phase: the engine
	// refuses to resume a partially-uploaded image.
	ErrResumeUnsupported = errors.New("dfu: device reports a partial upload; resume is not supported")

	// ErrTriggerFailed is returned when the buttonless trigger response
	// is not exactly [0x20, 0x01, 0x01].
	ErrTriggerFailed = errors.New("dfu: buttonless trigger was rejected by the device")
)

// ResultCode is a DFU response result byte (§3).
type ResultCode byte

const (
	ResultInvalid                ResultCode = 0x00
	ResultSuccess                ResultCode = 0x01
	ResultOpCodeNotSupported     ResultCode = 0x02
	ResultInvalidParameter       ResultCode = 0x03
	ResultInsufficientResources  ResultCode = 0x04
	ResultInvalidObject          ResultCode = 0x05
	ResultUnsupportedType        ResultCode = 0x07
	ResultOperationNotPermitted  ResultCode = 0x08
	ResultOperationFailed        ResultCode = 0x0A
	ResultExtError               ResultCode = 0x0B
)

func (r ResultCode) String() string {
	switch r {
	case ResultInvalid:
		return "invalid"
	case ResultSuccess:
		return "success"
	case ResultOpCodeNotSupported:
		return "opcode not supported"
	case ResultInvalidParameter:
		return "invalid parameter"
	case ResultInsufficientResources:
		return "insufficient resources"
	case ResultInvalidObject:
		return "invalid object"
	case ResultUnsupportedType:
		return "unsupported type"
	case ResultOperationNotPermitted:
		return "operation not permitted"
	case ResultOperationFailed:
		return "operation failed"
	case ResultExtError:
		return "extended error"
	default:
		return fmt.Sprintf("unknown result code 0x%02x", byte(r))
	}
}

// ExtendedError is the secondary byte that elaborates a ResultExtError
// response (§3, glossary "Extended error").
type ExtendedError byte

func (e ExtendedError) String() string {
	if name, ok := extendedErrorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("unknown extended error 0x%02x", byte(e))
}

var extendedErrorNames = map[ExtendedError]string{
	0x00: "no error",
	0x01: "invalid error code",
	0x02: "wrong command format",
	0x03: "unknown command",
	0x04: "init command invalid",
	0x05: "firmware version too low",
	0x06: "hardware version mismatch",
	0x07: "softdevice version mismatch",
	0x08: "signature missing",
	0x09: "wrong hash type",
	0x0A: "hash failed",
	0x0B: "wrong signature type",
	0x0C: "verification failed",
	0x0D: "insufficient space",
}

// DeviceError reports that the device responded with a non-Success
// result code for a control request.
type DeviceError struct {
	Opcode Opcode
	Code   ResultCode
	Ext    ExtendedError
}

func (e *DeviceError) Error() string {
	if e.Code == ResultExtError {
		return fmt.Sprintf("dfu: %s failed: %s (%s)", e.Opcode, e.Code, e.Ext)
	}
	return fmt.Sprintf("dfu: %s failed: %s", e.Opcode, e.Code)
}

// Is allows errors.Is(err, &DeviceError{}) to match any DeviceError, and
// errors.Is(err, &DeviceError{Code: X}) to match a specific result code.
// A zero Code is the match-any form, so ResultInvalid (0x00) cannot be
// matched on its own.
func (e *DeviceError) Is(target error) bool {
	t, ok := target.(*DeviceError)
	if !ok {
		return false
	}
	if t.Code == 0 {
		return true
	}
	return e.Code == t.Code
}

// CrcMismatchError reports that the device's reported running CRC
// disagreed with what the client computed for the bytes committed so
// far.
type CrcMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *CrcMismatchError) Error() string {
	return fmt.Sprintf("dfu: crc mismatch: expected 0x%08x, device reported 0x%08x", e.Expected, e.Actual)
}

func (e *CrcMismatchError) Is(target error) bool {
	_, ok := target.(*CrcMismatchError)
	return ok
}

// OffsetMismatchError reports that the device's reported offset
// disagreed with what the client expected to have committed.
type OffsetMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *OffsetMismatchError) Error() string {
	return fmt.Sprintf("dfu: offset mismatch: expected %d, device reported %d", e.Expected, e.Actual)
}

func (e *OffsetMismatchError) Is(target error) bool {
	_, ok := target.(*OffsetMismatchError)
	return ok
}
