package dfu

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Characteristic UUIDs (§4.2).
const (
	ServiceUUID          = "0000fe59-0000-1000-8000-00805f9b34fb"
	ControlPointUUID     = "8ec90001-f315-4f60-9fb8-838830daea50"
	DataUUID             = "8ec90002-f315-4f60-9fb8-838830daea50"
	ButtonlessUUID       = "8ec90003-f315-4f60-9fb8-838830daea50"
	ButtonlessBondedUUID = "8ec90004-f315-4f60-9fb8-838830daea50"

	// ServiceUUIDShort is the 16-bit form advertised in scan responses,
	// as reported by go-ble's UUID.String() for short UUIDs.
	ServiceUUIDShort = "fe59"
)

// ObjectType identifies which protocol object a Create/Select/Execute
// request addresses (§3).
type ObjectType byte

const (
	ObjectCommand ObjectType = 0x01
	ObjectData    ObjectType = 0x02
)

func (t ObjectType) String() string {
	switch t {
	case ObjectCommand:
		return "command"
	case ObjectData:
		return "data"
	default:
		return fmt.Sprintf("unknown object type 0x%02x", byte(t))
	}
}

// Opcode is a control request's first byte (§3).
type Opcode byte

const (
	OpProtocolVersion  Opcode = 0x00
	OpObjectCreate     Opcode = 0x01
	OpReceiptNotifSet  Opcode = 0x02
	OpCrcGet           Opcode = 0x03
	OpObjectExecute    Opcode = 0x04
	OpObjectSelect     Opcode = 0x06
	OpMtuGet           Opcode = 0x07
	OpObjectWrite      Opcode = 0x08
	OpPing             Opcode = 0x09
	OpHardwareVersion  Opcode = 0x0A
	OpFirmwareVersion  Opcode = 0x0B
	OpAbort            Opcode = 0x0C
)

func (o Opcode) String() string {
	switch o {
	case OpProtocolVersion:
		return "ProtocolVersion"
	case OpObjectCreate:
		return "ObjectCreate"
	case OpReceiptNotifSet:
		return "ReceiptNotifSet"
	case OpCrcGet:
		return "CrcGet"
	case OpObjectExecute:
		return "ObjectExecute"
	case OpObjectSelect:
		return "ObjectSelect"
	case OpMtuGet:
		return "MtuGet"
	case OpObjectWrite:
		return "ObjectWrite"
	case OpPing:
		return "Ping"
	case OpHardwareVersion:
		return "HardwareVersion"
	case OpFirmwareVersion:
		return "FirmwareVersion"
	case OpAbort:
		return "Abort"
	default:
		return fmt.Sprintf("unknown opcode 0x%02x", byte(o))
	}
}

// responseOpcode is the fixed first byte of every control response (§3).
const responseOpcode = 0x60

// SelectResponse is the ObjectSelect reply payload (§4.2).
type SelectResponse struct {
	MaxSize uint32
	Offset  uint32
	Crc32   uint32
}

// ChecksumResponse is the CrcGet reply payload (§4.2).
type ChecksumResponse struct {
	Offset uint32
	Crc32  uint32
}

func encodeReceiptNotifSet(value uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(OpReceiptNotifSet)
	binary.LittleEndian.PutUint32(buf[1:], value)
	return buf
}

func encodeObjectSelect(t ObjectType) []byte {
	return []byte{byte(OpObjectSelect), byte(t)}
}

func encodeObjectCreate(t ObjectType, length uint32) []byte {
	buf := make([]byte, 6)
	buf[0] = byte(OpObjectCreate)
	buf[1] = byte(t)
	binary.LittleEndian.PutUint32(buf[2:], length)
	return buf
}

func encodeObjectExecute() []byte {
	return []byte{byte(OpObjectExecute)}
}

func encodeCrcGet() []byte {
	return []byte{byte(OpCrcGet)}
}

// decodeResponse validates the 3-byte response header for the given
// request opcode and returns the payload beyond it. See spec §4.2
// "Response validation".
func decodeResponse(opcode Opcode, reply []byte) ([]byte, error) {
	if len(reply) < 3 {
		return nil, errors.Wrapf(ErrFraming, "short reply (%d bytes) to %s", len(reply), opcode)
	}
	if reply[0] != responseOpcode {
		return nil, errors.Wrapf(ErrFraming, "unexpected response byte 0x%02x for %s", reply[0], opcode)
	}
	if Opcode(reply[1]) != opcode {
		return nil, errors.Wrapf(ErrFraming, "reply echoes opcode %s, expected %s", Opcode(reply[1]), opcode)
	}

	code := ResultCode(reply[2])
	if code == ResultSuccess {
		return reply[3:], nil
	}

	devErr := &DeviceError{Opcode: opcode, Code: code}
	if code == ResultExtError {
		if len(reply) < 4 {
			return nil, errors.Wrapf(ErrFraming, "ext-error reply to %s missing sub-code", opcode)
		}
		devErr.Ext = ExtendedError(reply[3])
	}
	return nil, devErr
}

func decodeSelectResponse(payload []byte) (SelectResponse, error) {
	var r SelectResponse
	if len(payload) < 12 {
		return r, errors.Wrapf(ErrFraming, "short ObjectSelect payload (%d bytes)", len(payload))
	}
	r.MaxSize = binary.LittleEndian.Uint32(payload[0:4])
	r.Offset = binary.LittleEndian.Uint32(payload[4:8])
	r.Crc32 = binary.LittleEndian.Uint32(payload[8:12])
	return r, nil
}

func decodeChecksumResponse(payload []byte) (ChecksumResponse, error) {
	var r ChecksumResponse
	if len(payload) < 8 {
		return r, errors.Wrapf(ErrFraming, "short CrcGet payload (%d bytes)", len(payload))
	}
	r.Offset = binary.LittleEndian.Uint32(payload[0:4])
	r.Crc32 = binary.LittleEndian.Uint32(payload[4:8])
	return r, nil
}

// triggerRequest is the single-byte buttonless-trigger request (§4.2).
var triggerRequest = []byte{0x01}

// triggerSuccess is the literal 3-byte response that signals a successful
// buttonless trigger.
var triggerSuccess = [3]byte{0x20, 0x01, 0x01}
