package dfu

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"sync"

	"github.com/nrfdfu/nrfdfu/ble"
)

// fakeDevice is an in-memory Secure DFU bootloader: enough of the real
// object-upload state machine to drive Engine through its full control
// flow without a real BLE stack.
type fakeDevice struct {
	mu sync.Mutex

	maxObjectSize uint32

	// pending holds the bytes written to the Data characteristic since
	// the last ObjectCreate, not yet committed by ObjectExecute.
	pendingType ObjectType
	pendingLen  uint32
	pending     []byte

	cmdCommitted  []byte
	dataCommitted []byte
	dataOffset    uint32
	dataCrc       uint32

	// corruptNextCrc makes the next CrcGet response for the Data object
	// report a checksum that doesn't match, once.
	corruptNextCrc bool

	// timeoutCountdown[opcode] counts down how many more times a
	// request for that opcode should stall until ctx is done, simulating
	// a device that misses a notification.
	timeoutCountdown map[Opcode]int

	bondedButtonless   bool
	unbondedButtonless bool
	renamedTo          string
}

func newFakeDevice(maxObjectSize uint32) *fakeDevice {
	return &fakeDevice{
		maxObjectSize:    maxObjectSize,
		timeoutCountdown: make(map[Opcode]int),
	}
}

// fakeTransport adapts a fakeDevice to ble.Transport.
type fakeTransport struct {
	dev  *fakeDevice
	addr string
}

func (t *fakeTransport) Subscribe(ctx context.Context, uuid string) error {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()

	switch uuid {
	case ButtonlessBondedUUID:
		if !t.dev.bondedButtonless {
			return ble.ErrCharacteristicNotFound
		}
	case ButtonlessUUID:
		if !t.dev.unbondedButtonless {
			return ble.ErrCharacteristicNotFound
		}
	}
	return nil
}

func (t *fakeTransport) Write(ctx context.Context, uuid string, data []byte) error {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()

	if uuid == DataUUID {
		t.dev.pending = append(t.dev.pending, data...)
	}
	return nil
}

func (t *fakeTransport) Addr() string { return t.addr }

func (t *fakeTransport) Disconnect() error { return nil }

func (t *fakeTransport) Request(ctx context.Context, uuid string, data []byte) ([]byte, error) {
	if uuid != ControlPointUUID {
		return t.requestButtonless(ctx, uuid, data)
	}

	opcode := Opcode(data[0])

	t.dev.mu.Lock()
	if n := t.dev.timeoutCountdown[opcode]; n > 0 {
		t.dev.timeoutCountdown[opcode] = n - 1
		t.dev.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	t.dev.mu.Unlock()

	switch opcode {
	case OpReceiptNotifSet:
		return successFrame(opcode), nil
	case OpObjectCreate:
		t.dev.mu.Lock()
		t.dev.pendingType = ObjectType(data[1])
		t.dev.pendingLen = binary.LittleEndian.Uint32(data[2:6])
		t.dev.pending = nil
		t.dev.mu.Unlock()
		return successFrame(opcode), nil
	case OpObjectSelect:
		return t.handleSelect(ObjectType(data[1])), nil
	case OpCrcGet:
		return t.handleCrcGet(), nil
	case OpObjectExecute:
		return t.handleExecute(), nil
	default:
		return []byte{responseOpcode, byte(opcode), byte(ResultOpCodeNotSupported)}, nil
	}
}

func (t *fakeTransport) requestButtonless(ctx context.Context, uuid string, data []byte) ([]byte, error) {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()

	switch data[0] {
	case 0x02: // set advertising name
		nameLen := int(data[1])
		t.dev.renamedTo = string(data[2 : 2+nameLen])
		return []byte{0x20, 0x02, 0x01}, nil
	default: // enter bootloader
		return []byte{triggerSuccess[0], triggerSuccess[1], triggerSuccess[2]}, nil
	}
}

func (t *fakeTransport) handleSelect(objType ObjectType) []byte {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()

	payload := make([]byte, 12)
	switch objType {
	case ObjectCommand:
		binary.LittleEndian.PutUint32(payload[0:4], t.dev.maxObjectSize)
	case ObjectData:
		binary.LittleEndian.PutUint32(payload[0:4], t.dev.maxObjectSize)
		binary.LittleEndian.PutUint32(payload[4:8], t.dev.dataOffset)
		binary.LittleEndian.PutUint32(payload[8:12], t.dev.dataCrc)
	}
	return append(successFrame(OpObjectSelect), payload...)
}

func (t *fakeTransport) handleCrcGet() []byte {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()

	var offset, checksum uint32
	switch t.dev.pendingType {
	case ObjectCommand:
		offset = uint32(len(t.dev.pending))
		checksum = crc32.ChecksumIEEE(t.dev.pending)
	case ObjectData:
		offset = t.dev.dataOffset + uint32(len(t.dev.pending))
		checksum = crc32.Update(t.dev.dataCrc, crc32.IEEETable, t.dev.pending)
	}

	if t.dev.corruptNextCrc && t.dev.pendingType == ObjectData {
		t.dev.corruptNextCrc = false
		checksum ^= 0xffffffff
	}

	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], offset)
	binary.LittleEndian.PutUint32(payload[4:8], checksum)
	return append(successFrame(OpCrcGet), payload...)
}

func (t *fakeTransport) handleExecute() []byte {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()

	switch t.dev.pendingType {
	case ObjectCommand:
		t.dev.cmdCommitted = append([]byte(nil), t.dev.pending...)
	case ObjectData:
		t.dev.dataCommitted = append(t.dev.dataCommitted, t.dev.pending...)
		t.dev.dataOffset += uint32(len(t.dev.pending))
		t.dev.dataCrc = crc32.Update(t.dev.dataCrc, crc32.IEEETable, t.dev.pending)
	}
	t.dev.pending = nil
	return successFrame(OpObjectExecute)
}

func successFrame(opcode Opcode) []byte {
	return []byte{responseOpcode, byte(opcode), byte(ResultSuccess)}
}
