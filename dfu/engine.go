// Copyright (C) 2018 Rob Caelers <rob.caelers@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package dfu

import (
	"context"
	"hash/crc32"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/nrfdfu/nrfdfu/ble"
)

// Progress reports bytes transferred so far against the total size of the
// init packet plus firmware image.
type Progress func(value, maxValue int64, info string)

const (
	controlTimeout  = 500 * time.Millisecond
	controlRetries  = 3
	dataTimeout     = 500 * time.Millisecond
	crcRetryBackoff = 500 * time.Millisecond
)

// Engine drives the Secure DFU object-upload protocol over a connected
// Transport. Retry and timeout policy lives here, not in the transport.
type Engine struct {
	transport ble.Transport
	progress  Progress

	maxProgressValue int64
	progressValue    int64
}

// NewEngine returns an Engine that talks DFU over the given transport.
// The transport must already be connected to the target peripheral's
// bootloader service.
func NewEngine(transport ble.Transport) *Engine {
	return &Engine{transport: transport}
}

// SetProgress installs a callback invoked after every chunk successfully
// commits. It may be nil.
func (e *Engine) SetProgress(p Progress) {
	e.progress = p
}

// Run transfers initPacket as the Command object and firmware as the Data
// object, in that order, per the init-before-data invariant. It does not
// connect or disconnect the transport; the caller owns that lifecycle.
func (e *Engine) Run(ctx context.Context, initPacket, firmware []byte) error {
	if err := e.transport.Subscribe(ctx, ControlPointUUID); err != nil {
		return errors.Wrap(err, "failed to subscribe to control point")
	}

	if err := e.setReceiptNotifications(ctx, 0); err != nil {
		return errors.Wrap(err, "failed to disable receipt notifications")
	}

	e.maxProgressValue = int64(len(initPacket) + len(firmware))
	e.progressValue = 0

	jww.INFO.Println("Transferring init packet.")
	if err := e.sendCommandObject(ctx, initPacket); err != nil {
		return errors.Wrap(err, "failed to transfer init packet")
	}

	jww.INFO.Println("Transferring firmware image.")
	if err := e.sendDataObjects(ctx, firmware); err != nil {
		return errors.Wrap(err, "failed to transfer firmware image")
	}

	jww.INFO.Println("DFU transfer complete.")
	return nil
}

// sendCommandObject runs the Command-phase sequence: create, write, verify,
// execute. The Command phase never selects; the device is expected to
// already be addressing the Command object after a fresh connect.
func (e *Engine) sendCommandObject(ctx context.Context, data []byte) error {
	if err := e.objectCreate(ctx, ObjectCommand, uint32(len(data))); err != nil {
		return errors.Wrap(err, "failed to create command object")
	}

	if err := e.writeData(ctx, data); err != nil {
		return errors.Wrap(err, "failed to write command object")
	}

	checksum := crc32.ChecksumIEEE(data)
	if err := e.verifyCrc(ctx, uint32(len(data)), checksum); err != nil {
		return errors.Wrap(err, "command object failed verification")
	}
	e.updateProgress(int64(len(data)))

	if err := e.objectExecute(ctx); err != nil {
		return errors.Wrap(err, "failed to execute command object")
	}
	return nil
}

// sendDataObjects runs the Data-phase sequence: a single ObjectSelect(Data)
// to learn the device's chunk size, then a create/write/verify/execute
// cycle per chunk. A chunk whose CRC verification fails is retried in
// place, indefinitely, with a fixed backoff; every other failure is
// terminal.
func (e *Engine) sendDataObjects(ctx context.Context, firmware []byte) error {
	sel, err := e.objectSelect(ctx, ObjectData)
	if err != nil {
		return errors.Wrap(err, "failed to select data object")
	}

	if sel.Offset != 0 || sel.Crc32 != 0 {
		return ErrResumeUnsupported
	}

	maxChunk := int(sel.MaxSize)
	if maxChunk <= 0 {
		return errors.New("dfu: device reported a zero-size data object")
	}

	offset := 0
	checksum := uint32(0)

	for offset < len(firmware) {
		end := offset + maxChunk
		if end > len(firmware) {
			end = len(firmware)
		}
		chunk := firmware[offset:end]

		if err := e.objectCreate(ctx, ObjectData, uint32(len(chunk))); err != nil {
			return errors.Wrap(err, "failed to create data object")
		}

		if err := e.writeData(ctx, chunk); err != nil {
			return errors.Wrap(err, "failed to write data object")
		}

		chunkChecksum := crc32.Update(checksum, crc32.IEEETable, chunk)
		chunkOffset := uint32(offset + len(chunk))

		if err := e.verifyCrc(ctx, chunkOffset, chunkChecksum); err != nil {
			jww.WARN.Printf("chunk at offset %d failed verification, retrying: %v\n", offset, err)
			select {
			case <-time.After(crcRetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		checksum = chunkChecksum
		offset += len(chunk)
		e.updateProgress(int64(len(chunk)))

		if err := e.objectExecute(ctx); err != nil {
			return errors.Wrap(err, "failed to execute data object")
		}
	}
	return nil
}

func (e *Engine) verifyCrc(ctx context.Context, expectedOffset, expectedCrc uint32) error {
	resp, err := e.crcGet(ctx)
	if err != nil {
		return err
	}
	if resp.Offset != expectedOffset {
		return &OffsetMismatchError{Expected: expectedOffset, Actual: resp.Offset}
	}
	if resp.Crc32 != expectedCrc {
		return &CrcMismatchError{Expected: expectedCrc, Actual: resp.Crc32}
	}
	return nil
}

func (e *Engine) updateProgress(n int64) {
	e.progressValue += n
	if e.progress != nil {
		e.progress(e.progressValue, e.maxProgressValue, "")
	}
}

// sendControl issues a control-point request and decodes its response,
// making up to controlRetries attempts in total and moving on to the next
// attempt only when one times out. Any other
// error, including context cancellation by the caller, is terminal.
func (e *Engine) sendControl(ctx context.Context, opcode Opcode, frame []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < controlRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, controlTimeout)
		reply, err := e.transport.Request(reqCtx, ControlPointUUID, frame)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				lastErr = err
				jww.WARN.Printf("%s timed out (attempt %d/%d)\n", opcode, attempt+1, controlRetries)
				continue
			}
			return nil, err
		}

		return decodeResponse(opcode, reply)
	}

	return nil, errors.Wrapf(ErrNoResponse, "%s: %v", opcode, lastErr)
}

// writeData writes to the data characteristic with a single-shot timeout
// and no retry: a dropped write is cheaper to recover from at the next CRC
// check than to retry blindly.
func (e *Engine) writeData(ctx context.Context, data []byte) error {
	wctx, cancel := context.WithTimeout(ctx, dataTimeout)
	defer cancel()
	return e.transport.Write(wctx, DataUUID, data)
}

func (e *Engine) setReceiptNotifications(ctx context.Context, n uint32) error {
	_, err := e.sendControl(ctx, OpReceiptNotifSet, encodeReceiptNotifSet(n))
	return err
}

func (e *Engine) objectCreate(ctx context.Context, t ObjectType, length uint32) error {
	_, err := e.sendControl(ctx, OpObjectCreate, encodeObjectCreate(t, length))
	return err
}

func (e *Engine) objectSelect(ctx context.Context, t ObjectType) (SelectResponse, error) {
	payload, err := e.sendControl(ctx, OpObjectSelect, encodeObjectSelect(t))
	if err != nil {
		return SelectResponse{}, err
	}
	return decodeSelectResponse(payload)
}

func (e *Engine) objectExecute(ctx context.Context) error {
	_, err := e.sendControl(ctx, OpObjectExecute, encodeObjectExecute())
	return err
}

func (e *Engine) crcGet(ctx context.Context) (ChecksumResponse, error) {
	payload, err := e.sendControl(ctx, OpCrcGet, encodeCrcGet())
	if err != nil {
		return ChecksumResponse{}, err
	}
	return decodeChecksumResponse(payload)
}

// Trigger asks a device running the main application firmware (rather than
// the bootloader) to reboot into DFU mode via the buttonless service. Some
// devices expose a bonded buttonless characteristic that reboots straight
// into DFU without changing the advertised name; others expose only the
// unbonded variant, which requires the caller to reconnect under a new,
// randomly generated advertising name after the reboot.
func Trigger(ctx context.Context, transport ble.Transport) (renamedTo string, err error) {
	uuid := ButtonlessBondedUUID
	if subErr := transport.Subscribe(ctx, uuid); subErr != nil {
		if !errors.Is(subErr, ble.ErrCharacteristicNotFound) {
			return "", errors.Wrap(subErr, "failed to subscribe to buttonless characteristic")
		}

		uuid = ButtonlessUUID
		if subErr := transport.Subscribe(ctx, uuid); subErr != nil {
			return "", errors.Wrap(subErr, "failed to subscribe to buttonless characteristic")
		}

		renamedTo = generateDeviceName()
		jww.INFO.Printf("Changing bootloader advertising name to %q.\n", renamedTo)
		if err := sendBootloaderAdvName(ctx, transport, uuid, renamedTo); err != nil {
			return "", errors.Wrap(err, "failed to set bootloader advertising name")
		}
	} else {
		jww.INFO.Println("Using bonded buttonless bootloader.")
	}

	reqCtx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()

	reply, err := transport.Request(reqCtx, uuid, triggerRequest)
	if err != nil {
		return "", errors.Wrap(err, "buttonless trigger request failed")
	}

	if len(reply) != 3 || reply[0] != triggerSuccess[0] || reply[1] != triggerSuccess[1] || reply[2] != triggerSuccess[2] {
		return "", errors.Wrapf(ErrTriggerFailed, "got % x", reply)
	}
	return renamedTo, nil
}

// sendBootloaderAdvName issues the buttonless "set advertising name"
// sub-command (0x02, length-prefixed name) ahead of the trigger itself.
func sendBootloaderAdvName(ctx context.Context, transport ble.Transport, uuid, name string) error {
	frame := make([]byte, 0, 2+len(name))
	frame = append(frame, 0x02, byte(len(name)))
	frame = append(frame, []byte(name)...)

	reqCtx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()

	reply, err := transport.Request(reqCtx, uuid, frame)
	if err != nil {
		return err
	}
	if len(reply) != 3 || reply[0] != triggerSuccess[0] || reply[2] != triggerSuccess[2] {
		return errors.Wrapf(ErrTriggerFailed, "advertising-name change rejected: % x", reply)
	}
	return nil
}

const deviceNameLetters = "abcdefghijklmnopqrstuvwxyz"

var deviceNameRand = rand.New(rand.NewSource(time.Now().UTC().UnixNano()))

// generateDeviceName produces a short random advertising name, so the
// caller can scan for the device again after an unbonded buttonless
// reboot.
func generateDeviceName() string {
	b := make([]byte, 10)
	for i := range b {
		b[i] = deviceNameLetters[deviceNameRand.Intn(len(deviceNameLetters))]
	}
	return "Dfu" + string(b)
}
