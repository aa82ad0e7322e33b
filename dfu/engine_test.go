package dfu

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHappyPathSingleChunk(t *testing.T) {
	dev := newFakeDevice(4096)
	tr := &fakeTransport{dev: dev}
	e := NewEngine(tr)

	init := []byte("init-packet-bytes")
	firmware := []byte("a small firmware image that fits in one chunk")

	var lastValue, lastMax int64
	e.SetProgress(func(value, maxValue int64, info string) {
		lastValue, lastMax = value, maxValue
	})

	err := e.Run(context.Background(), init, firmware)
	require.NoError(t, err)

	assert.Equal(t, init, dev.cmdCommitted)
	assert.Equal(t, firmware, dev.dataCommitted)
	assert.EqualValues(t, len(firmware), dev.dataOffset)
	assert.Equal(t, int64(len(init)+len(firmware)), lastValue)
	assert.Equal(t, lastValue, lastMax)
}

func TestRunSplitsFirmwareAcrossChunks(t *testing.T) {
	dev := newFakeDevice(8)
	tr := &fakeTransport{dev: dev}
	e := NewEngine(tr)

	init := []byte("init")
	firmware := make([]byte, 20)
	for i := range firmware {
		firmware[i] = byte(i)
	}

	err := e.Run(context.Background(), init, firmware)
	require.NoError(t, err)
	assert.Equal(t, firmware, dev.dataCommitted)
}

func TestRunRecoversFromCrcMismatch(t *testing.T) {
	dev := newFakeDevice(4096)
	dev.corruptNextCrc = true
	tr := &fakeTransport{dev: dev}
	e := NewEngine(tr)

	init := []byte("init")
	firmware := []byte("firmware-bytes")

	start := time.Now()
	err := e.Run(context.Background(), init, firmware)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, firmware, dev.dataCommitted)
	assert.GreaterOrEqual(t, elapsed, crcRetryBackoff)
}

func TestRunRecoversFromControlTimeout(t *testing.T) {
	dev := newFakeDevice(4096)
	dev.timeoutCountdown[OpCrcGet] = 1
	tr := &fakeTransport{dev: dev}
	e := NewEngine(tr)

	err := e.Run(context.Background(), []byte("init"), []byte("firmware"))
	require.NoError(t, err)
}

func TestRunExhaustsRetriesOnRepeatedTimeout(t *testing.T) {
	dev := newFakeDevice(4096)
	dev.timeoutCountdown[OpCrcGet] = controlRetries
	tr := &fakeTransport{dev: dev}
	e := NewEngine(tr)

	err := e.Run(context.Background(), []byte("init"), []byte("firmware"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestRunRejectsResume(t *testing.T) {
	dev := newFakeDevice(4096)
	dev.dataOffset = 10
	dev.dataCrc = 0x1234

	tr := &fakeTransport{dev: dev}
	e := NewEngine(tr)

	err := e.Run(context.Background(), []byte("init"), []byte("firmware"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResumeUnsupported)
}

func TestTriggerBonded(t *testing.T) {
	dev := newFakeDevice(4096)
	dev.bondedButtonless = true
	tr := &fakeTransport{dev: dev}

	renamedTo, err := Trigger(context.Background(), tr)
	require.NoError(t, err)
	assert.Empty(t, renamedTo)
	assert.Empty(t, dev.renamedTo)
}

func TestTriggerUnbondedRenames(t *testing.T) {
	dev := newFakeDevice(4096)
	dev.unbondedButtonless = true
	tr := &fakeTransport{dev: dev}

	renamedTo, err := Trigger(context.Background(), tr)
	require.NoError(t, err)
	require.NotEmpty(t, renamedTo)
	assert.Equal(t, renamedTo, dev.renamedTo)
}

func TestTriggerNoButtonlessCharacteristic(t *testing.T) {
	dev := newFakeDevice(4096)
	tr := &fakeTransport{dev: dev}

	_, err := Trigger(context.Background(), tr)
	require.Error(t, err)
}
