//go:build linux

package ble

import (
	gble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

func newDevice() (gble.Device, error) {
	return linux.NewDevice()
}
