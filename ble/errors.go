package ble

import "errors"

// Sentinel errors returned by Manager and Transport methods, matched with
// errors.Is.
var (
	// ErrAddressLookupUnsupported is returned when target looks like a
	// MAC address but the host BLE stack does not expose peripheral
	// addresses (notably CoreBluetooth on macOS).
	ErrAddressLookupUnsupported = errors.New("ble: address lookup is not supported on this platform")

	// ErrNoAdapter is returned when no local BLE adapter is available.
	ErrNoAdapter = errors.New("ble: no BLE adapter available")

	// ErrScanNoMatch is returned when a scan for a named or addressed
	// peripheral completes without finding a match.
	ErrScanNoMatch = errors.New("ble: scan completed without finding target")

	// ErrCharacteristicNotFound is returned when a connected peripheral's
	// GATT profile does not expose the requested characteristic.
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found on device")
)
