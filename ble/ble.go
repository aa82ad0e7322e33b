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

// Package ble defines the transport abstraction the DFU engine drives:
// a Manager that locates and connects to a peripheral, and a Transport
// that exposes the three GATT operations the protocol needs. Retry and
// timeout policy belongs to the caller, not to this package.
package ble

import (
	"context"
)

// AdvertisementHandler is invoked once per discovered advertisement during
// a scan.
type AdvertisementHandler func(adv Advertisement)

// Advertisement is a single BLE advertisement report.
type Advertisement struct {
	Addr     string
	Name     string
	Services []string
}

// Manager locates and connects to BLE peripherals.
type Manager interface {
	// Connect resolves target to a peripheral and returns a Transport
	// bound to it. If target parses as a MAC address
	// (XX:XX:XX:XX:XX:XX) it is looked up by address; otherwise it is
	// looked up by advertised local name. Address lookup returns
	// ErrAddressLookupUnsupported on platforms whose BLE stack does not
	// expose peripheral addresses.
	Connect(ctx context.Context, target string) (Transport, error)

	// Scan reports every discovered advertisement to handler until ctx
	// is done.
	Scan(ctx context.Context, handler AdvertisementHandler) error
}

// Transport is a connected peripheral's control surface. All UUIDs are
// GATT characteristic UUIDs (with or without dashes).
type Transport interface {
	// Subscribe enables notifications (or, if the characteristic only
	// supports indications, indications) on uuid. Received values are
	// delivered to Request callers waiting on the same uuid.
	Subscribe(ctx context.Context, uuid string) error

	// Write performs a write-without-response, segmenting data into
	// frames no larger than the transport's MTU and sending them in
	// order.
	Write(ctx context.Context, uuid string, data []byte) error

	// Request performs a write-with-response and then waits for the
	// next notification whose source characteristic is uuid,
	// returning its payload. Notifications from other characteristics
	// are discarded. Request returns ctx.Err() if ctx is done before a
	// notification arrives.
	Request(ctx context.Context, uuid string, data []byte) ([]byte, error)

	// Addr returns the connected peripheral's address, when the
	// platform exposes one.
	Addr() string

	// Disconnect tears down the connection.
	Disconnect() error
}
