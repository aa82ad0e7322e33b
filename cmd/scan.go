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

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrfdfu/nrfdfu/ble"
	"github.com/nrfdfu/nrfdfu/dfu"
)

type scanCommand struct {
	duration time.Duration
}

func newScanCommand() *cobra.Command {
	c := &scanCommand{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE devices",
		Example: `nrfdfu scan
nrfdfu scan --duration=10s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runScan()
		},
	}

	cmd.Flags().DurationVarP(&c.duration, "duration", "d", 10*time.Second, "Duration of the BLE scan")

	return cmd
}

func (c *scanCommand) runScan() error {
	fmt.Println("Scanning for BLE devices...")

	manager := ble.NewManager()

	ctx, cancel := context.WithTimeout(context.Background(), c.duration)
	defer cancel()

	return manager.Scan(ctx, func(adv ble.Advertisement) {
		info := ""
		for _, s := range adv.Services {
			if strings.EqualFold(s, dfu.ServiceUUIDShort) {
				info = "[DFU Supported]"
			}
		}
		fmt.Printf("%s : %s %s\n", adv.Addr, adv.Name, info)
	})
}
