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
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/nrfdfu/nrfdfu/ble"
	"github.com/nrfdfu/nrfdfu/dfu"
	"github.com/nrfdfu/nrfdfu/internal/devicecache"
)

type triggerCommand struct {
	timeout time.Duration
}

func newTriggerCommand() *cobra.Command {
	c := &triggerCommand{}

	cmd := &cobra.Command{
		Use:   "trigger <target>",
		Short: "Reboot a device into DFU mode",
		Long: `This command reboots an nRF51 or nRF52 device running application
firmware into DFU mode via the Buttonless DFU service. The app/bl/sd/sdbl
commands do not do this themselves; they connect to the target as given and
start the transfer.`,
		Example: `nrfdfu trigger MyDevice
nrfdfu trigger AA:BB:CC:DD:EE:FF --timeout=20s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(args[0])
		},
	}

	cmd.Flags().DurationVarP(&c.timeout, "timeout", "t", 30*time.Second, "Timeout for connecting to the device")

	return cmd
}

func (c *triggerCommand) run(target string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	manager := ble.NewManager()

	jww.INFO.Printf("Connecting to '%s'\n", target)
	transport, err := manager.Connect(ctx, target)
	if err != nil {
		return errors.Wrap(err, "failed to connect to device")
	}
	defer transport.Disconnect()

	renamedTo, err := dfu.Trigger(ctx, transport)
	if err != nil {
		return errors.Wrap(err, "failed to reboot device into DFU mode")
	}

	if renamedTo != "" {
		jww.INFO.Printf("Device rebooted into DFU mode, now advertising as '%s'\n", renamedTo)
		if err := devicecache.Save(renamedTo); err != nil {
			jww.WARN.Printf("failed to cache device target: %v\n", err)
		}
		return nil
	}

	jww.INFO.Println("Device rebooted into DFU mode.")
	if err := devicecache.Save(target); err != nil {
		jww.WARN.Printf("failed to cache device target: %v\n", err)
	}
	return nil
}
