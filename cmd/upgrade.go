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
	"gopkg.in/cheggaaa/pb.v2"

	"github.com/nrfdfu/nrfdfu/ble"
	"github.com/nrfdfu/nrfdfu/dfu"
	"github.com/nrfdfu/nrfdfu/firmware"
	"github.com/nrfdfu/nrfdfu/internal/devicecache"
)

// upgradeCommand implements the app/bl/sd/sdbl verbs: each one transfers a
// single named component out of a DFU package archive to a target device.
type upgradeCommand struct {
	verb    string
	timeout time.Duration
}

func newUpgradeCommand(verb, short string) *cobra.Command {
	c := &upgradeCommand{verb: verb}

	cmd := &cobra.Command{
		Use:   verb + " <target> <pkg_path>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		Example: "nrfdfu " + verb + ` MyDevice FW.zip
nrfdfu ` + verb + ` AA:BB:CC:DD:EE:FF FW.zip --timeout=20s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(args[0], args[1])
		},
	}

	cmd.Flags().DurationVarP(&c.timeout, "timeout", "t", 30*time.Second, "Timeout for connecting to the device")

	return cmd
}

func (c *upgradeCommand) run(target, pkgPath string) error {
	componentName, ok := firmware.ComponentForFlag(c.verb)
	if !ok {
		return errors.Errorf("unknown component %q", c.verb)
	}

	pkg, err := firmware.Open(pkgPath)
	if err != nil {
		return errors.Wrap(err, "failed to open firmware package")
	}
	defer pkg.Close()

	initPacket, image, err := pkg.Component(componentName)
	if err != nil {
		return errors.Wrapf(err, "failed to read %q component", componentName)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	manager := ble.NewManager()

	jww.INFO.Printf("Connecting to '%s'\n", target)
	transport, err := manager.Connect(connectCtx, target)
	if err != nil {
		return errors.Wrap(err, "failed to connect to device")
	}
	defer transport.Disconnect()

	engine := dfu.NewEngine(transport)

	var bar *pb.ProgressBar
	engine.SetProgress(func(value, maxValue int64, info string) {
		if bar == nil {
			bar = pb.ProgressBarTemplate(`{{ white "DFU:" }} {{bar . | green}} {{speed . "%s byte/s" | white }}`).Start(100)
		}
		if bar.Total() != maxValue {
			bar.SetTotal(maxValue)
		}
		bar.SetCurrent(value)
	})

	if err := engine.Run(context.Background(), initPacket, image); err != nil {
		return errors.Wrap(err, "failed to upgrade device firmware")
	}
	if bar != nil {
		bar.Finish()
	}

	if err := devicecache.Save(target); err != nil {
		jww.WARN.Printf("failed to cache device target: %v\n", err)
	}

	return nil
}
