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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
)

// upgradeVerbs lists the app/bl/sd/sdbl subcommands, each a thin
// parameterization of newUpgradeCommand. Driving registration from this
// table instead of a hand-written AddCommand per verb keeps the command
// registrations in one place; adding a component means adding one line
// here and a matching entry in firmware's componentFlags map.
var upgradeVerbs = []struct {
	verb  string
	short string
}{
	{"app", "Upgrade the application firmware"},
	{"bl", "Upgrade the bootloader"},
	{"sd", "Upgrade the SoftDevice"},
	{"sdbl", "Upgrade the SoftDevice and bootloader together"},
}

// Cli owns the root cobra command and the persistent flags that control
// its logging verbosity.
type Cli struct {
	root *cobra.Command

	quiet bool
	debug bool
}

func NewCli() *Cli {
	c := &Cli{}

	c.root = &cobra.Command{
		Use:     "nrfdfu",
		Short:   "A DFU tool for nRF modules",
		Long:    `nrfdfu is a tool to upload firmware to an nRF51 or nRF52 device.`,
		Version: "0.1",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.initLogging()
		},
	}

	c.root.SilenceUsage = true
	c.root.SilenceErrors = true

	c.root.PersistentFlags().BoolVarP(&c.quiet, "quiet", "q", false, "suppress all output")
	c.root.PersistentFlags().BoolVarP(&c.debug, "debug", "D", false, "produce debug output")

	c.root.AddCommand(newScanCommand())
	c.root.AddCommand(newTriggerCommand())
	for _, u := range upgradeVerbs {
		c.root.AddCommand(newUpgradeCommand(u.verb, u.short))
	}

	return c
}

func (c *Cli) initLogging() {
	switch {
	case c.debug:
		jww.SetStdoutThreshold(jww.LevelDebug)
	case c.quiet:
		jww.SetStdoutThreshold(jww.LevelFatal)
	default:
		jww.SetStdoutThreshold(jww.LevelInfo)
	}
}

func (c *Cli) Execute() {
	if err := c.root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
