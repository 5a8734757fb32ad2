// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/anemostat/pkg/display"
)

var (
	displayAddress  uint8
	displayDecimals uint8
)

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Configure and test the seven-segment displays",
	Long: `Send commands to a seven-segment display on the I2C bus (display.bus).

The display address defaults to display.speedAddress. Valid addresses are
0x08-0x77.`,
}

var displayClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Blank the display",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDisplay(func(d *display.Display) error {
			return d.Clear()
		})
	},
}

var displayBrightnessCmd = &cobra.Command{
	Use:   "brightness PERCENT",
	Short: "Set the display brightness (0-100)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		percent, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid brightness %q: %w", args[0], err)
		}
		return withDisplay(func(d *display.Display) error {
			return d.SetBrightness(percent)
		})
	},
}

var displaySetAddressCmd = &cobra.Command{
	Use:   "set_address NEW_ADDRESS",
	Short: "Move the display to a new I2C address",
	Long: `Move the display to a new I2C address.

NEW_ADDRESS accepts decimal or 0x-prefixed hex. The display is reset on its
old address, given the new one and reset again on the new address.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := strconv.ParseUint(args[0], 0, 8)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", args[0], err)
		}
		return withDisplay(func(d *display.Display) error {
			old := d.Address()
			if err := d.ChangeAddress(byte(next)); err != nil {
				return err
			}
			fmt.Printf("Display moved from 0x%02X to 0x%02X\n", old, d.Address())
			return nil
		})
	},
}

var displayShowCmd = &cobra.Command{
	Use:   "show TEXT",
	Short: "Show up to four characters",
	Long: `Show up to four characters on the display.

Shorter text is right aligned; longer text keeps its last four characters.
Use --decimals to light decimal points (bit 0 is the leftmost digit, bit 4
the colon, bit 5 the apostrophe).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDisplay(func(d *display.Display) error {
			return d.Transmit(args[0], displayDecimals)
		})
	},
}

func init() {
	rootCmd.AddCommand(displayCmd)
	displayCmd.PersistentFlags().Uint8VarP(&displayAddress, "address", "a", 0, "Display I2C address (default display.speedAddress)")
	displayShowCmd.Flags().Uint8Var(&displayDecimals, "decimals", 0, "Decimal point mask")

	displayCmd.AddCommand(displayClearCmd)
	displayCmd.AddCommand(displayBrightnessCmd)
	displayCmd.AddCommand(displaySetAddressCmd)
	displayCmd.AddCommand(displayShowCmd)
}

// withDisplay opens the configured I2C bus and runs fn on the selected display
func withDisplay(fn func(d *display.Display) error) error {
	address := displayAddress
	if address == 0 {
		address = cfg.Display.SpeedAddress
	}

	bus, err := display.OpenI2C(cfg.Display.Bus)
	if err != nil {
		return err
	}
	defer bus.Close()

	d, err := display.New(bus, address)
	if err != nil {
		return err
	}
	return fn(d)
}
