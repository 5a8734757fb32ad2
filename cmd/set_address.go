// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/anemostat/pkg/windbus"
)

var (
	setAddressFrom   uint8
	setAddressTo     uint8
	setAddressPrompt bool
)

var setAddressCmd = &cobra.Command{
	Use:   "set_address",
	Short: "Move a sensor to a new bus address",
	Long: `Send an address change to the sensor at --from and wait for its
acknowledgment.

Use --from 0 (broadcast) when exactly one sensor is connected and its current
address is unknown. The new address only takes effect after the sensor has
been powered off and on again. With --prompt the command keeps reminding
the operator once per second until interrupted with Ctrl+C.

Exit codes:
  0 - Address change acknowledged
  1 - No acknowledgment before the deadline
  2 - Connection error`,
	RunE: runSetAddress,
}

func init() {
	rootCmd.AddCommand(setAddressCmd)
	setAddressCmd.Flags().Uint8Var(&setAddressFrom, "from", 0, "Current sensor address (0 = broadcast)")
	setAddressCmd.Flags().Uint8Var(&setAddressTo, "to", 0, "New sensor address")
	setAddressCmd.Flags().BoolVar(&setAddressPrompt, "prompt", false, "Repeat the power cycle prompt until interrupted")
	_ = setAddressCmd.MarkFlagRequired("to")
}

// powerCyclePrompt tells the operator to power cycle a re-addressed sensor
type powerCyclePrompt struct {
	out io.Writer
}

func (p powerCyclePrompt) PromptPowerCycle(oldAddress, newAddress byte) {
	fmt.Fprintf(p.out, "Sensor 0x%02X acknowledged new address 0x%02X.\n", oldAddress, newAddress)
	fmt.Fprintln(p.out, "Please power on the sensor again.")
}

// repeatPrompt prints the power cycle reminder every interval until ctx is done
func repeatPrompt(ctx context.Context, out io.Writer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintln(out, "Please power on the sensor again.")
		}
	}
}

// validateNewAddress rejects addresses a sensor cannot be moved to. Address
// 0 is the broadcast address and would make the sensor unreachable by read
// queries.
func validateNewAddress(to byte) error {
	if to == windbus.AddressBroadcast {
		return errors.New("--to must not be the broadcast address 0")
	}
	return nil
}

func runSetAddress(cmd *cobra.Command, args []string) error {
	if err := validateNewAddress(setAddressTo); err != nil {
		return err
	}

	bus, conn, connInfo, err := newBus(nil, windbus.WithPowerCyclePrompter(powerCyclePrompt{out: os.Stdout}))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Anemostat - Set Address\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Moving sensor 0x%02X to 0x%02X...\n\n", setAddressFrom, setAddressTo)

	ok, err := bus.ModifyAddress(ctx, setAddressFrom, setAddressTo)
	if !ok {
		if errors.Is(err, windbus.ErrTimeout) {
			fmt.Println("No acknowledgment received.")
			conn.Close()
			os.Exit(1)
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		conn.Close()
		os.Exit(2)
	}

	if setAddressPrompt {
		repeatPrompt(ctx, os.Stdout, time.Second)
	}
	return nil
}
