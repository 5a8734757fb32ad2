// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/anemostat/pkg/windbus"
)

var (
	scanFirst    uint8
	scanLast     uint8
	scanDeadline time.Duration
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find sensors by probing a range of addresses",
	Long: `Send a wind speed query to every address in the range and list the
sensors that answer.

Each address gets a shortened transaction deadline so a full scan of the
address space finishes in about a minute.

Examples:
  # Scan the default range 1-16
  anemostat scan --port /dev/ttyUSB0

  # Scan every valid address
  anemostat scan --port /dev/ttyUSB0 --first 1 --last 247

Exit codes:
  0 - At least one sensor answered
  1 - No sensor answered
  2 - Connection error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Uint8Var(&scanFirst, "first", 1, "First address to scan")
	scanCmd.Flags().Uint8Var(&scanLast, "last", 16, "Last address to scan")
	scanCmd.Flags().DurationVar(&scanDeadline, "deadline", 300*time.Millisecond, "Transaction deadline per address")
}

type scanResult struct {
	address byte
	reading windbus.Reading
}

// scanBus queries first..last in order, calling found for each responder.
// It stops early on a transport error or when ctx is done.
func scanBus(ctx context.Context, bus *windbus.Bus, first, last byte, found func(scanResult)) ([]scanResult, error) {
	if first == windbus.AddressBroadcast {
		first = 1
	}
	var results []scanResult
	for a := int(first); a <= int(last); a++ {
		r, err := bus.ReadWindSpeed(ctx, byte(a))
		switch {
		case err == nil:
			res := scanResult{address: byte(a), reading: r}
			results = append(results, res)
			if found != nil {
				found(res)
			}
		case errors.Is(err, windbus.ErrTimeout):
		default:
			return results, err
		}
	}
	return results, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanLast < scanFirst {
		return fmt.Errorf("--last (%d) is below --first (%d)", scanLast, scanFirst)
	}

	timing := cfg.Timing.Timing()
	timing.Deadline = scanDeadline
	bus, conn, connInfo, err := newBus(nil, windbus.WithTiming(timing))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Anemostat - Scan\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Probing 0x%02X-0x%02X...\n\n", scanFirst, scanLast)

	results, err := scanBus(ctx, bus, scanFirst, scanLast, func(r scanResult) {
		fmt.Printf("  Found sensor at 0x%02X (raw value %d, %d ms)\n",
			r.address, r.reading.Value, r.reading.Elapsed.Milliseconds())
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Printf("READ FAILED: %v\n", err)
		conn.Close()
		os.Exit(2)
	}

	fmt.Printf("\n--- Scan summary ---\n")
	fmt.Printf("Sensors found: %d\n", len(results))

	if len(results) == 0 {
		fmt.Printf("No sensors answered. Check wiring, termination and sensor power.\n")
		conn.Close()
		os.Exit(1)
	}
	return nil
}
