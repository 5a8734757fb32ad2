// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/anemostat/pkg/windbus"
)

var (
	readAddress uint8
	readCount   int
	readSummary bool
)

var readCmd = &cobra.Command{
	Use:   "read speed|direction",
	Short: "Read wind speed or wind direction from one sensor",
	Long: `Query one sensor and print the decoded value.

Each query is resent every resend interval until a reply with a valid
checksum arrives or the transaction deadline passes. The sensor address
defaults to sensor.speedAddress or sensor.directionAddress from the
configuration.

Exit codes:
  0 - Every read succeeded
  1 - At least one read timed out
  2 - Connection error`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"speed", "direction"},
	RunE:      runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().Uint8VarP(&readAddress, "address", "a", 0, "Sensor address (default from configuration)")
	readCmd.Flags().IntVarP(&readCount, "count", "n", 1, "Number of reads")
	readCmd.Flags().BoolVar(&readSummary, "stats", false, "Print transaction statistics when done")
}

func parseQuantity(name string) (windbus.Quantity, error) {
	switch name {
	case "speed", "wind_speed":
		return windbus.WindSpeed, nil
	case "direction", "wind_direction":
		return windbus.WindDirection, nil
	default:
		return 0, fmt.Errorf("unknown quantity %q (use speed or direction)", name)
	}
}

func sensorAddress(q windbus.Quantity, override uint8) byte {
	if override != 0 {
		return override
	}
	if q == windbus.WindDirection {
		return cfg.Sensor.DirectionAddress
	}
	return cfg.Sensor.SpeedAddress
}

func runRead(cmd *cobra.Command, args []string) error {
	q, err := parseQuantity(args[0])
	if err != nil {
		return err
	}
	address := sensorAddress(q, readAddress)

	stats := windbus.NewStatistics()
	bus, conn, connInfo, err := newBus(windbus.Observers{stats})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Anemostat - Read\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Sensor: %s @ 0x%02X\n\n", q, address)

	timeouts := 0
	for i := 0; i < readCount && ctx.Err() == nil; i++ {
		r, err := bus.Read(ctx, q, address)
		switch {
		case err == nil:
			fmt.Println(windbus.FormatReading(r))
		case errors.Is(err, windbus.ErrTimeout):
			timeouts++
			fmt.Printf("%s @0x%02X: no reply (sentinel %d)\n", q, address, q.Sentinel())
		case errors.Is(err, context.Canceled):
		default:
			logger.Error("read failed", zap.Error(err))
			conn.Close()
			os.Exit(2)
		}
	}

	if readSummary {
		fmt.Printf("\n%s", stats)
	}

	if timeouts > 0 {
		conn.Close()
		os.Exit(1)
	}
	return nil
}
