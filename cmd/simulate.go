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
	"go.uber.org/zap"

	"github.com/Thermoquad/anemostat/pkg/windbus"
)

var (
	simulateAddress    uint8
	simulateSpeed      uint16
	simulateDirection  uint16
	simulatePowerCycle time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Act as a wind sensor on the bus",
	Long: `Answer queries on the connection as a single wind sensor would.

The simulated sensor reports --speed (tenths of m/s) for the speed register
and --direction (sector code 0-15) for the direction register. Address
changes are acknowledged and, like the real sensor, take effect only after
a power cycle. Use --power-cycle to apply them automatically after a delay.

Examples:
  # Bench test the monitor with two USB adapters on one bus
  anemostat simulate --port /dev/ttyUSB1 --address 1 --speed 123
  anemostat monitor --port /dev/ttyUSB0`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().Uint8VarP(&simulateAddress, "address", "a", 0, "Sensor address (default sensor.speedAddress)")
	simulateCmd.Flags().Uint16Var(&simulateSpeed, "speed", 0, "Wind speed register value")
	simulateCmd.Flags().Uint16Var(&simulateDirection, "direction", 0, "Wind direction register value")
	simulateCmd.Flags().DurationVar(&simulatePowerCycle, "power-cycle", 0, "Apply acknowledged address changes after this delay (0 waits forever)")
}

// ackWatcher calls onAck whenever an address acknowledgment is written
type ackWatcher struct {
	windbus.Port
	onAck func()
}

func (w ackWatcher) Write(p []byte) (int, error) {
	n, err := w.Port.Write(p)
	if err == nil && len(p) == windbus.AddressAckFrameSize && p[1] == windbus.FuncWriteRegisters && w.onAck != nil {
		w.onAck()
	}
	return n, err
}

func runSimulate(cmd *cobra.Command, args []string) error {
	address := simulateAddress
	if address == 0 {
		address = cfg.Sensor.SpeedAddress
	}
	if simulateDirection >= windbus.SectorCount {
		return fmt.Errorf("--direction %d out of range 0-%d", simulateDirection, windbus.SectorCount-1)
	}

	conn, connInfo, err := OpenConnection(cfg.Bus)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sim := windbus.NewSimulator(address)
	sim.SetWindSpeed(simulateSpeed)
	sim.SetWindDirection(simulateDirection)

	fmt.Printf("Anemostat - Sensor Simulator\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Address: 0x%02X  Speed: %s  Direction: %s\n",
		address, windbus.FormatWindSpeed(simulateSpeed), windbus.FormatWindDirection(simulateDirection))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	port := ackWatcher{Port: conn, onAck: func() {
		logger.Info("address change acknowledged, waiting for power cycle")
		if simulatePowerCycle > 0 {
			time.AfterFunc(simulatePowerCycle, func() {
				sim.PowerCycle()
				logger.Info("power cycled", zap.Uint8("address", sim.Address()))
			})
		}
	}}

	if err := sim.Serve(ctx, port); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
