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
	"go.uber.org/zap"

	"github.com/Thermoquad/anemostat/pkg/windbus"
)

var sniffStatsInterval time.Duration

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Decode bus traffic without sending anything",
	Long: `Passively decode every frame seen on the bus.

Queries, responses, address changes and address acknowledgments are shown
with timestamp, address and decoded value once their checksum verifies.
Bytes that do not belong to a valid frame are counted, not shown.

Attach to the bus with a second adapter while another master is polling,
or run against "anemostat simulate" for bench tests.

Supports both serial and WebSocket connections.`,
	RunE: runSniff,
}

func init() {
	rootCmd.AddCommand(sniffCmd)
	sniffCmd.Flags().DurationVar(&sniffStatsInterval, "stats-interval", 10*time.Second, "Frame count summary interval (0 disables)")
}

// frameCounts tallies decoded frames by kind
type frameCounts map[windbus.FrameKind]int

func (c frameCounts) String() string {
	return fmt.Sprintf("queries=%d responses=%d address_changes=%d acks=%d",
		c[windbus.FrameQuery], c[windbus.FrameResponse], c[windbus.FrameAddressChange], c[windbus.FrameAddressAck])
}

// sniff decodes port until ctx ends, writing every frame to out
func sniff(ctx context.Context, port windbus.Port, out io.Writer, summary time.Duration) (frameCounts, int, error) {
	decoder := windbus.NewDecoder()
	counts := frameCounts{}
	buf := make([]byte, 128)
	lastSummary := time.Now()

	if err := port.SetReadTimeout(windbus.DefaultByteWindow); err != nil {
		return counts, 0, err
	}

	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if err != nil {
			return counts, decoder.Skipped(), err
		}

		for i := 0; i < n; i++ {
			if frame := decoder.DecodeByte(buf[i]); frame != nil {
				counts[frame.Kind]++
				fmt.Fprint(out, windbus.FormatFrame(frame))
			}
		}

		if summary > 0 && time.Since(lastSummary) >= summary {
			fmt.Fprintf(out, "\n--- %s skipped=%d ---\n\n", counts, decoder.Skipped())
			lastSummary = time.Now()
		}
	}
	return counts, decoder.Skipped(), nil
}

func runSniff(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(cfg.Bus)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Anemostat - Bus Sniffer\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	counts, skipped, err := sniff(ctx, conn, os.Stdout, sniffStatsInterval)
	if err != nil {
		if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
			logger.Info("connection closed")
			err = nil
		} else {
			logger.Error("read failed", zap.Error(err))
		}
	}

	fmt.Printf("\n--- Sniff summary ---\n")
	fmt.Printf("Frames: %s\n", counts)
	fmt.Printf("Skipped bytes: %d\n", skipped)
	return err
}
