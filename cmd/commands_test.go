// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/anemostat/pkg/windbus"
	"github.com/Thermoquad/anemostat/pkg/windbus/windbustest"
)

// ============================================================
// read
// ============================================================

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want windbus.Quantity
	}{
		{"speed", windbus.WindSpeed},
		{"wind_speed", windbus.WindSpeed},
		{"direction", windbus.WindDirection},
		{"wind_direction", windbus.WindDirection},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			q, err := parseQuantity(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
		})
	}

	_, err := parseQuantity("gust")
	assert.Error(t, err)
}

// ============================================================
// scan
// ============================================================

func TestScanBus_FindsResponders(t *testing.T) {
	a := windbus.NewSimulator(0x02)
	a.SetWindSpeed(10)
	b := windbus.NewSimulator(0x05)
	b.SetWindSpeed(20)
	bus, port := newSensorBus(a, b)

	var found []byte
	results, err := scanBus(context.Background(), bus, 0x00, 0x06, func(r scanResult) {
		found = append(found, r.address)
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x05}, found)
	require.Len(t, results, 2)
	assert.Equal(t, uint16(10), results[0].reading.Value)
	assert.Equal(t, uint16(20), results[1].reading.Value)

	for _, w := range port.Writes() {
		assert.NotEqual(t, byte(windbus.AddressBroadcast), w[0], "broadcast is never queried")
	}
}

func TestScanBus_NoResponders(t *testing.T) {
	bus, _ := newSensorBus()
	results, err := scanBus(context.Background(), bus, 1, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestScanBus_TransportError(t *testing.T) {
	bus, port := newSensorBus(windbus.NewSimulator(0x01))
	require.NoError(t, port.Close())
	_, err := scanBus(context.Background(), bus, 1, 3, nil)
	assert.ErrorIs(t, err, windbustest.ErrClosed)
}

func TestScanBus_LastAddress(t *testing.T) {
	sim := windbus.NewSimulator(0xFF)
	bus, _ := newSensorBus(sim)
	results, err := scanBus(context.Background(), bus, 0xFE, 0xFF, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, byte(0xFF), results[0].address)
	assert.Equal(t, uint16(0), results[0].reading.Value, "an idle sensor reads 0")
}

// ============================================================
// set_address
// ============================================================

func TestValidateNewAddress(t *testing.T) {
	assert.Error(t, validateNewAddress(windbus.AddressBroadcast))
	assert.NoError(t, validateNewAddress(0x01))
	assert.NoError(t, validateNewAddress(0xFF))
}

func TestPowerCyclePrompt(t *testing.T) {
	var out bytes.Buffer
	powerCyclePrompt{out: &out}.PromptPowerCycle(0x01, 0x09)
	assert.Equal(t, "Sensor 0x01 acknowledged new address 0x09.\nPlease power on the sensor again.\n", out.String())
}

func TestPowerCyclePrompt_CalledOnAcknowledgment(t *testing.T) {
	sim := windbus.NewSimulator(0x01)
	var out bytes.Buffer
	port := windbustest.New(sim)
	bus := windbus.NewBus(port, windbus.WithTiming(testTiming),
		windbus.WithPowerCyclePrompter(powerCyclePrompt{out: &out}))

	ok, err := bus.ModifyAddress(context.Background(), 0x01, 0x07)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "Please power on the sensor again.")
}

func TestRepeatPrompt(t *testing.T) {
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	repeatPrompt(ctx, &out, 10*time.Millisecond)

	n := strings.Count(out.String(), "Please power on the sensor again.\n")
	assert.GreaterOrEqual(t, n, 3)
	assert.LessOrEqual(t, n, 5)
}

// ============================================================
// sniff
// ============================================================

func TestSniff_DecodesTraffic(t *testing.T) {
	port := windbustest.New(nil)
	q := windbus.BuildWindSpeedQuery(0x01)
	r := windbus.BuildResponse(0x01, 123)
	noise := []byte{0xAA, 0x55}

	var stream []byte
	stream = append(stream, noise...)
	stream = append(stream, q[:]...)
	stream = append(stream, r[:]...)
	port.Inject(stream)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	counts, skipped, err := sniff(ctx, port, &out, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, counts[windbus.FrameQuery])
	assert.Equal(t, 1, counts[windbus.FrameResponse])
	assert.Equal(t, len(noise), skipped)
	assert.Contains(t, out.String(), "Value: 123")
	assert.Equal(t, "queries=1 responses=1 address_changes=0 acks=0", counts.String())
}

func TestSniff_TransportError(t *testing.T) {
	port := windbustest.New(nil)
	require.NoError(t, port.Close())

	_, _, err := sniff(context.Background(), port, &bytes.Buffer{}, 0)
	assert.ErrorIs(t, err, windbustest.ErrClosed)
}

// ============================================================
// simulate
// ============================================================

func TestAckWatcher_PowerCyclesAfterAck(t *testing.T) {
	sim := windbus.NewSimulator(0x01)
	acks := 0
	w := ackWatcher{Port: windbustest.New(nil), onAck: func() {
		acks++
		sim.PowerCycle()
	}}

	// Replies written by the simulator pass through the watcher
	change := windbus.BuildAddressChange(0x01, 0x03)
	reply := sim.Respond(change[:])
	require.Len(t, reply, windbus.AddressAckFrameSize)
	_, err := w.Write(reply)
	require.NoError(t, err)

	assert.Equal(t, 1, acks)
	assert.Equal(t, byte(0x03), sim.Address())

	resp := windbus.BuildResponse(0x03, 1)
	_, err = w.Write(resp[:])
	require.NoError(t, err)
	assert.Equal(t, 1, acks, "read responses are not acknowledgments")
}
