// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimulator_RespondToQuery(t *testing.T) {
	sim := NewSimulator(0x05)
	sim.SetWindSpeed(300)

	q := BuildWindSpeedQuery(0x05)
	r := BuildResponse(0x05, 300)
	assert.Equal(t, r[:], sim.Respond(q[:]))
}

func TestSimulator_SplitWrites(t *testing.T) {
	sim := NewSimulator(0x05)
	sim.SetWindDirection(3)

	q := BuildWindDirectionQuery(0x05)
	assert.Nil(t, sim.Respond(q[:5]))
	r := BuildResponse(0x05, 3)
	assert.Equal(t, r[:], sim.Respond(q[5:]))
}

func TestSimulator_IgnoresOtherAddress(t *testing.T) {
	sim := NewSimulator(0x05)
	sim.SetWindSpeed(1)

	q := BuildWindSpeedQuery(0x06)
	assert.Nil(t, sim.Respond(q[:]))
}

func TestSimulator_UnsetRegisterReadsZero(t *testing.T) {
	sim := NewSimulator(0x05)

	q := BuildWindSpeedQuery(0x05)
	r := BuildResponse(0x05, 0)
	assert.Equal(t, r[:], sim.Respond(q[:]))

	q = BuildWindDirectionQuery(0x05)
	assert.Equal(t, r[:], sim.Respond(q[:]))
}

func TestSimulator_AddressChange(t *testing.T) {
	sim := NewSimulator(0x05)

	req := BuildAddressChange(0x05, 0x0A)
	ack := BuildAddressAck(0x05)
	assert.Equal(t, ack[:], sim.Respond(req[:]))
	assert.Equal(t, byte(0x05), sim.Address())

	sim.PowerCycle()
	assert.Equal(t, byte(0x0A), sim.Address())

	// A second power cycle keeps the address
	sim.PowerCycle()
	assert.Equal(t, byte(0x0A), sim.Address())
}

func TestSimulator_AddressChangeOtherSensor(t *testing.T) {
	sim := NewSimulator(0x05)

	req := BuildAddressChange(0x06, 0x0A)
	assert.Nil(t, sim.Respond(req[:]))
	sim.PowerCycle()
	assert.Equal(t, byte(0x05), sim.Address())
}

func TestSimulator_BroadcastAck(t *testing.T) {
	sim := NewSimulator(0x05)

	req := BuildAddressChange(AddressBroadcast, 0x01)
	ack := BuildAddressAck(AddressBroadcast)
	assert.Equal(t, ack[:], sim.Respond(req[:]))
}
