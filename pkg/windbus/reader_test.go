// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Thermoquad/anemostat/pkg/windbus/windbustest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// ReadN
// ============================================================

func TestReadN_Full(t *testing.T) {
	port := windbustest.New(nil)
	port.Inject([]byte{0x01, 0x02, 0x03, 0x04})

	buf := make([]byte, 3)
	n, err := ReadN(port, buf, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, buf)
	assert.Equal(t, 1, port.Pending())
}

func TestReadN_AcrossChunks(t *testing.T) {
	port := windbustest.New(nil)
	port.Inject([]byte{0x01})
	port.InjectAfter(10*time.Millisecond, []byte{0x02, 0x03})

	buf := make([]byte, 3)
	n, err := ReadN(port, buf, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, buf)
}

func TestReadN_ShortReadIsNotAnError(t *testing.T) {
	port := windbustest.New(nil)
	port.Inject([]byte{0xAA})

	buf := make([]byte, 4)
	start := time.Now()
	n, err := ReadN(port, buf, 30*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0xAA), buf[0])
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestReadN_Silence(t *testing.T) {
	port := windbustest.New(nil)

	n, err := ReadN(port, make([]byte, 1), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReadN_LateBytesMissTheWindow(t *testing.T) {
	port := windbustest.New(nil)
	port.InjectAfter(80*time.Millisecond, []byte{0x01})

	n, err := ReadN(port, make([]byte, 1), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, port.Pending())
}

func TestReadN_TransportError(t *testing.T) {
	port := windbustest.New(nil)
	require.NoError(t, port.Close())

	_, err := ReadN(port, make([]byte, 2), 20*time.Millisecond)
	assert.ErrorIs(t, err, windbustest.ErrClosed)
}

type failingTimeoutPort struct {
	windbustest.Port
}

var errNoTimeout = errors.New("timeouts unsupported")

func (p *failingTimeoutPort) SetReadTimeout(time.Duration) error { return errNoTimeout }

func TestReadN_SetReadTimeoutError(t *testing.T) {
	port := &failingTimeoutPort{}

	_, err := ReadN(port, make([]byte, 1), 20*time.Millisecond)
	assert.ErrorIs(t, err, errNoTimeout)
}

// ============================================================
// StreamPort
// ============================================================

func TestStreamPort_ReadWrite(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	port := NewStreamPort(local)
	defer port.Close()

	go func() {
		_, _ = remote.Write([]byte{0x05, 0x03, 0x02})
	}()

	buf := make([]byte, 3)
	n, err := ReadN(port, buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0x05, 0x03, 0x02}, buf)

	got := make(chan []byte, 1)
	go func() {
		b := make([]byte, 8)
		n, _ := io.ReadFull(remote, b)
		got <- b[:n]
	}()
	q := BuildWindSpeedQuery(0x05)
	_, err = port.Write(q[:])
	require.NoError(t, err)

	select {
	case b := <-got:
		assert.Equal(t, q[:], b)
	case <-time.After(time.Second):
		t.Fatal("query never reached the remote end")
	}
}

func TestStreamPort_Timeout(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	port := NewStreamPort(local)
	defer port.Close()

	require.NoError(t, port.SetReadTimeout(20*time.Millisecond))
	start := time.Now()
	n, err := port.Read(make([]byte, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestStreamPort_ClosedStream(t *testing.T) {
	local, remote := net.Pipe()
	port := NewStreamPort(local)
	defer port.Close()

	go func() {
		_, _ = remote.Write([]byte{0x42})
		_ = remote.Close()
	}()

	buf := make([]byte, 4)
	n, err := ReadN(port, buf, time.Second)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0x42), buf[0])
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamPort_BusTransaction(t *testing.T) {
	hostSide, sensorSide := net.Pipe()
	host := NewStreamPort(hostSide)
	sensor := NewStreamPort(sensorSide)
	defer host.Close()
	defer sensor.Close()

	sim := NewSimulator(0x07)
	sim.SetWindDirection(4)

	done := make(chan struct{})
	ctx, cancel := newTestContext(t)
	go func() {
		defer close(done)
		_ = sim.Serve(ctx, sensor)
	}()

	bus := NewBus(host)
	r, err := bus.ReadWindDirection(ctx, 0x07)
	require.NoError(t, err)
	assert.Equal(t, uint16(4), r.Value)

	cancel()
	<-done
}
