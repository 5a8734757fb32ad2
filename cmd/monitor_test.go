// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Thermoquad/anemostat/pkg/display"
	"github.com/Thermoquad/anemostat/pkg/telemetry"
	"github.com/Thermoquad/anemostat/pkg/windbus"
	"github.com/Thermoquad/anemostat/pkg/windbus/windbustest"
)

var testTiming = windbus.Timing{
	ByteWindow:     10 * time.Millisecond,
	ResendInterval: 10 * time.Millisecond,
	Deadline:       150 * time.Millisecond,
}

// sensors answers as every simulator on the bus would
func sensors(sims ...*windbus.Simulator) windbustest.Responder {
	return windbustest.ResponderFunc(func(written []byte) []byte {
		var out []byte
		for _, s := range sims {
			out = append(out, s.Respond(written)...)
		}
		return out
	})
}

type displayBus struct {
	mu     sync.Mutex
	writes map[byte][][]byte
}

func (b *displayBus) Write(address byte, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writes == nil {
		b.writes = map[byte][][]byte{}
	}
	b.writes[address] = append(b.writes[address], append([]byte(nil), data...))
	return nil
}

func (b *displayBus) last(address byte, n int) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.writes[address]
	if len(w) < n {
		return w
	}
	return w[len(w)-n:]
}

type msgRecorder struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *msgRecorder) report(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *msgRecorder) readings() []readingMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []readingMsg
	for _, m := range r.msgs {
		if rm, ok := m.(readingMsg); ok {
			out = append(out, rm)
		}
	}
	return out
}

type testMonitor struct {
	*monitor
	bus     *displayBus
	updates []telemetry.Update
	msgs    *msgRecorder
}

func newTestMonitor(t *testing.T) *testMonitor {
	t.Helper()
	tm := &testMonitor{bus: &displayBus{}, msgs: &msgRecorder{}}

	speedDisplay, err := display.New(tm.bus, 0x71)
	require.NoError(t, err)
	directionDisplay, err := display.New(tm.bus, 0x72)
	require.NoError(t, err)

	sink := telemetry.SinkFunc(func(_ context.Context, u telemetry.Update) error {
		tm.updates = append(tm.updates, u)
		return nil
	})

	tm.monitor = &monitor{
		speedAddress:     0x01,
		directionAddress: 0x02,
		interval:         20 * time.Millisecond,
		props:            telemetry.NewProperties(sink),
		ambient:          telemetry.StaticAmbient{Pressure: 1013.25, Humidity: 40, Temperature: 18},
		speedDisplay:     speedDisplay,
		directionDisplay: directionDisplay,
		report:           tm.msgs.report,
		logger:           zap.NewNop(),
	}
	return tm
}

func newSensorBus(sims ...*windbus.Simulator) (*windbus.Bus, *windbustest.Port) {
	port := windbustest.New(sensors(sims...))
	return windbus.NewBus(port, windbus.WithTiming(testTiming)), port
}

// ============================================================
// Poll cycle
// ============================================================

func TestMonitor_PollPublishesBothReadings(t *testing.T) {
	speed := windbus.NewSimulator(0x01)
	speed.SetWindSpeed(123)
	direction := windbus.NewSimulator(0x02)
	direction.SetWindDirection(7)
	bus, _ := newSensorBus(speed, direction)

	tm := newTestMonitor(t)
	require.NoError(t, tm.poll(context.Background(), bus))

	readings := tm.msgs.readings()
	require.Len(t, readings, 2)
	assert.Equal(t, windbus.WindSpeed, readings[0].quantity)
	assert.NoError(t, readings[0].err)
	assert.Equal(t, uint16(123), readings[0].reading.Value)
	assert.Equal(t, windbus.WindDirection, readings[1].quantity)
	assert.Equal(t, uint16(7), readings[1].reading.Value)

	require.Len(t, tm.updates, 1)
	assert.Equal(t, map[string]any{
		telemetry.PropertySpeed:       12.3,
		telemetry.PropertyDirection:   7,
		telemetry.PropertyPressure:    1013.25,
		telemetry.PropertyHumidity:    40,
		telemetry.PropertyTemperature: 18,
	}, tm.updates[0].Values)

	assert.Equal(t, [][]byte{[]byte(" 123"), {display.CmdDecimals, display.DecimalDigit3}}, tm.bus.last(0x71, 2))
	assert.Equal(t, [][]byte{[]byte(" SSE"), {display.CmdDecimals, 0}}, tm.bus.last(0x72, 2))
}

func TestMonitor_PollOnlyPublishesChanges(t *testing.T) {
	speed := windbus.NewSimulator(0x01)
	speed.SetWindSpeed(50)
	direction := windbus.NewSimulator(0x02)
	direction.SetWindDirection(4)
	bus, _ := newSensorBus(speed, direction)

	tm := newTestMonitor(t)
	require.NoError(t, tm.poll(context.Background(), bus))
	require.NoError(t, tm.poll(context.Background(), bus))
	require.Len(t, tm.updates, 1, "unchanged readings are not published again")

	speed.SetWindSpeed(51)
	require.NoError(t, tm.poll(context.Background(), bus))
	require.Len(t, tm.updates, 2)
	assert.Equal(t, map[string]any{telemetry.PropertySpeed: 5.1}, tm.updates[1].Values)
}

func TestMonitor_PollMissingSensorShowsPlaceholder(t *testing.T) {
	speed := windbus.NewSimulator(0x01)
	speed.SetWindSpeed(80)
	bus, _ := newSensorBus(speed)

	tm := newTestMonitor(t)
	require.NoError(t, tm.poll(context.Background(), bus))

	readings := tm.msgs.readings()
	require.Len(t, readings, 2)
	assert.NoError(t, readings[0].err)
	assert.ErrorIs(t, readings[1].err, windbus.ErrTimeout)

	assert.Equal(t, [][]byte{[]byte(display.Placeholder), {display.CmdDecimals, 0}}, tm.bus.last(0x72, 2))

	require.Len(t, tm.updates, 1)
	_, ok := tm.updates[0].Values[telemetry.PropertyDirection]
	assert.False(t, ok, "a missing reading does not reach telemetry")
	assert.Equal(t, 8.0, tm.updates[0].Values[telemetry.PropertySpeed])
}

func TestMonitor_PollTransportError(t *testing.T) {
	bus, port := newSensorBus(windbus.NewSimulator(0x01))
	require.NoError(t, port.Close())

	tm := newTestMonitor(t)
	err := tm.poll(context.Background(), bus)
	require.Error(t, err)
	assert.False(t, errors.Is(err, windbus.ErrTimeout))
	assert.Empty(t, tm.updates)
}

func TestMonitor_PollPublishFailureReported(t *testing.T) {
	bus, _ := newSensorBus(windbus.NewSimulator(0x01), windbus.NewSimulator(0x02))

	tm := newTestMonitor(t)
	tm.props = telemetry.NewProperties(telemetry.SinkFunc(func(context.Context, telemetry.Update) error {
		return errors.New("broker down")
	}))
	require.NoError(t, tm.poll(context.Background(), bus))

	var events []eventMsg
	for _, m := range tm.msgs.msgs {
		if e, ok := m.(eventMsg); ok {
			events = append(events, e)
		}
	}
	require.Len(t, events, 1)
	assert.True(t, events[0].isError)
	assert.Contains(t, events[0].message, "broker down")
}

// ============================================================
// Reconnection
// ============================================================

func TestConnectionManager_ReconnectBacksOff(t *testing.T) {
	attempts := 0
	var times []time.Time
	cm := newConnectionManager(func() (Connection, string, error) {
		attempts++
		times = append(times, time.Now())
		if attempts < 4 {
			return nil, "", errors.New("no such port")
		}
		return windbustest.New(nil), "test", nil
	}, func(conn Connection) *windbus.Bus {
		return windbus.NewBus(conn)
	})
	cm.backoff = 5 * time.Millisecond
	cm.maxWait = 20 * time.Millisecond

	require.True(t, cm.reconnect(context.Background()))
	assert.Equal(t, 4, attempts)
	assert.True(t, cm.connected())
	assert.Equal(t, "test", cm.info())
	assert.NotNil(t, cm.getBus())

	// Waits double after each failure up to maxWait
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 20 * time.Millisecond}
	require.Len(t, times, len(want)+1)
	for i, w := range want {
		assert.GreaterOrEqual(t, times[i+1].Sub(times[i]), w, "attempt %d", i+2)
	}
}

func TestConnectionManager_ReconnectCanceled(t *testing.T) {
	cm := newConnectionManager(func() (Connection, string, error) {
		return nil, "", errors.New("no such port")
	}, func(conn Connection) *windbus.Bus {
		return windbus.NewBus(conn)
	})
	cm.backoff = time.Millisecond
	cm.maxWait = 2 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.False(t, cm.reconnect(ctx))
	assert.False(t, cm.connected())
}

func TestMonitor_RunReconnectsAfterTransportError(t *testing.T) {
	speed := windbus.NewSimulator(0x01)
	speed.SetWindSpeed(42)
	direction := windbus.NewSimulator(0x02)

	broken := windbustest.New(nil)
	require.NoError(t, broken.Close())

	opens := 0
	cm := newConnectionManager(func() (Connection, string, error) {
		opens++
		if opens == 1 {
			return broken, "broken", nil
		}
		return windbustest.New(sensors(speed, direction)), "healthy", nil
	}, func(conn Connection) *windbus.Bus {
		return windbus.NewBus(conn, windbus.WithTiming(testTiming))
	})
	cm.backoff = time.Millisecond
	require.NoError(t, cm.connect())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tm := newTestMonitor(t)
	got := make(chan readingMsg, 16)
	var lost, reconnected int
	tm.report = func(msg tea.Msg) {
		switch msg := msg.(type) {
		case connectionLostMsg:
			lost++
		case reconnectedMsg:
			reconnected++
			assert.Equal(t, "healthy", msg.connInfo)
		case readingMsg:
			select {
			case got <- msg:
			default:
			}
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		tm.run(ctx, cm)
	}()

	select {
	case r := <-got:
		assert.NoError(t, r.err)
		assert.Equal(t, uint16(42), r.reading.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("no reading after reconnect")
	}
	cancel()
	<-done

	assert.Equal(t, 1, lost)
	assert.Equal(t, 1, reconnected)
	assert.Equal(t, 2, opens)
}

// ============================================================
// Text output
// ============================================================

func TestFormatMonitorMsg(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 30, 45, 123000000, time.UTC)

	r := windbus.Reading{Quantity: windbus.WindSpeed, Address: 0x01, Value: 55, Elapsed: 12 * time.Millisecond}
	assert.Equal(t, "[12:30:45.123] "+windbus.FormatReading(r)+"\n",
		formatMonitorMsg(now, readingMsg{quantity: windbus.WindSpeed, address: 0x01, reading: r}))

	assert.Equal(t, "[12:30:45.123] wind_direction @0x02: no reply ("+windbus.ErrTimeout.Error()+")\n",
		formatMonitorMsg(now, readingMsg{quantity: windbus.WindDirection, address: 0x02, err: windbus.ErrTimeout}))

	assert.Equal(t, "[12:30:45.123] Reconnected: Serial: /dev/ttyUSB0 @ 9600 baud\n",
		formatMonitorMsg(now, reconnectedMsg{connInfo: "Serial: /dev/ttyUSB0 @ 9600 baud"}))

	assert.Equal(t, "[12:30:45.123] ERROR: boom\n", formatMonitorMsg(now, eventMsg{message: "boom", isError: true}))
	assert.Empty(t, formatMonitorMsg(now, tickMsg(now)))
}

// ============================================================
// Dashboard model
// ============================================================

func TestMonitorModel_Readings(t *testing.T) {
	m := initialMonitorModel("test", windbus.NewStatistics(), 0x01, 0x02)

	next, _ := m.Update(readingMsg{
		quantity: windbus.WindSpeed,
		address:  0x01,
		reading:  windbus.Reading{Quantity: windbus.WindSpeed, Value: 87, Resends: 2},
	})
	m = next.(monitorModel)
	next, _ = m.Update(readingMsg{quantity: windbus.WindDirection, address: 0x02, err: windbus.ErrTimeout})
	m = next.(monitorModel)

	assert.True(t, m.speed.ok)
	assert.Equal(t, "8.7 m/s", m.speed.speedText())
	assert.False(t, m.direction.ok)
	assert.Equal(t, display.Placeholder, m.direction.directionText())

	require.Len(t, m.eventLog, 2)
	assert.False(t, m.eventLog[0].isError)
	assert.Contains(t, m.eventLog[0].message, "2 resends")
	assert.True(t, m.eventLog[1].isError)

	view := m.View()
	assert.Contains(t, view, "ANEMOSTAT - MONITOR")
	assert.Contains(t, view, "8.7 m/s")
}

func TestMonitorModel_Connection(t *testing.T) {
	m := initialMonitorModel("first", windbus.NewStatistics(), 0x01, 0x02)

	next, _ := m.Update(connectionLostMsg{err: errors.New("unplugged")})
	m = next.(monitorModel)
	assert.False(t, m.connected)
	assert.Contains(t, m.View(), "Reconnecting")

	next, _ = m.Update(reconnectedMsg{connInfo: "second"})
	m = next.(monitorModel)
	assert.True(t, m.connected)
	assert.Equal(t, "second", m.connInfo)
}

func TestMonitorModel_LogIsBounded(t *testing.T) {
	m := initialMonitorModel("test", windbus.NewStatistics(), 0x01, 0x02)
	m.maxLogEntries = 3
	for i := 0; i < 10; i++ {
		m.addLogEntry("event", false)
	}
	assert.Len(t, m.eventLog, 3)
}

func TestMonitorModel_Quit(t *testing.T) {
	m := initialMonitorModel("test", windbus.NewStatistics(), 0x01, 0x02)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, next.(monitorModel).quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
