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
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/anemostat/internal/config"
	"github.com/Thermoquad/anemostat/internal/httpserver"
	"github.com/Thermoquad/anemostat/internal/metrics"
	"github.com/Thermoquad/anemostat/pkg/display"
	"github.com/Thermoquad/anemostat/pkg/telemetry"
	"github.com/Thermoquad/anemostat/pkg/windbus"
)

var monitorTUI bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the wind sensors continuously",
	Long: `Poll the wind speed sensor and then the wind direction sensor once per
poll interval.

Readings are shown on the seven-segment displays (display.enable), published
as telemetry (telemetry.sink: none, log, mqtt or redis) and exported as
Prometheus metrics. When http.addr is set, /healthz, /readyz, the metrics
path and /api/v1/readings are served there.

A sensor that does not answer before the transaction deadline is shown as
"----" and polled again on the next cycle. When the connection itself fails
it is reopened with exponential backoff (1s to 30s).

By default a terminal dashboard is shown. Use --tui=false for plain text
output suitable for logs and services.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", true, "Show the terminal dashboard")
}

// Messages sent by the poll loop
type readingMsg struct {
	quantity windbus.Quantity
	address  byte
	reading  windbus.Reading
	err      error
}
type connectionLostMsg struct {
	err error
}
type reconnectedMsg struct {
	connInfo string
}
type eventMsg struct {
	message string
	isError bool
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	mu       sync.RWMutex
	conn     Connection
	bus      *windbus.Bus
	connInfo string

	open    func() (Connection, string, error)
	newBus  func(Connection) *windbus.Bus
	backoff time.Duration
	maxWait time.Duration
}

func newConnectionManager(open func() (Connection, string, error), newBus func(Connection) *windbus.Bus) *connectionManager {
	return &connectionManager{
		open:    open,
		newBus:  newBus,
		backoff: 1 * time.Second,
		maxWait: 30 * time.Second,
	}
}

// connect opens the first connection
func (cm *connectionManager) connect() error {
	conn, connInfo, err := cm.open()
	if err != nil {
		return err
	}
	cm.set(conn, connInfo)
	return nil
}

func (cm *connectionManager) set(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.bus = cm.newBus(conn)
	cm.connInfo = connInfo
}

func (cm *connectionManager) getBus() *windbus.Bus {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.bus
}

func (cm *connectionManager) info() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.connInfo
}

func (cm *connectionManager) connected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn != nil
}

func (cm *connectionManager) close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.conn != nil {
		cm.conn.Close()
		cm.conn = nil
	}
}

// reconnect closes the current connection and reopens it with exponential
// backoff. It returns false if ctx ended first.
func (cm *connectionManager) reconnect(ctx context.Context) bool {
	cm.close()

	backoff := cm.backoff
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := cm.open()
		if err == nil {
			cm.set(conn, connInfo)
			return true
		}

		backoff *= 2
		if backoff > cm.maxWait {
			backoff = cm.maxWait
		}
	}
}

// monitor runs the poll cycle: speed, then direction, then telemetry
type monitor struct {
	speedAddress     byte
	directionAddress byte
	interval         time.Duration

	props   *telemetry.Properties
	ambient telemetry.AmbientSource

	speedDisplay     *display.Display
	directionDisplay *display.Display

	busMetrics *metrics.BusMetrics
	report     func(tea.Msg)
	logger     *zap.Logger
}

func (m *monitor) address(q windbus.Quantity) byte {
	if q == windbus.WindDirection {
		return m.directionAddress
	}
	return m.speedAddress
}

// poll runs one cycle. Only transport faults and cancellation are returned.
func (m *monitor) poll(ctx context.Context, bus *windbus.Bus) error {
	for _, q := range []windbus.Quantity{windbus.WindSpeed, windbus.WindDirection} {
		address := m.address(q)
		r, err := bus.Read(ctx, q, address)
		switch {
		case err == nil:
			if m.busMetrics != nil {
				m.busMetrics.ObserveReading(r)
			}
			if err := m.props.SetReading(r); err != nil {
				m.logger.Error("telemetry update failed", zap.Error(err))
			}
		case errors.Is(err, windbus.ErrTimeout):
		default:
			return err
		}
		m.show(q, r, err)
		m.report(readingMsg{quantity: q, address: address, reading: r, err: err})
	}

	if m.ambient != nil {
		a, err := m.ambient.Ambient(ctx)
		if err != nil {
			m.logger.Warn("ambient read failed", zap.Error(err))
		} else if err := m.props.SetAmbient(a); err != nil {
			m.logger.Error("telemetry update failed", zap.Error(err))
		}
	}

	if err := m.props.Flush(ctx); err != nil {
		m.logger.Warn("telemetry publish failed", zap.Error(err))
		m.report(eventMsg{message: err.Error(), isError: true})
	}
	return nil
}

// show renders a reading, or the placeholder when err is set
func (m *monitor) show(q windbus.Quantity, r windbus.Reading, err error) {
	value := q.Sentinel()
	if err == nil {
		value = int16(r.Value)
	}

	var derr error
	switch {
	case q == windbus.WindSpeed && m.speedDisplay != nil:
		derr = m.speedDisplay.ShowSpeed(value)
	case q == windbus.WindDirection && m.directionDisplay != nil:
		derr = m.directionDisplay.ShowDirection(value)
	}
	if derr != nil {
		m.logger.Debug("display write failed", zap.Stringer("quantity", q), zap.Error(derr))
	}
}

// run polls until ctx ends, reconnecting when the transport fails
func (m *monitor) run(ctx context.Context, cm *connectionManager) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		err := m.poll(ctx, cm.getBus())
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.logger.Warn("connection lost", zap.Error(err))
			m.report(connectionLostMsg{err: err})
			if !cm.reconnect(ctx) {
				return
			}
			m.logger.Info("reconnected", zap.String("connection", cm.info()))
			m.report(reconnectedMsg{connInfo: cm.info()})
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// openSink creates the configured telemetry sink and its cleanup
func openSink(ctx context.Context, tc config.TelemetryConfig) (telemetry.Sink, func() error, error) {
	noop := func() error { return nil }

	enc, err := telemetry.ParseEncoding(tc.Encoding)
	if err != nil {
		return nil, noop, err
	}

	switch tc.Sink {
	case "", "none":
		return telemetry.SinkFunc(func(context.Context, telemetry.Update) error { return nil }), noop, nil
	case "log":
		return telemetry.LogSink{Logger: logger.Named("telemetry")}, noop, nil
	case "mqtt":
		sink, err := telemetry.NewMQTTSink(telemetry.MQTTConfig{
			URL:           tc.MQTT.URL,
			ClientID:      tc.MQTT.ClientID,
			Encoding:      enc,
			QoS:           tc.MQTT.QoS,
			Retain:        tc.MQTT.Retain,
			Timeout:       tc.MQTT.Timeout,
			TLSSkipVerify: tc.MQTT.TLSSkipVerify,
		}, logger.Named("mqtt"))
		if err != nil {
			return nil, noop, err
		}
		if err := sink.Connect(ctx); err != nil {
			return nil, noop, fmt.Errorf("mqtt connect: %w", err)
		}
		return sink, sink.Close, nil
	case "redis":
		sink, err := telemetry.NewRedisSink(ctx, telemetry.RedisConfig{
			Addr:     tc.Redis.Addr,
			Password: tc.Redis.Password,
			DB:       tc.Redis.DB,
			Channel:  tc.Redis.Channel,
			Encoding: enc,
		})
		if err != nil {
			return nil, noop, err
		}
		return sink, sink.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown telemetry sink %q", tc.Sink)
	}
}

// openDisplays opens the I2C bus and both displays
func openDisplays(dc config.DisplayConfig) (speed, direction *display.Display, closer io.Closer, err error) {
	bus, err := display.OpenI2C(dc.Bus)
	if err != nil {
		return nil, nil, nil, err
	}
	if speed, err = display.New(bus, dc.SpeedAddress); err != nil {
		bus.Close()
		return nil, nil, nil, err
	}
	if direction, err = display.New(bus, dc.DirectionAddress); err != nil {
		bus.Close()
		return nil, nil, nil, err
	}
	for _, d := range []*display.Display{speed, direction} {
		if err := d.Clear(); err != nil {
			logger.Warn("display clear failed", zap.Uint8("address", d.Address()), zap.Error(err))
		}
		if err := d.SetBrightness(dc.Brightness); err != nil {
			logger.Warn("display brightness failed", zap.Uint8("address", d.Address()), zap.Error(err))
		}
	}
	return speed, direction, bus, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := windbus.NewStatistics()
	observers := windbus.Observers{stats}

	reg := metrics.NewRegistry()
	var busMetrics *metrics.BusMetrics
	if cfg.Metrics.Enable {
		busMetrics = metrics.NewBusMetrics(reg)
		observers = append(observers, busMetrics)
	}

	cm := newConnectionManager(
		func() (Connection, string, error) { return OpenConnection(cfg.Bus) },
		func(conn Connection) *windbus.Bus {
			return windbus.NewBus(conn,
				windbus.WithTiming(cfg.Timing.Timing()),
				windbus.WithLogger(logger.Named("bus")),
				windbus.WithObserver(observers))
		},
	)
	if err := cm.connect(); err != nil {
		return err
	}
	defer cm.close()

	sink, closeSink, err := openSink(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer closeSink()

	props := telemetry.NewProperties(sink,
		telemetry.WithMinInterval(cfg.Telemetry.MinInterval),
		telemetry.WithLogger(logger.Named("telemetry")))

	m := &monitor{
		speedAddress:     cfg.Sensor.SpeedAddress,
		directionAddress: cfg.Sensor.DirectionAddress,
		interval:         cfg.Poll.Interval,
		props:            props,
		ambient:          telemetry.StaticAmbient(cfg.Ambient),
		busMetrics:       busMetrics,
		logger:           logger.Named("monitor"),
	}

	if cfg.Display.Enable {
		speed, direction, closer, err := openDisplays(cfg.Display)
		if err != nil {
			return fmt.Errorf("open displays: %w", err)
		}
		defer closer.Close()
		m.speedDisplay, m.directionDisplay = speed, direction
	}

	if cfg.HTTP.Addr != "" {
		opts := httpserver.Options{
			Ready:    cm.connected,
			Readings: m.props.Snapshot,
		}
		if cfg.Metrics.Enable {
			opts.MetricsPath = cfg.Metrics.Path
			opts.MetricsHandler = metrics.Handler(reg)
		}
		srv := httpserver.New(cfg.HTTP, opts)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("http server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	if monitorTUI {
		return runMonitorTUI(ctx, stop, m, cm, stats)
	}
	return runMonitorText(ctx, m, cm, stats)
}

// runMonitorText prints readings and periodic statistics to stdout
func runMonitorText(ctx context.Context, m *monitor, cm *connectionManager, stats *windbus.Statistics) error {
	fmt.Printf("Anemostat - Monitor\n")
	fmt.Printf("Connection: %s\n", cm.info())
	fmt.Printf("Sensors: speed @ 0x%02X, direction @ 0x%02X\n", m.speedAddress, m.directionAddress)
	fmt.Printf("Poll interval: %s\n", m.interval)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	m.report = func(msg tea.Msg) {
		fmt.Print(formatMonitorMsg(time.Now(), msg))
	}

	if cfg.Poll.StatsInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Poll.StatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					fmt.Printf("\n%s\n", stats)
				}
			}
		}()
	}

	m.run(ctx, cm)

	fmt.Printf("\n\nFinal Statistics:\n%s", stats)
	return nil
}

// formatMonitorMsg renders a poll loop message as one line of text output
func formatMonitorMsg(now time.Time, msg tea.Msg) string {
	ts := now.Format("15:04:05.000")
	switch msg := msg.(type) {
	case readingMsg:
		if msg.err != nil {
			return fmt.Sprintf("[%s] %s @0x%02X: no reply (%v)\n", ts, msg.quantity, msg.address, msg.err)
		}
		return fmt.Sprintf("[%s] %s\n", ts, windbus.FormatReading(msg.reading))
	case connectionLostMsg:
		return fmt.Sprintf("[%s] CONNECTION LOST: %v, reconnecting...\n", ts, msg.err)
	case reconnectedMsg:
		return fmt.Sprintf("[%s] Reconnected: %s\n", ts, msg.connInfo)
	case eventMsg:
		if msg.isError {
			return fmt.Sprintf("[%s] ERROR: %s\n", ts, msg.message)
		}
		return fmt.Sprintf("[%s] %s\n", ts, msg.message)
	}
	return ""
}
