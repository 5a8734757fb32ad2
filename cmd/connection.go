// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/anemostat/internal/config"
	"github.com/Thermoquad/anemostat/pkg/windbus"
)

// Connection is a sensor bus port that can be closed
type Connection interface {
	windbus.Port
	io.Closer
}

// SerialConnection is an RS-485 adapter on a local serial port
type SerialConnection struct {
	serial.Port
}

// ErrConnectionClosed is returned once the bridge connection has failed
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection reaches the bus through a network bridge. Bus bytes
// arrive in binary messages; text messages carry bridge status and are
// skipped. Read blocks, so OpenConnection puts a windbus.StreamPort in front
// of it.
type WebSocketConnection struct {
	conn    *websocket.Conn
	pending []byte
	err     error
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	for len(w.pending) == 0 {
		if err := w.receive(); err != nil {
			return 0, err
		}
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

// receive fills pending from the next binary message. The first failure
// sticks.
func (w *WebSocketConnection) receive() error {
	if w.err != nil {
		return w.err
	}
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			w.err = fmt.Errorf("%w: %w", ErrConnectionClosed, err)
			return w.err
		}
		if kind == websocket.BinaryMessage {
			w.pending = data
			return nil
		}
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens portName at baudRate, 8N1
func OpenSerialConnection(portName string, baudRate int) (*SerialConnection, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return &SerialConnection{Port: port}, nil
}

// OpenWebSocketConnection dials a bus bridge. Credentials, when a username
// is given, are sent as HTTP Basic auth.
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (*WebSocketConnection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	header := http.Header{}
	if username != "" {
		header.Set("Authorization", basicAuth(username, password))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	switch {
	case err == nil:
		return &WebSocketConnection{conn: conn}, nil
	case resp != nil:
		return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
	default:
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// GetPassword returns the bridge password from bus, asking on stdin when it
// is not configured. Echo is disabled when stdin is a terminal.
func GetPassword(bus config.BusConfig) (string, error) {
	if bus.Password != "" {
		return bus.Password, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(secret), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// OpenConnection opens the bridge when bus.URL is set and the serial port
// otherwise. The returned string describes the connection for display.
func OpenConnection(bus config.BusConfig) (Connection, string, error) {
	switch {
	case bus.URL != "":
		var password string
		if bus.Username != "" {
			var err error
			if password, err = GetPassword(bus); err != nil {
				return nil, "", err
			}
		}
		conn, err := OpenWebSocketConnection(bus.URL, bus.Username, password, bus.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return windbus.NewStreamPort(conn), "WebSocket: " + bus.URL, nil

	case bus.Port != "":
		conn, err := OpenSerialConnection(bus.Port, bus.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", bus.Port, bus.Baud), nil
	}
	return nil, "", errors.New("either --port or --url must be specified")
}

// newBus opens the configured connection and creates a bus over it
func newBus(observers windbus.Observers, opts ...windbus.Option) (*windbus.Bus, Connection, string, error) {
	conn, desc, err := OpenConnection(cfg.Bus)
	if err != nil {
		return nil, nil, "", err
	}
	opts = append([]windbus.Option{
		windbus.WithTiming(cfg.Timing.Timing()),
		windbus.WithLogger(logger.Named("bus")),
		windbus.WithObserver(observers),
	}, opts...)
	return windbus.NewBus(conn, opts...), conn, desc, nil
}
