// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/anemostat/pkg/display"
	"github.com/Thermoquad/anemostat/pkg/windbus"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// Last result for one sensor
type sensorState struct {
	address byte
	reading windbus.Reading
	ok      bool
	seen    bool
	updated time.Time
}

type tickMsg time.Time

// TUI model
type monitorModel struct {
	connInfo      string
	connected     bool
	stats         *windbus.Statistics
	speed         sensorState
	direction     sensorState
	eventLog      []eventLogEntry
	maxLogEntries int
	spinner       spinner.Model
	width         int
	height        int
	quitting      bool
}

func initialMonitorModel(connInfo string, stats *windbus.Statistics, speedAddress, directionAddress byte) monitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return monitorModel{
		connInfo:      connInfo,
		connected:     true,
		stats:         stats,
		speed:         sensorState{address: speedAddress},
		direction:     sensorState{address: directionAddress},
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		spinner:       s,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case readingMsg:
		state := &m.speed
		if msg.quantity == windbus.WindDirection {
			state = &m.direction
		}
		state.address = msg.address
		state.seen = true
		state.updated = time.Now()
		if msg.err != nil {
			state.ok = false
			m.addLogEntry(fmt.Sprintf("%s @0x%02X: no reply", msg.quantity, msg.address), true)
		} else {
			state.ok = true
			state.reading = msg.reading
			if msg.reading.Resends > 0 {
				m.addLogEntry(fmt.Sprintf("%s @0x%02X: answered after %d resends",
					msg.quantity, msg.address, msg.reading.Resends), false)
			}
		}

	case connectionLostMsg:
		m.connected = false
		m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)

	case reconnectedMsg:
		m.connected = true
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)

	case eventMsg:
		m.addLogEntry(msg.message, msg.isError)
	}

	return m, nil
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// speedText renders the speed reading the way the display shows it
func (s sensorState) speedText() string {
	if !s.ok {
		return display.Placeholder
	}
	return windbus.FormatWindSpeed(s.reading.Value)
}

func (s sensorState) directionText() string {
	if !s.ok {
		return display.Placeholder
	}
	return windbus.FormatWindDirection(s.reading.Value)
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("ANEMOSTAT - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | 'r' reset statistics | 'q' quit", m.connInfo)))
	s.WriteString("\n\n")

	if m.connected {
		s.WriteString(m.spinner.View())
		s.WriteString(valueStyle.Render(" Polling"))
	} else {
		s.WriteString(warningStyle.Render("⏳ Reconnecting..."))
	}
	s.WriteString("\n\n")

	// Readings
	reading := func(label string, st sensorState, text string) string {
		value := headerStyle.Render("waiting")
		if st.seen {
			if st.ok {
				value = valueStyle.Render(text)
			} else {
				value = errorStyle.Render(text + " (no reply)")
			}
		}
		return fmt.Sprintf("%s %s %s",
			labelStyle.Render(label),
			headerStyle.Render(fmt.Sprintf("@0x%02X", st.address)),
			value)
	}
	readings := reading("Speed:    ", m.speed, m.speed.speedText()) + "\n" +
		reading("Direction:", m.direction, m.direction.directionText())
	s.WriteString(boxStyle.Render(readings))
	s.WriteString("\n\n")

	// Statistics
	m.stats.CalculateRates()
	successPercent := m.stats.SuccessPercent()
	avg := m.stats.AverageLatency()

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Transactions:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Transactions)),
		labelStyle.Render("OK:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.Successes, successPercent)),
		labelStyle.Render("Timeouts:"), func() string {
			if m.stats.Timeouts > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", m.stats.Timeouts))
			}
			return valueStyle.Render("0")
		}(),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Resends:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.Resends)),
		labelStyle.Render("CRC Mismatches:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.ChecksumMismatches)),
		labelStyle.Render("Discarded:"), warningStyle.Render(fmt.Sprintf("%d bytes", m.stats.DiscardedBytes)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Avg Latency:"), valueStyle.Render(fmt.Sprintf("%.1f ms", float64(avg.Microseconds())/1000.0)),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f tx/s", m.stats.TransactionRate)),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 17 // Reserve space for header, readings and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

// runMonitorTUI runs the poll loop behind the dashboard until the user quits
func runMonitorTUI(ctx context.Context, stop context.CancelFunc, m *monitor, cm *connectionManager, stats *windbus.Statistics) error {
	model := initialMonitorModel(cm.info(), stats, m.speedAddress, m.directionAddress)
	p := tea.NewProgram(model, tea.WithAltScreen())
	m.report = p.Send

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.run(ctx, cm)
	}()

	_, err := p.Run()
	stop()
	<-done
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
