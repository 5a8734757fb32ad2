// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

// Matcher states (internal)
const (
	stateIdle = iota
	stateAwaitHeader
	statePayload
	stateVerify
	stateSuccess
	stateTimeout
)

// expectation describes the reply a transaction waits for. Header bytes are
// matched one at a time; payload bytes are read in a single timed read.
// Trailer bytes follow a recognized reply and are dropped without checking.
type expectation struct {
	header  []byte
	payload int
	trailer int
	verify  bool
}

// queryReply is the expected answer to a read query sent to address
func queryReply(address byte) expectation {
	return expectation{
		header:  []byte{address, FuncReadRegisters, responsePayloadSize},
		payload: ResponseFrameSize - 3,
		verify:  true,
	}
}

// addressAck is the expected answer to an address change sent to oldAddress
func addressAck(oldAddress byte) expectation {
	return expectation{
		header: []byte{
			oldAddress, FuncWriteRegisters,
			byte(RegisterAddress >> 8), byte(RegisterAddress & 0xFF),
			0x00, 0x01,
		},
		trailer: AddressAckFrameSize - addressAckMatchSize,
	}
}

func (e expectation) size() int {
	return len(e.header) + e.payload
}

// matcher recognizes one expected reply in a byte stream.
// A byte that does not match the expected value at the current position is
// discarded and matching restarts from the first header byte; the discarded
// byte is not re-examined as a possible start of frame.
type matcher struct {
	exp   expectation
	state int
	pos   int
	frame []byte

	discarded  int
	mismatches int
}

func newMatcher(exp expectation) *matcher {
	return &matcher{
		exp:   exp,
		state: stateIdle,
		frame: make([]byte, exp.size()),
	}
}

// reset restarts the header search
func (m *matcher) reset() {
	m.state = stateAwaitHeader
	m.pos = 0
}

// searching reports whether no partial frame is in flight
func (m *matcher) searching() bool {
	return m.state == stateAwaitHeader && m.pos == 0
}

// abandon drops a partially matched frame, counting its bytes as discarded
func (m *matcher) abandon(extra int) {
	m.discarded += m.pos + extra
	m.reset()
}

// feedHeader advances the header match by one byte
func (m *matcher) feedHeader(b byte) {
	if b != m.exp.header[m.pos] {
		m.abandon(1)
		return
	}
	m.frame[m.pos] = b
	m.pos++
	if m.pos < len(m.exp.header) {
		return
	}
	if m.exp.payload > 0 {
		m.state = statePayload
	} else {
		m.state = stateVerify
	}
}

// payloadBuffer returns the slice the payload is read into
func (m *matcher) payloadBuffer() []byte {
	return m.frame[len(m.exp.header):]
}

// completePayload records how many payload bytes arrived
func (m *matcher) completePayload(n int) {
	if n < m.exp.payload {
		m.abandon(n)
		return
	}
	m.pos += n
	m.state = stateVerify
}

// verify checks the completed frame. A checksum mismatch restarts the search.
func (m *matcher) verify() bool {
	if !m.exp.verify || VerifyChecksum(m.frame, len(m.frame)-2) {
		m.state = stateSuccess
		return true
	}
	m.mismatches++
	m.abandon(0)
	return false
}
