// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func feed(m *matcher, b []byte) {
	for _, v := range b {
		if m.state != stateAwaitHeader {
			return
		}
		m.feedHeader(v)
	}
}

func TestMatcher_QueryReply(t *testing.T) {
	m := newMatcher(queryReply(0x05))
	m.reset()
	assert.True(t, m.searching())

	feed(m, []byte{0x05, 0x03})
	assert.False(t, m.searching())
	assert.Equal(t, stateAwaitHeader, m.state)

	feed(m, []byte{0x02})
	assert.Equal(t, statePayload, m.state)
	assert.Len(t, m.payloadBuffer(), 4)

	frame := BuildResponse(0x05, 300)
	copy(m.payloadBuffer(), frame[3:])
	m.completePayload(4)
	assert.Equal(t, stateVerify, m.state)
	assert.True(t, m.verify())
	assert.Equal(t, stateSuccess, m.state)
	assert.Equal(t, frame[:], m.frame)
}

func TestMatcher_MismatchDiscardsAndRestarts(t *testing.T) {
	m := newMatcher(queryReply(0x05))
	m.reset()

	feed(m, []byte{0x05, 0x05})
	assert.True(t, m.searching())
	assert.Equal(t, 2, m.discarded)

	feed(m, []byte{0x03})
	assert.True(t, m.searching())
	assert.Equal(t, 3, m.discarded)
}

func TestMatcher_ShortPayload(t *testing.T) {
	m := newMatcher(queryReply(0x01))
	m.reset()
	feed(m, []byte{0x01, 0x03, 0x02})

	m.completePayload(2)
	assert.True(t, m.searching())
	assert.Equal(t, 5, m.discarded)
}

func TestMatcher_ChecksumMismatch(t *testing.T) {
	m := newMatcher(queryReply(0x01))
	m.reset()
	feed(m, []byte{0x01, 0x03, 0x02})

	copy(m.payloadBuffer(), []byte{0x00, 0x10, 0xDE, 0xAD})
	m.completePayload(4)
	assert.False(t, m.verify())
	assert.Equal(t, 1, m.mismatches)
	assert.True(t, m.searching())
}

func TestMatcher_AddressAck(t *testing.T) {
	m := newMatcher(addressAck(0x02))
	m.reset()

	feed(m, []byte{0x02, 0x10, 0x10, 0x00, 0x00, 0x01})
	assert.Equal(t, stateVerify, m.state)
	assert.True(t, m.verify())
}

func TestMatcher_Abandon(t *testing.T) {
	m := newMatcher(queryReply(0x05))
	m.reset()
	feed(m, []byte{0x05, 0x03})

	m.abandon(0)
	assert.True(t, m.searching())
	assert.Equal(t, 2, m.discarded)
}
