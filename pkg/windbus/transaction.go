// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// transaction is one request/reply exchange in progress
type transaction struct {
	kind    string
	address byte
	request []byte
	match   *matcher
	report  Report
}

// transact writes request and polls the port until exp is recognized, the
// deadline passes or ctx is done. It returns the matched reply bytes.
func (b *Bus) transact(ctx context.Context, kind string, address byte, request []byte, exp expectation) ([]byte, Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx := &transaction{
		kind:    kind,
		address: address,
		request: request,
		match:   newMatcher(exp),
		report:  Report{Kind: kind, Address: address},
	}

	frame, err := b.run(ctx, tx)

	switch {
	case err == nil:
		tx.report.Result = ResultOK
	case errors.Is(err, ErrTimeout):
		tx.report.Result = ResultTimeout
	case ctx.Err() != nil:
		tx.report.Result = ResultCanceled
	default:
		tx.report.Result = ResultError
	}
	tx.report.ChecksumMismatches = tx.match.mismatches
	tx.report.DiscardedBytes = tx.match.discarded

	if b.observer != nil {
		b.observer.ObserveTransaction(tx.report)
	}
	return frame, tx.report, err
}

func (b *Bus) run(ctx context.Context, tx *transaction) ([]byte, error) {
	log := b.logger.With(zap.String("kind", tx.kind), zap.Uint8("address", tx.address))
	m := tx.match
	one := make([]byte, 1)

	start := time.Now()
	defer func() { tx.report.Elapsed = time.Since(start) }()

	if err := b.send(tx); err != nil {
		return nil, err
	}
	lastSend := time.Now()
	m.reset()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if time.Since(start) > b.timing.Deadline {
			m.state = stateTimeout
			log.Warn("transaction timed out",
				zap.Int("resends", tx.report.Resends),
				zap.Int("checksum_mismatches", m.mismatches),
				zap.Int("discarded_bytes", m.discarded))
			return nil, ErrTimeout
		}

		// Never resend while a reply is arriving; the line is half-duplex
		if m.searching() && time.Since(lastSend) > b.timing.ResendInterval {
			if err := b.send(tx); err != nil {
				return nil, err
			}
			tx.report.Resends++
			lastSend = time.Now()
			log.Debug("request resent", zap.Int("resends", tx.report.Resends))
		}

		switch m.state {
		case stateAwaitHeader:
			n, err := ReadN(b.port, one, b.timing.ByteWindow)
			if err != nil {
				return nil, fmt.Errorf("windbus: read: %w", err)
			}
			if n == 0 {
				// Silence in the middle of a frame abandons it
				if m.pos > 0 {
					m.abandon(0)
				}
				continue
			}
			m.feedHeader(one[0])

		case statePayload:
			n, err := ReadN(b.port, m.payloadBuffer(), b.timing.ByteWindow)
			if err != nil {
				return nil, fmt.Errorf("windbus: read: %w", err)
			}
			m.completePayload(n)

		case stateVerify:
			if m.verify() {
				log.Debug("reply recognized",
					zap.String("frame", hexBytes(m.frame)),
					zap.Int("resends", tx.report.Resends))
				b.dropTrailer(log, m.exp.trailer)
				frame := make([]byte, len(m.frame))
				copy(frame, m.frame)
				return frame, nil
			}
			log.Debug("checksum mismatch", zap.Int("mismatches", m.mismatches))

		default:
			return nil, fmt.Errorf("windbus: invalid matcher state: %d", m.state)
		}
	}
}

// dropTrailer consumes n bytes following a recognized reply so they do not
// reach the next transaction. The reply already counts as received, so a
// short or failed read only gets logged.
func (b *Bus) dropTrailer(log *zap.Logger, n int) {
	if n == 0 {
		return
	}
	buf := make([]byte, n)
	got, err := ReadN(b.port, buf, b.timing.ByteWindow)
	if err != nil {
		log.Debug("trailer read failed", zap.Error(err))
		return
	}
	log.Debug("trailer dropped", zap.String("bytes", hexBytes(buf[:got])))
}

func (b *Bus) send(tx *transaction) error {
	if _, err := b.port.Write(tx.request); err != nil {
		return fmt.Errorf("windbus: write: %w", err)
	}
	tx.report.Sends++
	return nil
}
