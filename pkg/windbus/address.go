// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

import (
	"context"

	"go.uber.org/zap"
)

// ModifyAddress moves the sensor at oldAddress to newAddress. Pass
// AddressBroadcast as oldAddress to reach whichever single sensor is
// connected.
//
// On acknowledgment the configured PowerCyclePrompter is told and true is
// returned. The new address only takes effect once the sensor has been
// powered off and on again; the prompter should not block.
func (b *Bus) ModifyAddress(ctx context.Context, oldAddress, newAddress byte) (bool, error) {
	req := BuildAddressChange(oldAddress, newAddress)
	_, report, err := b.transact(ctx, KindAddressChange, oldAddress, req[:], addressAck(oldAddress))
	if err != nil {
		b.logger.Warn("address change not acknowledged",
			zap.Uint8("old_address", oldAddress),
			zap.Uint8("new_address", newAddress),
			zap.Int("sends", report.Sends),
			zap.Duration("elapsed", report.Elapsed),
			zap.Error(err))
		return false, err
	}

	b.logger.Info("address change acknowledged",
		zap.Uint8("old_address", oldAddress),
		zap.Uint8("new_address", newAddress))

	if b.prompter != nil {
		b.prompter.PromptPowerCycle(oldAddress, newAddress)
	}
	return true, nil
}
