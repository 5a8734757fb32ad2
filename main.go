// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Anemostat - RS-485 Wind Sensor Tool
//
// A CLI tool for polling, configuring and monitoring RS-485 wind speed and
// wind direction sensors.

package main

import (
	"os"

	"github.com/Thermoquad/anemostat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
