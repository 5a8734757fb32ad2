// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package windbus

// SectorCount is the number of compass sectors a direction sensor reports
const SectorCount = 16

var sectorNames = [SectorCount]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Sector is a wind direction sector code. Sector 0 is north and codes
// increase clockwise in 22.5 degree steps.
type Sector uint16

// Valid reports whether the code names one of the 16 sectors
func (s Sector) Valid() bool {
	return s < SectorCount
}

// Degrees returns the sector's center bearing
func (s Sector) Degrees() float64 {
	return float64(s) * 360.0 / SectorCount
}

// String returns the compass point name, or "?" for an invalid code
func (s Sector) String() string {
	if !s.Valid() {
		return "?"
	}
	return sectorNames[s]
}
