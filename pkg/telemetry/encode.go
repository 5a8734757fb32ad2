// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Encoding selects the payload format
type Encoding string

// Encodings
const (
	EncodingCBOR Encoding = "cbor"
	EncodingJSON Encoding = "json"
)

// ParseEncoding validates an encoding name
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case EncodingCBOR, EncodingJSON:
		return Encoding(s), nil
	case "":
		return EncodingCBOR, nil
	default:
		return "", fmt.Errorf("telemetry: unknown encoding %q", s)
	}
}

// Value is the payload published for one property
type Value struct {
	Name      string    `cbor:"name" json:"name"`
	Value     any       `cbor:"value" json:"value"`
	Timestamp time.Time `cbor:"ts" json:"ts"`
}

var cborMode = mustCBORMode()

func mustCBORMode() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// Marshal encodes v in the given encoding
func (e Encoding) Marshal(v any) ([]byte, error) {
	switch e {
	case EncodingJSON:
		return json.Marshal(v)
	case EncodingCBOR, "":
		return cborMode.Marshal(v)
	default:
		return nil, fmt.Errorf("telemetry: unknown encoding %q", string(e))
	}
}

// Unmarshal decodes data in the given encoding into v
func (e Encoding) Unmarshal(data []byte, v any) error {
	switch e {
	case EncodingJSON:
		return json.Unmarshal(data, v)
	case EncodingCBOR, "":
		return cbor.Unmarshal(data, v)
	default:
		return fmt.Errorf("telemetry: unknown encoding %q", string(e))
	}
}
