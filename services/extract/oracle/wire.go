// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// CircuitFiles is the ProcessCircuitFiles request:
//
//	message CircuitFiles {
//	  string el_content = 1;
//	  string csv_content = 2;
//	  string json_content = 3;
//	}
type CircuitFiles struct {
	EdgeList string
	NodeCSV  string
	Summary  string
}

// DelayReply is the ProcessCircuitFiles response:
//
//	message DelayReply {
//	  float delay = 1;
//	}
//
// A double on the wire is accepted too.
type DelayReply struct {
	Delay float64
}

// wireCodec encodes the two messages above with protowire. Its name is
// "proto" so the content-type matches what stock servers expect.
type wireCodec struct{}

func (wireCodec) Name() string { return "proto" }

func (wireCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *CircuitFiles:
		var b []byte
		b = appendString(b, 1, m.EdgeList)
		b = appendString(b, 2, m.NodeCSV)
		b = appendString(b, 3, m.Summary)
		return b, nil
	case *DelayReply:
		var b []byte
		if m.Delay != 0 {
			b = protowire.AppendTag(b, 1, protowire.Fixed32Type)
			b = protowire.AppendFixed32(b, math.Float32bits(float32(m.Delay)))
		}
		return b, nil
	default:
		return nil, fmt.Errorf("wire codec: unsupported message %T", v)
	}
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *CircuitFiles:
		*m = CircuitFiles{}
		return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if typ != protowire.BytesType || num < 1 || num > 3 {
				return -1, nil
			}
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			switch num {
			case 1:
				m.EdgeList = s
			case 2:
				m.NodeCSV = s
			case 3:
				m.Summary = s
			}
			return n, nil
		})
	case *DelayReply:
		*m = DelayReply{}
		return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num != 1 {
				return -1, nil
			}
			switch typ {
			case protowire.Fixed32Type:
				x, n := protowire.ConsumeFixed32(b)
				if n < 0 {
					return 0, protowire.ParseError(n)
				}
				m.Delay = float64(math.Float32frombits(x))
				return n, nil
			case protowire.Fixed64Type:
				x, n := protowire.ConsumeFixed64(b)
				if n < 0 {
					return 0, protowire.ParseError(n)
				}
				m.Delay = math.Float64frombits(x)
				return n, nil
			}
			return -1, nil
		})
	default:
		return fmt.Errorf("wire codec: unsupported message %T", v)
	}
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// consumeFields walks data field by field. field returns the bytes it
// consumed, or -1 to have the value skipped.
func consumeFields(data []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		used, err := field(num, typ, data)
		if err != nil {
			return err
		}
		if used < 0 {
			used = protowire.ConsumeFieldValue(num, typ, data)
			if used < 0 {
				return protowire.ParseError(used)
			}
		}
		data = data[used:]
	}
	return nil
}
