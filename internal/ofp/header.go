// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ofp

import (
	"encoding/binary"
	"errors"
)

// HeaderLen is the fixed size of the ofp_header.
const HeaderLen = 8

// ErrShortBuffer is returned by any decoder given fewer bytes than its
// fixed-size header or declared Length demands.
var ErrShortBuffer = errors.New("ofp: short buffer")

// Header is the 8-byte ofp_header present on every OpenFlow message.
type Header struct {
	Version uint8
	Type    uint8
	Length  uint16
	XID     uint32
}

// Marshal writes the header into the first 8 bytes of b. b must be at least
// HeaderLen bytes.
func (h Header) Marshal(b []byte) {
	b[0] = h.Version
	b[1] = h.Type
	binary.BigEndian.PutUint16(b[2:4], h.Length)
	binary.BigEndian.PutUint32(b[4:8], h.XID)
}

// ParseHeader reads an ofp_header from the front of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortBuffer
	}
	return Header{
		Version: b[0],
		Type:    b[1],
		Length:  binary.BigEndian.Uint16(b[2:4]),
		XID:     binary.BigEndian.Uint32(b[4:8]),
	}, nil
}
