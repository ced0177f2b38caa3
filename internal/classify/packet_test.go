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

package classify

import (
	"encoding/binary"
	"net"
	"testing"

	"qosctl/internal/ofp"
)

func buildEthernet(dst, src net.HardwareAddr, ethType uint16, payload []byte) []byte {
	b := make([]byte, 14+len(payload))
	copy(b[0:6], dst)
	copy(b[6:12], src)
	binary.BigEndian.PutUint16(b[12:14], ethType)
	copy(b[14:], payload)
	return b
}

func buildIPv4TCP(dstIP, srcIP net.IP, dstPort uint16) []byte {
	hdr := make([]byte, 20)
	hdr[0] = 0x45 // version 4, IHL 5
	hdr[9] = ofp.IPProtoTCP
	copy(hdr[12:16], srcIP.To4())
	copy(hdr[16:20], dstIP.To4())
	tcp := make([]byte, 20)
	binary.BigEndian.PutUint16(tcp[0:2], 4000)
	binary.BigEndian.PutUint16(tcp[2:4], dstPort)
	return append(hdr, tcp...)
}

func TestParsePacketIPv4TCP(t *testing.T) {
	src, _ := net.ParseMAC("00:00:00:00:00:01")
	dst, _ := net.ParseMAC("00:00:00:00:01:00")
	raw := buildEthernet(dst, src, ofp.EthTypeIPv4, buildIPv4TCP(net.IPv4(10, 0, 1, 1), net.IPv4(10, 0, 2, 4), 5003))

	p, err := ParsePacket(raw)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if p.EthType != ofp.EthTypeIPv4 {
		t.Fatalf("expected ethtype ipv4, got %#x", p.EthType)
	}
	if p.IPProto != ofp.IPProtoTCP {
		t.Fatalf("expected tcp, got proto %d", p.IPProto)
	}
	if !p.IPv4Dst.Equal(net.IPv4(10, 0, 1, 1)) {
		t.Fatalf("expected dst 10.0.1.1, got %v", p.IPv4Dst)
	}
	if p.L4Dst != 5003 {
		t.Fatalf("expected l4 dst port 5003, got %d", p.L4Dst)
	}
}

func TestParsePacketARPRequest(t *testing.T) {
	src, _ := net.ParseMAC("00:00:00:00:00:01")
	dst, _ := net.ParseMAC("ff:ff:ff:ff:ff:ff")

	arp := make([]byte, 28)
	binary.BigEndian.PutUint16(arp[6:8], ofp.ARPRequest)
	copy(arp[8:14], src)
	copy(arp[14:18], net.IPv4(10, 0, 1, 1).To4())
	copy(arp[24:28], net.IPv4(10, 0, 1, 254).To4())

	raw := buildEthernet(dst, src, ofp.EthTypeARP, arp)
	p, err := ParsePacket(raw)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if p.ARP == nil {
		t.Fatal("expected ARP to be parsed")
	}
	if p.ARP.Opcode != ofp.ARPRequest {
		t.Fatalf("expected ARPRequest opcode, got %d", p.ARP.Opcode)
	}
	if !p.ARP.DstIP.Equal(net.IPv4(10, 0, 1, 254)) {
		t.Fatalf("expected dst ip 10.0.1.254, got %v", p.ARP.DstIP)
	}
}

func TestParsePacketTooShortReturnsError(t *testing.T) {
	if _, err := ParsePacket([]byte{1, 2, 3}); err != ErrTooShort {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}
