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

// Package classify turns a PacketIn's raw payload into a forwarding
// decision: drop, synthesize an ARP reply, flood, or install a route,
// consulting the policy service only for the elastic traffic class.
package classify

import (
	"encoding/binary"
	"errors"
	"net"

	"qosctl/internal/ofp"
)

// ErrTooShort is returned by ParsePacket when the buffer is truncated below
// an Ethernet header, or below the ARP, IPv4 or TCP/UDP header it carries.
var ErrTooShort = errors.New("classify: packet too short")

// ARP holds the fields this controller needs from an ARP packet: opcode,
// sender/target hardware and protocol addresses.
type ARP struct {
	Opcode  uint16
	SrcMAC  net.HardwareAddr
	SrcIP   net.IP
	DstMAC  net.HardwareAddr
	DstIP   net.IP
}

// Packet is the minimal parse of an Ethernet frame this controller acts on.
type Packet struct {
	EthSrc  net.HardwareAddr
	EthDst  net.HardwareAddr
	EthType uint16

	ARP *ARP

	IPProto uint8
	IPv4Dst net.IP
	IPv4Src net.IP
	L4Dst   uint16 // tcp/udp destination port, if IPProto is TCP or UDP
}

// ParsePacket reads an Ethernet II frame, and if present, an ARP or IPv4(+
// TCP/UDP) payload. Unknown ethertypes and unsupported IP protocols are
// returned with only the fields the controller needs left at zero value;
// callers branch on EthType/IPProto, not on parse errors, for those cases.
func ParsePacket(data []byte) (Packet, error) {
	if len(data) < 14 {
		return Packet{}, ErrTooShort
	}
	p := Packet{
		EthDst:  net.HardwareAddr(append([]byte(nil), data[0:6]...)),
		EthSrc:  net.HardwareAddr(append([]byte(nil), data[6:12]...)),
		EthType: binary.BigEndian.Uint16(data[12:14]),
	}
	payload := data[14:]

	switch p.EthType {
	case ofp.EthTypeARP:
		a, err := parseARP(payload)
		if err != nil {
			return p, err
		}
		p.ARP = &a
	case ofp.EthTypeIPv4:
		if err := parseIPv4(payload, &p); err != nil {
			return p, err
		}
	}
	return p, nil
}

func parseARP(b []byte) (ARP, error) {
	if len(b) < 28 {
		return ARP{}, ErrTooShort
	}
	return ARP{
		Opcode: binary.BigEndian.Uint16(b[6:8]),
		SrcMAC: net.HardwareAddr(append([]byte(nil), b[8:14]...)),
		SrcIP:  net.IPv4(b[14], b[15], b[16], b[17]),
		DstMAC: net.HardwareAddr(append([]byte(nil), b[18:24]...)),
		DstIP:  net.IPv4(b[24], b[25], b[26], b[27]),
	}, nil
}

// BuildARPReply synthesizes the Ethernet+ARP frame the controller sends in
// response to a request for one of its configured gateway IPs: an ARP reply
// from replyMAC/replyIP addressed back to the original requester.
func BuildARPReply(replyMAC net.HardwareAddr, replyIP net.IP, toMAC net.HardwareAddr, toIP net.IP) []byte {
	arp := make([]byte, 28)
	binary.BigEndian.PutUint16(arp[0:2], 1) // hardware type: Ethernet
	binary.BigEndian.PutUint16(arp[2:4], ofp.EthTypeIPv4)
	arp[4] = 6 // hardware address length
	arp[5] = 4 // protocol address length
	binary.BigEndian.PutUint16(arp[6:8], ofp.ARPReply)
	copy(arp[8:14], replyMAC)
	copy(arp[14:18], replyIP.To4())
	copy(arp[18:24], toMAC)
	copy(arp[24:28], toIP.To4())

	frame := make([]byte, 14+len(arp))
	copy(frame[0:6], toMAC)
	copy(frame[6:12], replyMAC)
	binary.BigEndian.PutUint16(frame[12:14], ofp.EthTypeARP)
	copy(frame[14:], arp)
	return frame
}

func parseIPv4(b []byte, p *Packet) error {
	if len(b) < 20 {
		return ErrTooShort
	}
	ihl := int(b[0]&0x0f) * 4
	if ihl < 20 || len(b) < ihl {
		return ErrTooShort
	}
	p.IPProto = b[9]
	p.IPv4Src = net.IPv4(b[12], b[13], b[14], b[15])
	p.IPv4Dst = net.IPv4(b[16], b[17], b[18], b[19])

	l4 := b[ihl:]
	switch p.IPProto {
	case ofp.IPProtoTCP, ofp.IPProtoUDP:
		if len(l4) < 4 {
			return ErrTooShort
		}
		p.L4Dst = binary.BigEndian.Uint16(l4[2:4])
	}
	return nil
}
