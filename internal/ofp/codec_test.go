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
	"bytes"
	"net"
	"testing"
)

func splitMessage(t *testing.T, raw []byte) (Header, []byte) {
	t.Helper()
	h, err := ParseHeader(raw)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if int(h.Length) != len(raw) {
		t.Fatalf("header length %d does not match buffer length %d", h.Length, len(raw))
	}
	return h, raw[HeaderLen:]
}

func TestFeaturesReplyRoundTrip(t *testing.T) {
	raw := FeaturesReply{XID: 7, DPID: 256, NBuffers: 100, NTables: 4}.Marshal()
	h, body := splitMessage(t, raw)
	got, err := Decode(h, body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	fr, ok := got.(FeaturesReply)
	if !ok {
		t.Fatalf("expected FeaturesReply, got %T", got)
	}
	if fr.DPID != 256 || fr.NBuffers != 100 || fr.NTables != 4 || fr.XID != 7 {
		t.Fatalf("unexpected decoded value: %+v", fr)
	}
}

func TestPacketInRoundTripWithMatchAndPayload(t *testing.T) {
	port := uint32(3)
	ethType := EthTypeIPv4
	proto := IPProtoTCP
	tcpDst := uint16(5003)
	payload := []byte{0xde, 0xad, 0xbe, 0xef}

	raw := PacketIn{
		XID:      42,
		BufferID: NoBuffer,
		TotalLen: uint16(len(payload)),
		Reason:   ReasonNoMatch,
		TableID:  0,
		Cookie:   0,
		Match: Match{
			InPort:  &port,
			EthType: &ethType,
			IPv4Dst: net.IPv4(10, 0, 1, 5),
			IPProto: &proto,
			TCPDst:  &tcpDst,
		},
		Data: payload,
	}.Marshal()

	h, body := splitMessage(t, raw)
	got, err := Decode(h, body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	pi, ok := got.(PacketIn)
	if !ok {
		t.Fatalf("expected PacketIn, got %T", got)
	}
	if pi.BufferID != NoBuffer || pi.Reason != ReasonNoMatch {
		t.Fatalf("unexpected fixed fields: %+v", pi)
	}
	if pi.Match.InPort == nil || *pi.Match.InPort != port {
		t.Fatalf("expected in_port %d, got %+v", port, pi.Match.InPort)
	}
	if pi.Match.EthType == nil || *pi.Match.EthType != EthTypeIPv4 {
		t.Fatalf("expected eth_type ipv4, got %+v", pi.Match.EthType)
	}
	if pi.Match.IPv4Dst == nil || !pi.Match.IPv4Dst.Equal(net.IPv4(10, 0, 1, 5)) {
		t.Fatalf("expected ipv4_dst 10.0.1.5, got %v", pi.Match.IPv4Dst)
	}
	if pi.Match.TCPDst == nil || *pi.Match.TCPDst != tcpDst {
		t.Fatalf("expected tcp_dst %d, got %+v", tcpDst, pi.Match.TCPDst)
	}
	if !bytes.Equal(pi.Data, payload) {
		t.Fatalf("expected payload %x, got %x", payload, pi.Data)
	}
}

func TestPortStatsReplyRoundTrip(t *testing.T) {
	raw := PortStatsReply{
		XID: 1,
		Entries: []PortStatsEntry{
			{PortNo: 1, RxBytes: 100, TxBytes: 200, RxDropped: 1, TxDropped: 2},
			{PortNo: 2, RxBytes: 300, TxBytes: 400, RxDropped: 0, TxDropped: 0},
		},
	}.Marshal()
	h, body := splitMessage(t, raw)
	got, err := Decode(h, body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	r, ok := got.(PortStatsReply)
	if !ok {
		t.Fatalf("expected PortStatsReply, got %T", got)
	}
	if len(r.Entries) != 2 || r.Entries[1].TxBytes != 400 {
		t.Fatalf("unexpected entries: %+v", r.Entries)
	}
}

func TestQueueStatsReplyRoundTrip(t *testing.T) {
	raw := QueueStatsReply{
		XID: 2,
		Entries: []QueueStatsEntry{
			{PortNo: 1, QueueID: 0, TxBytes: 50, TxErrors: 3},
		},
	}.Marshal()
	h, body := splitMessage(t, raw)
	got, err := Decode(h, body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	r, ok := got.(QueueStatsReply)
	if !ok {
		t.Fatalf("expected QueueStatsReply, got %T", got)
	}
	if len(r.Entries) != 1 || r.Entries[0].TxErrors != 3 {
		t.Fatalf("unexpected entries: %+v", r.Entries)
	}
}

func TestPortStatusRoundTrip(t *testing.T) {
	raw := PortStatus{XID: 3, Reason: 1, PortNo: 5}.Marshal()
	h, body := splitMessage(t, raw)
	got, err := Decode(h, body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ps, ok := got.(PortStatus)
	if !ok {
		t.Fatalf("expected PortStatus, got %T", got)
	}
	if ps.PortNo != 5 || ps.Reason != 1 {
		t.Fatalf("unexpected port status: %+v", ps)
	}
}

func TestHelloAndEchoRoundTrip(t *testing.T) {
	raw := Hello{XID: 1}.Marshal()
	h, body := splitMessage(t, raw)
	if _, err := Decode(h, body); err != nil {
		t.Fatalf("Decode Hello: %v", err)
	}

	raw = EchoRequest{XID: 9, Data: []byte("ping")}.Marshal()
	h, body = splitMessage(t, raw)
	got, err := Decode(h, body)
	if err != nil {
		t.Fatalf("Decode EchoRequest: %v", err)
	}
	er, ok := got.(EchoRequest)
	if !ok || !bytes.Equal(er.Data, []byte("ping")) {
		t.Fatalf("expected echoed payload, got %+v ok=%v", got, ok)
	}
}

func TestFlowModWithMeterInstructionHeaderLengthMatchesBuffer(t *testing.T) {
	dstMAC, _ := net.ParseMAC("00:00:00:00:00:02")
	srcMAC, _ := net.ParseMAC("00:00:00:00:01:00")
	raw := FlowMod{
		XID:         1,
		TableID:     0,
		Command:     FlowModAdd,
		IdleTimeout: 60,
		Priority:    10,
		BufferID:    NoBuffer,
		OutPort:     PortAny,
		OutGroup:    GroupAll,
		Match: Match{
			IPv4Dst: net.IPv4(10, 0, 100, 2),
		},
		Instructions: []Instruction{
			Meter{MeterID: 10},
			ApplyActions{Actions: []Action{
				SetEthSrc{MAC: srcMAC},
				SetEthDst{MAC: dstMAC},
				SetQueue{QueueID: 1},
				Output{Port: 1},
			}},
		},
	}.Marshal()

	h, err := ParseHeader(raw)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.Type != TypeFlowMod {
		t.Fatalf("expected TypeFlowMod, got %d", h.Type)
	}
	if int(h.Length) != len(raw) {
		t.Fatalf("declared length %d does not match buffer %d", h.Length, len(raw))
	}
}

func TestUnmarshalActionsRejectsUnknownType(t *testing.T) {
	b := make([]byte, 8)
	b[1] = 99 // unknown action type
	b[3] = 8
	if _, err := unmarshalActions(b); err == nil {
		t.Fatalf("expected error for unknown action type")
	}
}
