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
	"fmt"
	"net"
)

// Action is one FlowMod/PacketOut action. Every implementation knows its own
// wire length so instruction/bucket lists can be framed without a second pass.
type Action interface {
	marshal(b []byte) int
	wireLen() int
}

// Output sends the matched packet out a port.
type Output struct{ Port uint32 }

func (a Output) wireLen() int { return 8 }
func (a Output) marshal(b []byte) int {
	binary.BigEndian.PutUint16(b[0:2], ActionOutput)
	binary.BigEndian.PutUint16(b[2:4], uint16(a.wireLen()))
	binary.BigEndian.PutUint32(b[4:8], a.Port)
	return a.wireLen()
}

// SetEthSrc rewrites the source MAC.
type SetEthSrc struct{ MAC net.HardwareAddr }

func (a SetEthSrc) wireLen() int { return 16 }
func (a SetEthSrc) marshal(b []byte) int {
	binary.BigEndian.PutUint16(b[0:2], ActionSetField)
	binary.BigEndian.PutUint16(b[2:4], uint16(a.wireLen()))
	binary.BigEndian.PutUint16(b[4:6], OXMClassOpenflowBasic)
	b[6] = OXMFieldEthSrc
	b[7] = 6
	copy(b[8:14], padMAC(a.MAC))
	return a.wireLen()
}

// SetEthDst rewrites the destination MAC.
type SetEthDst struct{ MAC net.HardwareAddr }

func (a SetEthDst) wireLen() int { return 16 }
func (a SetEthDst) marshal(b []byte) int {
	binary.BigEndian.PutUint16(b[0:2], ActionSetField)
	binary.BigEndian.PutUint16(b[2:4], uint16(a.wireLen()))
	binary.BigEndian.PutUint16(b[4:6], OXMClassOpenflowBasic)
	b[6] = OXMFieldEthDst
	b[7] = 6
	copy(b[8:14], padMAC(a.MAC))
	return a.wireLen()
}

// SetQueue selects the egress queue a subsequent Output uses.
type SetQueue struct{ QueueID uint32 }

const actionTypeSetQueue uint16 = 21

func (a SetQueue) wireLen() int { return 8 }
func (a SetQueue) marshal(b []byte) int {
	binary.BigEndian.PutUint16(b[0:2], actionTypeSetQueue)
	binary.BigEndian.PutUint16(b[2:4], uint16(a.wireLen()))
	binary.BigEndian.PutUint32(b[4:8], a.QueueID)
	return a.wireLen()
}

func padMAC(mac net.HardwareAddr) []byte {
	out := make([]byte, 6)
	copy(out, mac)
	return out
}

func marshalActions(actions []Action) []byte {
	total := 0
	for _, a := range actions {
		total += a.wireLen()
	}
	out := make([]byte, total)
	off := 0
	for _, a := range actions {
		off += a.marshal(out[off:])
	}
	return out
}

func unmarshalActions(b []byte) ([]Action, error) {
	var out []Action
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, ErrShortBuffer
		}
		typ := binary.BigEndian.Uint16(b[0:2])
		length := int(binary.BigEndian.Uint16(b[2:4]))
		if length < 4 || length > len(b) {
			return nil, ErrShortBuffer
		}
		body := b[4:length]
		switch typ {
		case ActionOutput:
			out = append(out, Output{Port: binary.BigEndian.Uint32(body[0:4])})
		case ActionSetField:
			field := body[2]
			mac := make(net.HardwareAddr, 6)
			copy(mac, body[4:10])
			switch field {
			case OXMFieldEthSrc:
				out = append(out, SetEthSrc{MAC: mac})
			case OXMFieldEthDst:
				out = append(out, SetEthDst{MAC: mac})
			default:
				return nil, fmt.Errorf("ofp: unsupported oxm field %d", field)
			}
		case actionTypeSetQueue:
			out = append(out, SetQueue{QueueID: binary.BigEndian.Uint32(body[0:4])})
		default:
			return nil, fmt.Errorf("ofp: unsupported action type %d", typ)
		}
		b = b[length:]
	}
	return out, nil
}

// Match is the subset of ofp_match fields the classifier ever sets. A nil
// pointer field means "wildcard" (not present in the encoded OXM list).
type Match struct {
	InPort  *uint32
	EthType *uint16
	EthDst  net.HardwareAddr
	IPv4Dst net.IP
	IPProto *uint8
	TCPDst  *uint16
	UDPDst  *uint16
}

func (m Match) marshal() []byte {
	var b []byte
	putTLV := func(field uint8, val []byte) {
		head := make([]byte, 4)
		binary.BigEndian.PutUint16(head[0:2], OXMClassOpenflowBasic)
		head[2] = field
		head[3] = byte(len(val))
		b = append(b, head...)
		b = append(b, val...)
	}
	if m.InPort != nil {
		v := make([]byte, 4)
		binary.BigEndian.PutUint32(v, *m.InPort)
		putTLV(OXMFieldInPort, v)
	}
	if m.EthType != nil {
		v := make([]byte, 2)
		binary.BigEndian.PutUint16(v, *m.EthType)
		putTLV(OXMFieldEthType, v)
	}
	if m.EthDst != nil {
		putTLV(OXMFieldEthDst, padMAC(m.EthDst))
	}
	if m.IPv4Dst != nil {
		ip4 := m.IPv4Dst.To4()
		putTLV(OXMFieldIPv4Dst, []byte{ip4[0], ip4[1], ip4[2], ip4[3]})
	}
	if m.IPProto != nil {
		putTLV(OXMFieldIPProto, []byte{*m.IPProto})
	}
	if m.TCPDst != nil {
		v := make([]byte, 2)
		binary.BigEndian.PutUint16(v, *m.TCPDst)
		putTLV(OXMFieldTCPDst, v)
	}
	if m.UDPDst != nil {
		v := make([]byte, 2)
		binary.BigEndian.PutUint16(v, *m.UDPDst)
		putTLV(OXMFieldUDPDst, v)
	}
	return b
}

func unmarshalMatch(b []byte) (Match, error) {
	var m Match
	for len(b) > 0 {
		if len(b) < 4 {
			return m, ErrShortBuffer
		}
		field := b[2]
		length := int(b[3])
		if 4+length > len(b) {
			return m, ErrShortBuffer
		}
		val := b[4 : 4+length]
		switch field {
		case OXMFieldInPort:
			v := binary.BigEndian.Uint32(val)
			m.InPort = &v
		case OXMFieldEthType:
			v := binary.BigEndian.Uint16(val)
			m.EthType = &v
		case OXMFieldEthDst:
			mac := make(net.HardwareAddr, 6)
			copy(mac, val)
			m.EthDst = mac
		case OXMFieldIPv4Dst:
			m.IPv4Dst = net.IPv4(val[0], val[1], val[2], val[3])
		case OXMFieldIPProto:
			v := val[0]
			m.IPProto = &v
		case OXMFieldTCPDst:
			v := binary.BigEndian.Uint16(val)
			m.TCPDst = &v
		case OXMFieldUDPDst:
			v := binary.BigEndian.Uint16(val)
			m.UDPDst = &v
		}
		b = b[4+length:]
	}
	return m, nil
}

// Instruction is one FlowMod instruction.
type Instruction interface {
	marshal() []byte
}

// ApplyActions runs every action in order.
type ApplyActions struct{ Actions []Action }

func (i ApplyActions) marshal() []byte {
	body := marshalActions(i.Actions)
	head := make([]byte, 8)
	binary.BigEndian.PutUint16(head[0:2], InstructionApplyActions)
	binary.BigEndian.PutUint16(head[2:4], uint16(8+len(body)))
	return append(head, body...)
}

// Meter directs the flow through a meter before Apply-Actions.
type Meter struct{ MeterID uint32 }

func (i Meter) marshal() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint16(b[0:2], InstructionMeter)
	binary.BigEndian.PutUint16(b[2:4], 8)
	binary.BigEndian.PutUint32(b[4:8], i.MeterID)
	return b
}

func unmarshalInstructions(b []byte) ([]Instruction, error) {
	var out []Instruction
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, ErrShortBuffer
		}
		typ := binary.BigEndian.Uint16(b[0:2])
		length := int(binary.BigEndian.Uint16(b[2:4]))
		if length < 4 || length > len(b) {
			return nil, ErrShortBuffer
		}
		switch typ {
		case InstructionMeter:
			out = append(out, Meter{MeterID: binary.BigEndian.Uint32(b[4:8])})
		case InstructionApplyActions:
			actions, err := unmarshalActions(b[8:length])
			if err != nil {
				return nil, err
			}
			out = append(out, ApplyActions{Actions: actions})
		default:
			return nil, fmt.Errorf("ofp: unsupported instruction type %d", typ)
		}
		b = b[length:]
	}
	return out, nil
}

func marshalInstructions(ins []Instruction) []byte {
	var out []byte
	for _, i := range ins {
		out = append(out, i.marshal()...)
	}
	return out
}

// encodeMsg writes a complete message: header followed by body.
func encodeMsg(typ uint8, xid uint32, body []byte) []byte {
	out := make([]byte, HeaderLen+len(body))
	Header{Version: Version, Type: typ, Length: uint16(len(out)), XID: xid}.Marshal(out)
	copy(out[HeaderLen:], body)
	return out
}

// Hello carries no body in this profile; both ends advertise OFP 1.3 only.
type Hello struct{ XID uint32 }

func (m Hello) Marshal() []byte { return encodeMsg(TypeHello, m.XID, nil) }

// EchoRequest/EchoReply carry an opaque payload that must be echoed back.
type EchoRequest struct {
	XID  uint32
	Data []byte
}

func (m EchoRequest) Marshal() []byte { return encodeMsg(TypeEchoRequest, m.XID, m.Data) }

type EchoReply struct {
	XID  uint32
	Data []byte
}

func (m EchoReply) Marshal() []byte { return encodeMsg(TypeEchoReply, m.XID, m.Data) }

// FeaturesRequest has no body.
type FeaturesRequest struct{ XID uint32 }

func (m FeaturesRequest) Marshal() []byte { return encodeMsg(TypeFeaturesRequest, m.XID, nil) }

// FeaturesReply reports the switch's identity.
type FeaturesReply struct {
	XID      uint32
	DPID     uint64
	NBuffers uint32
	NTables  uint8
}

func (m FeaturesReply) Marshal() []byte {
	b := make([]byte, 13)
	binary.BigEndian.PutUint64(b[0:8], m.DPID)
	binary.BigEndian.PutUint32(b[8:12], m.NBuffers)
	b[12] = m.NTables
	return encodeMsg(TypeFeaturesReply, m.XID, b)
}

func decodeFeaturesReply(body []byte) (FeaturesReply, error) {
	if len(body) < 13 {
		return FeaturesReply{}, ErrShortBuffer
	}
	return FeaturesReply{
		DPID:     binary.BigEndian.Uint64(body[0:8]),
		NBuffers: binary.BigEndian.Uint32(body[8:12]),
		NTables:  body[12],
	}, nil
}

// PacketIn delivers an unmatched or controller-routed packet.
type PacketIn struct {
	XID      uint32
	BufferID uint32
	TotalLen uint16
	Reason   uint8
	TableID  uint8
	Cookie   uint64
	Match    Match
	Data     []byte
}

func (m PacketIn) Marshal() []byte {
	match := m.Match.marshal()
	head := make([]byte, 20+len(match))
	binary.BigEndian.PutUint32(head[0:4], m.BufferID)
	binary.BigEndian.PutUint16(head[4:6], m.TotalLen)
	head[6] = m.Reason
	head[7] = m.TableID
	binary.BigEndian.PutUint64(head[8:16], m.Cookie)
	binary.BigEndian.PutUint16(head[16:18], uint16(len(match)))
	copy(head[20:], match)
	return encodeMsg(TypePacketIn, m.XID, append(head, m.Data...))
}

func decodePacketIn(body []byte) (PacketIn, error) {
	if len(body) < 20 {
		return PacketIn{}, ErrShortBuffer
	}
	matchLen := int(binary.BigEndian.Uint16(body[16:18]))
	if 20+matchLen > len(body) {
		return PacketIn{}, ErrShortBuffer
	}
	match, err := unmarshalMatch(body[20 : 20+matchLen])
	if err != nil {
		return PacketIn{}, err
	}
	return PacketIn{
		BufferID: binary.BigEndian.Uint32(body[0:4]),
		TotalLen: binary.BigEndian.Uint16(body[4:6]),
		Reason:   body[6],
		TableID:  body[7],
		Cookie:   binary.BigEndian.Uint64(body[8:16]),
		Match:    match,
		Data:     body[20+matchLen:],
	}, nil
}

// PacketOut instructs the switch to emit a buffered or embedded packet.
type PacketOut struct {
	XID      uint32
	BufferID uint32
	InPort   uint32
	Actions  []Action
	Data     []byte
}

func (m PacketOut) Marshal() []byte {
	actions := marshalActions(m.Actions)
	head := make([]byte, 16+len(actions))
	binary.BigEndian.PutUint32(head[0:4], m.BufferID)
	binary.BigEndian.PutUint32(head[4:8], m.InPort)
	binary.BigEndian.PutUint16(head[8:10], uint16(len(actions)))
	copy(head[16:], actions)
	return encodeMsg(TypePacketOut, m.XID, append(head, m.Data...))
}

// FlowMod installs, modifies, or deletes a flow entry.
type FlowMod struct {
	XID          uint32
	Cookie       uint64
	TableID      uint8
	Command      uint8
	IdleTimeout  uint16
	HardTimeout  uint16
	Priority     uint16
	BufferID     uint32
	OutPort      uint32
	OutGroup     uint32
	Flags        uint16
	Match        Match
	Instructions []Instruction
}

func (m FlowMod) Marshal() []byte {
	match := m.Match.marshal()
	instructions := marshalInstructions(m.Instructions)
	head := make([]byte, 32+len(match))
	binary.BigEndian.PutUint64(head[0:8], m.Cookie)
	head[8] = m.TableID
	head[9] = m.Command
	binary.BigEndian.PutUint16(head[10:12], m.IdleTimeout)
	binary.BigEndian.PutUint16(head[12:14], m.HardTimeout)
	binary.BigEndian.PutUint16(head[14:16], m.Priority)
	binary.BigEndian.PutUint32(head[16:20], m.BufferID)
	binary.BigEndian.PutUint32(head[20:24], m.OutPort)
	binary.BigEndian.PutUint32(head[24:28], m.OutGroup)
	binary.BigEndian.PutUint16(head[28:30], m.Flags)
	binary.BigEndian.PutUint16(head[30:32], uint16(len(match)))
	copy(head[32:], match)
	return encodeMsg(TypeFlowMod, m.XID, append(head, instructions...))
}

// MeterBand is one band of a MeterMod (only DROP is used by this profile).
type MeterBand struct {
	Type      uint16
	Rate      uint32
	BurstSize uint32
}

func (b MeterBand) marshal() []byte {
	out := make([]byte, 12)
	binary.BigEndian.PutUint16(out[0:2], b.Type)
	binary.BigEndian.PutUint16(out[2:4], 12)
	binary.BigEndian.PutUint32(out[4:8], b.Rate)
	binary.BigEndian.PutUint32(out[8:12], b.BurstSize)
	return out
}

// MeterMod allocates, updates, or deletes a meter.
type MeterMod struct {
	XID     uint32
	Command uint8
	Flags   uint16
	MeterID uint32
	Bands   []MeterBand
}

func (m MeterMod) Marshal() []byte {
	var bands []byte
	for _, b := range m.Bands {
		bands = append(bands, b.marshal()...)
	}
	head := make([]byte, 8+len(bands))
	binary.BigEndian.PutUint16(head[0:2], uint16(m.Command))
	binary.BigEndian.PutUint16(head[2:4], m.Flags)
	binary.BigEndian.PutUint32(head[4:8], m.MeterID)
	copy(head[8:], bands)
	return encodeMsg(TypeMeterMod, m.XID, head)
}

// Bucket is one GroupMod bucket.
type Bucket struct {
	Weight     uint16
	WatchPort  uint32
	WatchGroup uint32
	Actions    []Action
}

func (b Bucket) marshal() []byte {
	actions := marshalActions(b.Actions)
	head := make([]byte, 16+len(actions))
	binary.BigEndian.PutUint16(head[0:2], uint16(16+len(actions)))
	binary.BigEndian.PutUint16(head[2:4], b.Weight)
	binary.BigEndian.PutUint32(head[4:8], b.WatchPort)
	binary.BigEndian.PutUint32(head[8:12], b.WatchGroup)
	copy(head[16:], actions)
	return head
}

// GroupMod adds, modifies, or deletes a group (used for failover/select).
type GroupMod struct {
	XID     uint32
	Command uint8
	Type    uint8
	GroupID uint32
	Buckets []Bucket
}

func (m GroupMod) Marshal() []byte {
	var buckets []byte
	for _, b := range m.Buckets {
		buckets = append(buckets, b.marshal()...)
	}
	head := make([]byte, 8+len(buckets))
	binary.BigEndian.PutUint16(head[0:2], uint16(m.Command))
	head[2] = m.Type
	binary.BigEndian.PutUint32(head[4:8], m.GroupID)
	copy(head[8:], buckets)
	return encodeMsg(TypeGroupMod, m.XID, head)
}

// PortStatsRequest asks for counters on one port, or PortAll for every port.
type PortStatsRequest struct {
	XID    uint32
	PortNo uint32
}

func (m PortStatsRequest) Marshal() []byte {
	body := make([]byte, 4+8)
	binary.BigEndian.PutUint16(body[0:2], MultipartPortStats)
	binary.BigEndian.PutUint32(body[4:8], m.PortNo)
	return encodeMsg(TypeMultipartRequest, m.XID, body)
}

// PortStatsEntry is one port's counters in a PortStatsReply.
type PortStatsEntry struct {
	PortNo     uint32
	RxBytes    uint64
	TxBytes    uint64
	RxDropped  uint64
	TxDropped  uint64
}

func (e PortStatsEntry) marshal() []byte {
	b := make([]byte, 36)
	binary.BigEndian.PutUint32(b[0:4], e.PortNo)
	binary.BigEndian.PutUint64(b[4:12], e.RxBytes)
	binary.BigEndian.PutUint64(b[12:20], e.TxBytes)
	binary.BigEndian.PutUint64(b[20:28], e.RxDropped)
	binary.BigEndian.PutUint64(b[28:36], e.TxDropped)
	return b
}

func decodePortStatsEntry(b []byte) (PortStatsEntry, error) {
	if len(b) < 36 {
		return PortStatsEntry{}, ErrShortBuffer
	}
	return PortStatsEntry{
		PortNo:    binary.BigEndian.Uint32(b[0:4]),
		RxBytes:   binary.BigEndian.Uint64(b[4:12]),
		TxBytes:   binary.BigEndian.Uint64(b[12:20]),
		RxDropped: binary.BigEndian.Uint64(b[20:28]),
		TxDropped: binary.BigEndian.Uint64(b[28:36]),
	}, nil
}

const portStatsEntryLen = 36

// PortStatsReply carries one entry per reporting port.
type PortStatsReply struct {
	XID     uint32
	Entries []PortStatsEntry
}

func (m PortStatsReply) Marshal() []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:2], MultipartPortStats)
	for _, e := range m.Entries {
		body = append(body, e.marshal()...)
	}
	return encodeMsg(TypeMultipartReply, m.XID, body)
}

func decodePortStatsReply(body []byte) (PortStatsReply, error) {
	if len(body) < 4 {
		return PortStatsReply{}, ErrShortBuffer
	}
	var out PortStatsReply
	rest := body[4:]
	for len(rest) >= portStatsEntryLen {
		e, err := decodePortStatsEntry(rest[:portStatsEntryLen])
		if err != nil {
			return PortStatsReply{}, err
		}
		out.Entries = append(out.Entries, e)
		rest = rest[portStatsEntryLen:]
	}
	return out, nil
}

// QueueStatsRequest asks for counters on one (port, queue) pair, or the
// ALL/ALL wildcards.
type QueueStatsRequest struct {
	XID     uint32
	PortNo  uint32
	QueueID uint32
}

func (m QueueStatsRequest) Marshal() []byte {
	body := make([]byte, 4+8)
	binary.BigEndian.PutUint16(body[0:2], MultipartQueueStats)
	binary.BigEndian.PutUint32(body[4:8], m.PortNo)
	binary.BigEndian.PutUint32(body[8:12], m.QueueID)
	return encodeMsg(TypeMultipartRequest, m.XID, body[:12])
}

// QueueStatsEntry is one queue's counters in a QueueStatsReply.
type QueueStatsEntry struct {
	PortNo   uint32
	QueueID  uint32
	TxBytes  uint64
	TxErrors uint64
}

const queueStatsEntryLen = 24

func (e QueueStatsEntry) marshal() []byte {
	b := make([]byte, queueStatsEntryLen)
	binary.BigEndian.PutUint32(b[0:4], e.PortNo)
	binary.BigEndian.PutUint32(b[4:8], e.QueueID)
	binary.BigEndian.PutUint64(b[8:16], e.TxBytes)
	binary.BigEndian.PutUint64(b[16:24], e.TxErrors)
	return b
}

func decodeQueueStatsEntry(b []byte) (QueueStatsEntry, error) {
	if len(b) < queueStatsEntryLen {
		return QueueStatsEntry{}, ErrShortBuffer
	}
	return QueueStatsEntry{
		PortNo:   binary.BigEndian.Uint32(b[0:4]),
		QueueID:  binary.BigEndian.Uint32(b[4:8]),
		TxBytes:  binary.BigEndian.Uint64(b[8:16]),
		TxErrors: binary.BigEndian.Uint64(b[16:24]),
	}, nil
}

// QueueStatsReply carries one entry per reporting queue.
type QueueStatsReply struct {
	XID     uint32
	Entries []QueueStatsEntry
}

func (m QueueStatsReply) Marshal() []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:2], MultipartQueueStats)
	for _, e := range m.Entries {
		body = append(body, e.marshal()...)
	}
	return encodeMsg(TypeMultipartReply, m.XID, body)
}

func decodeQueueStatsReply(body []byte) (QueueStatsReply, error) {
	if len(body) < 4 {
		return QueueStatsReply{}, ErrShortBuffer
	}
	var out QueueStatsReply
	rest := body[4:]
	for len(rest) >= queueStatsEntryLen {
		e, err := decodeQueueStatsEntry(rest[:queueStatsEntryLen])
		if err != nil {
			return QueueStatsReply{}, err
		}
		out.Entries = append(out.Entries, e)
		rest = rest[queueStatsEntryLen:]
	}
	return out, nil
}

// PortStatus reports a port's link-state transition.
type PortStatus struct {
	XID    uint32
	Reason uint8
	PortNo uint32
}

func (m PortStatus) Marshal() []byte {
	b := make([]byte, 8)
	b[0] = m.Reason
	binary.BigEndian.PutUint32(b[4:8], m.PortNo)
	return encodeMsg(TypePortStatus, m.XID, b)
}

func decodePortStatus(body []byte) (PortStatus, error) {
	if len(body) < 8 {
		return PortStatus{}, ErrShortBuffer
	}
	return PortStatus{
		Reason: body[0],
		PortNo: binary.BigEndian.Uint32(body[4:8]),
	}, nil
}

// ErrorMsg is OFPT_ERROR, sent to reject an incompatible Hello.
type ErrorMsg struct {
	XID  uint32
	Type uint16
	Code uint16
	Data []byte
}

func (m ErrorMsg) Marshal() []byte {
	b := make([]byte, 4+len(m.Data))
	binary.BigEndian.PutUint16(b[0:2], m.Type)
	binary.BigEndian.PutUint16(b[2:4], m.Code)
	copy(b[4:], m.Data)
	return encodeMsg(TypeError, m.XID, b)
}

// Decode interprets a complete message (header already parsed, body is the
// bytes following it) and returns the typed value the session layer's read
// loop dispatches on.
func Decode(h Header, body []byte) (interface{}, error) {
	switch h.Type {
	case TypeHello:
		return Hello{XID: h.XID}, nil
	case TypeEchoRequest:
		return EchoRequest{XID: h.XID, Data: body}, nil
	case TypeEchoReply:
		return EchoReply{XID: h.XID, Data: body}, nil
	case TypeFeaturesReply:
		fr, err := decodeFeaturesReply(body)
		fr.XID = h.XID
		return fr, err
	case TypePacketIn:
		pi, err := decodePacketIn(body)
		pi.XID = h.XID
		return pi, err
	case TypePortStatus:
		ps, err := decodePortStatus(body)
		ps.XID = h.XID
		return ps, err
	case TypeError:
		if len(body) < 4 {
			return nil, ErrShortBuffer
		}
		return ErrorMsg{
			XID:  h.XID,
			Type: binary.BigEndian.Uint16(body[0:2]),
			Code: binary.BigEndian.Uint16(body[2:4]),
			Data: body[4:],
		}, nil
	case TypeMultipartReply:
		if len(body) < 2 {
			return nil, ErrShortBuffer
		}
		switch binary.BigEndian.Uint16(body[0:2]) {
		case MultipartPortStats:
			r, err := decodePortStatsReply(body)
			r.XID = h.XID
			return r, err
		case MultipartQueueStats:
			r, err := decodeQueueStatsReply(body)
			r.XID = h.XID
			return r, err
		default:
			return nil, fmt.Errorf("ofp: unsupported multipart type %d", binary.BigEndian.Uint16(body[0:2]))
		}
	default:
		return nil, fmt.Errorf("ofp: unsupported message type %d", h.Type)
	}
}
