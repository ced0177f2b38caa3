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

// Package ofp implements the subset of the OpenFlow 1.3 wire protocol this
// control plane speaks: Hello, FeaturesRequest/Reply, EchoRequest/Reply,
// PacketIn/PacketOut, FlowMod, MeterMod, GroupMod, PortStatsRequest/Reply,
// QueueStatsRequest/Reply, PortStatus and OFPT_ERROR.
package ofp

// Version is the only OpenFlow version this controller advertises or accepts.
const Version uint8 = 0x04

// Message types (ofp_type).
const (
	TypeHello uint8 = iota
	TypeError
	TypeEchoRequest
	TypeEchoReply
	TypeExperimenter
	TypeFeaturesRequest
	TypeFeaturesReply
	TypeGetConfigRequest
	TypeGetConfigReply
	TypeSetConfig
	TypePacketIn
	TypeFlowRemoved
	TypePortStatus
	TypePacketOut
	TypeFlowMod
	TypeGroupMod
	TypePortMod
	TypeTableMod
	TypeMultipartRequest
	TypeMultipartReply
	TypeBarrierRequest
	TypeBarrierReply
	TypeQueueGetConfigRequest
	TypeQueueGetConfigReply
	TypeRoleRequest
	TypeRoleReply
	TypeGetAsyncRequest
	TypeGetAsyncReply
	TypeSetAsync
	TypeMeterMod
)

// Multipart (stats) types used by PortStatsRequest/Reply and
// QueueStatsRequest/Reply, carried in the multipart header's Type field.
const (
	MultipartPortStats  uint16 = 4
	MultipartQueueStats uint16 = 5
)

// Special port numbers (ofp_port_no).
const (
	PortMax       uint32 = 0xffffff00
	PortInPort    uint32 = 0xfffffff8
	PortController uint32 = 0xfffffffd
	PortFlood     uint32 = 0xfffffffb
	PortAll       uint32 = 0xfffffffc
	PortAny       uint32 = 0xffffffff
)

// QueueAll requests stats for every queue on a port.
const QueueAll uint32 = 0xffffffff

// GroupAll is the wildcard out_group used in FlowMod when the group is not
// part of the match.
const GroupAll uint32 = 0xffffffff

// Buffer id sentinel meaning "no buffer, data is attached".
const NoBuffer uint32 = 0xffffffff

// PacketIn reasons.
const (
	ReasonNoMatch uint8 = iota
	ReasonAction
	ReasonInvalidTTL
)

// Controller-max-len sentinel requesting the whole packet.
const ControllerMaxLenNoBuffer uint16 = 0xffff

// FlowMod commands.
const (
	FlowModAdd uint8 = iota
	FlowModModify
	FlowModModifyStrict
	FlowModDelete
	FlowModDeleteStrict
)

// FlowMod flags.
const FlowModFlagSendFlowRem uint16 = 1 << 0

// Instruction types.
const (
	InstructionApplyActions uint16 = 4
	InstructionMeter        uint16 = 6
)

// Action types.
const (
	ActionOutput   uint16 = 0
	ActionSetField uint16 = 25
)

// OXM field classes/types used by the match and SetField builders.
const (
	OXMClassOpenflowBasic uint16 = 0x8000

	OXMFieldInPort  uint8 = 0
	OXMFieldEthDst  uint8 = 3
	OXMFieldEthSrc  uint8 = 4
	OXMFieldEthType uint8 = 5
	OXMFieldIPProto uint8 = 10
	OXMFieldIPv4Dst uint8 = 22
	OXMFieldTCPDst  uint8 = 13
	OXMFieldUDPDst  uint8 = 17
)

// EtherTypes relevant to classification.
const (
	EthTypeIPv4 uint16 = 0x0800
	EthTypeARP  uint16 = 0x0806
	EthTypeLLDP uint16 = 0x88cc
)

// IP protocol numbers.
const (
	IPProtoTCP uint8 = 6
	IPProtoUDP uint8 = 17
)

// ARP opcodes.
const (
	ARPRequest uint16 = 1
	ARPReply   uint16 = 2
)

// MeterMod commands and band types.
const (
	MeterModAdd uint8 = iota
	MeterModModify
	MeterModDelete
)

const MeterBandTypeDrop uint16 = 1

// GroupMod commands and group types.
const (
	GroupModAdd uint8 = iota
	GroupModModify
	GroupModDelete
)

const (
	GroupTypeAll uint8 = iota
	GroupTypeSelect
	GroupTypeIndirect
	GroupTypeFastFailover
)

// ErrorType/code for OFPT_ERROR used to reject a non-1.3 Hello.
const (
	ErrTypeHelloFailed uint16 = 0
	ErrCodeIncompatible uint16 = 0
)
