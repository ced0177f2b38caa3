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
	"net"
	"strconv"
	"strings"

	"qosctl/internal/ofp"
)

// Kind is the forwarding decision Classify reached for one packet.
type Kind int

const (
	// KindDrop silently discards the packet (LLDP, or IP addressed to a
	// gateway the controller already answered via ARP).
	KindDrop Kind = iota
	// KindARPReply means the controller should synthesize and emit an ARP
	// reply itself rather than forward the request.
	KindARPReply
	// KindFlood means the packet should be sent out every port but the one
	// it arrived on (no destination known yet).
	KindFlood
	// KindInstall means a FlowMod/PacketOut pair is ready to send with no
	// further input: priority-class traffic (fixed queue, no meter) or
	// unclassified default forwarding.
	KindInstall
	// KindConsultPolicy means the elastic traffic class was matched: the
	// caller must call the policy service's act() with DstPrefix and
	// Candidates, then call FinishElastic with the chosen candidate.
	KindConsultPolicy
)

// Candidate is one action the policy service may choose among for an
// elastic-class flow.
type Candidate struct {
	ActionIdx     int64
	OutPort       uint32
	QueueID       uint32
	MeterRateKbps uint64
}

// Decision is the result of classifying one PacketIn.
type Decision struct {
	Kind Kind

	// KindARPReply
	ARPReplyToMAC net.HardwareAddr
	ARPSrcIP      net.IP
	ARPDstIP      net.IP

	// KindInstall
	Priority uint16
	Match    ofp.Match
	Actions  []ofp.Action

	// KindConsultPolicy
	DstPrefix  string
	Candidates []Candidate
}

// CloudEgress names the single, policy-independent egress port used for a
// dual-homed cloud subnet at one switch, preventing the forwarding loop a
// policy-chosen alternate port would otherwise create.
type CloudEgress struct {
	MainPort uint32
}

type portKey struct {
	dpid uint64
	port uint32
}

// Config is the static topology/addressing knowledge the classifier needs.
// DefaultConfig recovers the values the original single-process controller
// hard-coded; every field can be overridden for other topologies.
type Config struct {
	// RoutingTable maps dpid -> ("<octet>.<octet>.<octet>" | "default") -> out_port.
	RoutingTable map[uint64]map[string]uint32
	// StaticARP maps a host IP string to its MAC, avoiding a flood for
	// already-known destinations.
	StaticARP map[string]net.HardwareAddr
	// GatewayIPs is the set of virtual gateway IPs the controller answers
	// ARP requests for directly.
	GatewayIPs map[string]bool
	GatewayMAC net.HardwareAddr
	CloudMAC   net.HardwareAddr
	// CloudSubnetPrefixes are dst-prefixes ("10.0.100", "10.0.200") whose
	// egress port is fixed per CloudLoopPrevention rather than chosen by
	// policy, because the cloud host is dual-homed and a policy-chosen
	// alternate would create a forwarding loop.
	CloudSubnetPrefixes []string
	CloudLoopPrevention map[uint64]CloudEgress
	// AlternatePorts lists the egress ports the policy service may choose
	// among for elastic-class traffic at a dpid, outside cloud subnets. A
	// dpid absent from this map offers only its routed port.
	AlternatePorts   map[uint64][]uint32
	PortCapacityKbps map[portKey]uint32
	DefaultCapacity  uint32

	CritUDPPort uint16
	TelUDPPort  uint16
	BulkTCPPort uint16
}

// DefaultConfig returns the topology recovered from the original
// traditional (non-learning) controller: three switches, a routing table
// keyed by destination subnet prefix, a static ARP table, and the cloud
// dual-homing loop-prevention rule at the core switch (dpid 256).
func DefaultConfig() Config {
	gatewayMAC, _ := net.ParseMAC("00:00:00:00:01:00")
	cloudMAC, _ := net.ParseMAC("00:00:00:00:00:ff")

	arp := map[string]net.HardwareAddr{}
	for ip, mac := range map[string]string{
		"10.0.100.2": "00:00:00:00:00:ff",
		"10.0.200.2": "00:00:00:00:00:ff",
		"10.0.1.1":   "00:00:00:00:00:01",
		"10.0.1.2":   "00:00:00:00:00:02",
		"10.0.1.3":   "00:00:00:00:00:03",
		"10.0.2.4":   "00:00:00:00:00:04",
		"10.0.2.5":   "00:00:00:00:00:05",
		"10.0.3.6":   "00:00:00:00:00:06",
		"10.0.3.7":   "00:00:00:00:00:07",
		"10.0.4.8":   "00:00:00:00:00:08",
		"10.0.4.9":   "00:00:00:00:00:09",
		"10.0.4.10":  "00:00:00:00:00:0a",
	} {
		m, _ := net.ParseMAC(mac)
		arp[ip] = m
	}

	gwIPs := map[string]bool{}
	for _, ip := range []string{
		"10.0.1.254", "10.0.2.254", "10.0.3.254", "10.0.4.254",
		"10.0.100.1", "10.0.200.1",
	} {
		gwIPs[ip] = true
	}

	return Config{
		RoutingTable: map[uint64]map[string]uint32{
			256: {
				"10.0.100": 1,
				"10.0.200": 1,
				"10.0.1":   2,
				"10.0.2":   3,
				"10.0.3":   4,
				"10.0.4":   5,
			},
			512: {"10.0.3": 2, "default": 1},
			768: {
				"10.0.4":   2,
				"10.0.100": 3,
				"10.0.200": 3,
				"default":  1,
			},
		},
		StaticARP:           arp,
		GatewayIPs:          gwIPs,
		GatewayMAC:          gatewayMAC,
		CloudMAC:            cloudMAC,
		CloudSubnetPrefixes: []string{"10.0.100", "10.0.200"},
		CloudLoopPrevention: map[uint64]CloudEgress{
			256: {MainPort: 1},
			768: {MainPort: 3},
		},
		AlternatePorts: map[uint64][]uint32{
			256: {1, 5},
			768: {3, 1},
		},
		PortCapacityKbps: map[portKey]uint32{
			{dpid: 256, port: 1}: 1500,
			{dpid: 256, port: 5}: 50000,
			{dpid: 768, port: 3}: 10000,
			{dpid: 768, port: 1}: 50000,
		},
		DefaultCapacity: 10000,
		CritUDPPort:     5001,
		TelUDPPort:      5002,
		BulkTCPPort:     5003,
	}
}

func (c Config) capacityKbps(dpid uint64, port uint32) uint64 {
	if v, ok := c.PortCapacityKbps[portKey{dpid: dpid, port: port}]; ok {
		return uint64(v)
	}
	return uint64(c.DefaultCapacity)
}

func subnetPrefix(ip net.IP) string {
	v4 := ip.To4()
	if v4 == nil {
		return ""
	}
	return strings.Join([]string{
		strconv.Itoa(int(v4[0])), strconv.Itoa(int(v4[1])), strconv.Itoa(int(v4[2])),
	}, ".")
}

func (c Config) isCloudSubnet(prefix string) bool {
	for _, p := range c.CloudSubnetPrefixes {
		if p == prefix {
			return true
		}
	}
	return false
}

func (c Config) route(dpid uint64, prefix string) (uint32, bool) {
	table, ok := c.RoutingTable[dpid]
	if !ok {
		return 0, false
	}
	if port, ok := table[prefix]; ok {
		return port, true
	}
	if port, ok := table["default"]; ok {
		return port, true
	}
	return 0, false
}

func (c Config) resolveMAC(dstIP net.IP, prefix string) (net.HardwareAddr, bool) {
	if mac, ok := c.StaticARP[dstIP.String()]; ok {
		return mac, true
	}
	if c.isCloudSubnet(prefix) {
		return c.CloudMAC, true
	}
	return nil, false
}

// Classify applies spec §4.G's decision procedure to one parsed packet.
func Classify(dpid uint64, pkt Packet, cfg Config) Decision {
	if pkt.EthType == ofp.EthTypeLLDP {
		return Decision{Kind: KindDrop}
	}

	if pkt.EthType == ofp.EthTypeARP && pkt.ARP != nil {
		if pkt.ARP.Opcode == ofp.ARPRequest {
			if cfg.GatewayIPs[pkt.ARP.DstIP.String()] {
				return Decision{
					Kind:          KindARPReply,
					ARPReplyToMAC: pkt.ARP.SrcMAC,
					ARPSrcIP:      pkt.ARP.DstIP,
					ARPDstIP:      pkt.ARP.SrcIP,
				}
			}
			return Decision{Kind: KindFlood}
		}
		return Decision{Kind: KindFlood}
	}

	if pkt.EthType != ofp.EthTypeIPv4 || pkt.IPv4Dst == nil {
		return Decision{Kind: KindFlood}
	}

	if cfg.GatewayIPs[pkt.IPv4Dst.String()] {
		return Decision{Kind: KindDrop}
	}

	prefix := subnetPrefix(pkt.IPv4Dst)
	outPort, ok := cfg.route(dpid, prefix)
	if !ok {
		return Decision{Kind: KindFlood}
	}

	dstMAC, ok := cfg.resolveMAC(pkt.IPv4Dst, prefix)
	if !ok {
		return Decision{Kind: KindFlood}
	}

	ethType := ofp.EthTypeIPv4
	isCritOrTel := (pkt.IPProto == ofp.IPProtoUDP) && (pkt.L4Dst == cfg.CritUDPPort || pkt.L4Dst == cfg.TelUDPPort)
	isBulk := (pkt.IPProto == ofp.IPProtoTCP || pkt.IPProto == ofp.IPProtoUDP) && pkt.L4Dst == cfg.BulkTCPPort

	switch {
	case isCritOrTel:
		proto := pkt.IPProto
		udpDst := pkt.L4Dst
		return Decision{
			Kind:     KindInstall,
			Priority: 30,
			Match: ofp.Match{
				EthType: &ethType,
				IPv4Dst: pkt.IPv4Dst,
				IPProto: &proto,
				UDPDst:  &udpDst,
			},
			Actions: []ofp.Action{
				ofp.SetEthSrc{MAC: cfg.GatewayMAC},
				ofp.SetEthDst{MAC: dstMAC},
				ofp.SetQueue{QueueID: 0},
				ofp.Output{Port: outPort},
			},
		}
	case isBulk:
		return Decision{
			Kind:       KindConsultPolicy,
			DstPrefix:  prefix,
			Candidates: cfg.elasticCandidates(dpid, prefix, outPort),
		}
	default:
		return Decision{
			Kind:     KindInstall,
			Priority: 10,
			Match: ofp.Match{
				EthType: &ethType,
				IPv4Dst: pkt.IPv4Dst,
			},
			Actions: []ofp.Action{
				ofp.SetEthSrc{MAC: cfg.GatewayMAC},
				ofp.SetEthDst{MAC: dstMAC},
				ofp.Output{Port: outPort},
			},
		}
	}
}

// elasticCandidates builds the action set the policy service chooses among
// for a BULK_TCP flow. Cloud subnets at a switch named in
// CloudLoopPrevention get exactly one candidate, their fixed main port,
// since any policy-chosen alternate would create a forwarding loop; every
// other destination offers one candidate per configured alternate port
// (falling back to the routed port alone when none are configured).
func (c Config) elasticCandidates(dpid uint64, prefix string, routedPort uint32) []Candidate {
	if c.isCloudSubnet(prefix) {
		if egress, ok := c.CloudLoopPrevention[dpid]; ok {
			return []Candidate{{
				ActionIdx:     0,
				OutPort:       egress.MainPort,
				QueueID:       1,
				MeterRateKbps: c.capacityKbps(dpid, egress.MainPort),
			}}
		}
	}
	ports := c.AlternatePorts[dpid]
	if len(ports) == 0 {
		ports = []uint32{routedPort}
	}
	candidates := make([]Candidate, len(ports))
	for i, port := range ports {
		candidates[i] = Candidate{
			ActionIdx:     int64(i),
			OutPort:       port,
			QueueID:       uint32(i + 1),
			MeterRateKbps: c.capacityKbps(dpid, port),
		}
	}
	return candidates
}

// FinishElastic builds the match and actions for an elastic-class flow once
// the policy service has chosen a candidate, resolving the destination MAC
// the same way Classify did for other classes.
func FinishElastic(cfg Config, pkt Packet, chosen Candidate) (ofp.Match, []ofp.Action, bool) {
	prefix := subnetPrefix(pkt.IPv4Dst)
	dstMAC, ok := cfg.resolveMAC(pkt.IPv4Dst, prefix)
	if !ok {
		return ofp.Match{}, nil, false
	}
	ethType := ofp.EthTypeIPv4
	proto := pkt.IPProto
	match := ofp.Match{
		EthType: &ethType,
		IPv4Dst: pkt.IPv4Dst,
		IPProto: &proto,
	}
	if pkt.IPProto == ofp.IPProtoTCP {
		d := pkt.L4Dst
		match.TCPDst = &d
	} else {
		d := pkt.L4Dst
		match.UDPDst = &d
	}
	actions := []ofp.Action{
		ofp.SetEthSrc{MAC: cfg.GatewayMAC},
		ofp.SetEthDst{MAC: dstMAC},
		ofp.SetQueue{QueueID: chosen.QueueID},
		ofp.Output{Port: chosen.OutPort},
	}
	return match, actions, true
}
