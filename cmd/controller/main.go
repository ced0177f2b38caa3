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

// Package main is the OpenFlow 1.3 controller binary: it accepts switch
// connections, classifies PacketIn events, consults the Policy Service for
// the elastic traffic class, installs FlowMod/MeterMod entries, and drives
// the periodic stats-polling loop. See cmd/policyd for the companion
// Policy Service process.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"syscall"

	"qosctl/internal/classify"
	"qosctl/internal/config"
	"qosctl/internal/installer"
	"qosctl/internal/ofp"
	"qosctl/internal/policyclient"
	"qosctl/internal/pollerloop"
	"qosctl/internal/telemetry"
)

func main() {
	cfg, err := config.LoadControllerConfig()
	if err != nil {
		log.Fatalf("controller: %v", err)
	}

	classifyCfg := classify.DefaultConfig()
	classifyCfg.CritUDPPort = cfg.CritUDPPort
	classifyCfg.TelUDPPort = cfg.TelUDPPort
	classifyCfg.BulkTCPPort = cfg.BulkTCPPort

	meters := installer.NewMeterRegistry()
	flowInstaller := installer.NewInstaller(meters)
	policy := policyclient.New(cfg.AgentURL, time.Duration(cfg.AgentTimeout*float64(time.Second)))

	// The Telemetry Store here only backs congestion-alert accounting local
	// to the controller process; the authoritative store the policy service
	// reads from lives in cmd/policyd. 16 stripes and a 30s TTL match the
	// policy service's defaults so a shared-process test harness can wire
	// both through the same configuration.
	store := telemetry.New(16, 30*time.Second)

	c := &controller{cfg: cfg, classifyCfg: classifyCfg, installer: flowInstaller, policy: policy}

	// poller is wired into the server's handler set before it is itself
	// constructed: the server needs the stats-reply callbacks at
	// construction time, but the poller needs the server (as a SwitchSet)
	// to send its requests. The closures below resolve poller at call
	// time, by when main has already assigned it.
	var poller *pollerloop.Poller
	srv := ofp.NewServer(ofp.Handlers{
		OnFeaturesReply: c.onFeaturesReply,
		OnPacketIn:      c.onPacketIn,
		OnClose:         c.onClose,
		OnPortStatsReply: func(sess *ofp.Session, reply ofp.PortStatsReply) {
			poller.HandlePortStatsReply(sess.DPID(), reply)
		},
		OnQueueStatsReply: func(sess *ofp.Session, reply ofp.QueueStatsReply) {
			poller.HandleQueueStatsReply(sess.DPID(), reply)
		},
	})
	c.server = srv

	poller = pollerloop.New(srv, store, policy, cfg.CongestionThresholdBPS, time.Duration(cfg.MonitorInterval*float64(time.Second)))
	poller.Start()

	go func() {
		fmt.Printf("OpenFlow controller listening on %s\n", cfg.ListenAddr)
		if err := srv.ListenAndServe(cfg.ListenAddr); err != nil {
			log.Fatalf("controller: listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("controller: shutting down")
	poller.Stop()
	_ = srv.Close()
}

// controller holds the handler state bound to one ofp.Server.
type controller struct {
	cfg         config.ControllerConfig
	classifyCfg classify.Config
	installer   *installer.Installer
	policy      *policyclient.Client
	server      *ofp.Server
}

func (c *controller) onFeaturesReply(sess *ofp.Session, fr ofp.FeaturesReply) {
	log.Printf("controller: switch dpid=%d connected (ntables=%d nbuffers=%d)", fr.DPID, fr.NTables, fr.NBuffers)
}

func (c *controller) onClose(sess *ofp.Session) {
	log.Printf("controller: switch dpid=%d disconnected", sess.DPID())
}

func (c *controller) onPacketIn(sess *ofp.Session, pi ofp.PacketIn) {
	dpid := sess.DPID()
	pkt, err := classify.ParsePacket(pi.Data)
	if err != nil {
		return
	}

	decision := classify.Classify(dpid, pkt, c.classifyCfg)
	switch decision.Kind {
	case classify.KindDrop:
		return
	case classify.KindFlood:
		sess.Send(ofp.PacketOut{
			XID:      sess.NextXID(),
			BufferID: pi.BufferID,
			InPort:   inPort(pi),
			Actions:  []ofp.Action{ofp.Output{Port: ofp.PortFlood}},
			Data:     packetOutData(pi),
		}.Marshal())
	case classify.KindARPReply:
		frame := classify.BuildARPReply(c.classifyCfg.GatewayMAC, decision.ARPSrcIP, decision.ARPReplyToMAC, decision.ARPDstIP)
		sess.Send(ofp.PacketOut{
			XID:      sess.NextXID(),
			BufferID: ofp.NoBuffer,
			InPort:   ofp.PortController,
			Actions:  []ofp.Action{ofp.Output{Port: inPort(pi)}},
			Data:     frame,
		}.Marshal())
	case classify.KindInstall:
		c.installer.AddFlow(sess, dpid, decision.Priority, decision.Match, decision.Actions, c.cfg.FlowIdleTimeout, c.cfg.FlowHardTimeout)
		sess.Send(ofp.PacketOut{
			XID:      sess.NextXID(),
			BufferID: pi.BufferID,
			InPort:   inPort(pi),
			Actions:  decision.Actions,
			Data:     packetOutData(pi),
		}.Marshal())
	case classify.KindConsultPolicy:
		c.consultPolicy(sess, dpid, pi, pkt, decision)
	}
}

func (c *controller) consultPolicy(sess *ofp.Session, dpid uint64, pi ofp.PacketIn, pkt classify.Packet, decision classify.Decision) {
	candidates := make([]policyclient.ActCandidate, len(decision.Candidates))
	for i, cd := range decision.Candidates {
		candidates[i] = policyclient.ActCandidate{
			ActionIdx:     cd.ActionIdx,
			OutPort:       cd.OutPort,
			QueueID:       cd.QueueID,
			MeterRateKbps: cd.MeterRateKbps,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.cfg.AgentTimeout*float64(time.Second)))
	defer cancel()
	resp, err := c.policy.Act(ctx, policyclient.ActRequest{DPID: dpid, DstPrefix: decision.DstPrefix, Candidates: candidates})
	if err != nil {
		c.fallbackStatic(sess, dpid, pi, pkt, decision)
		return
	}

	chosen := classify.Candidate{ActionIdx: resp.Action, OutPort: resp.OutPort, QueueID: resp.QueueID, MeterRateKbps: resp.MeterRateKbps}
	match, actions, ok := classify.FinishElastic(c.classifyCfg, pkt, chosen)
	if !ok {
		c.fallbackStatic(sess, dpid, pi, pkt, decision)
		return
	}

	if chosen.MeterRateKbps > 0 {
		meterID := c.installer.EnsureMeter(sess, dpid, uint32(chosen.MeterRateKbps))
		c.installer.AddFlowWithMeter(sess, dpid, 20, match, actions, meterID, c.cfg.FlowIdleTimeout, c.cfg.FlowHardTimeout)
	} else {
		c.installer.AddFlow(sess, dpid, 20, match, actions, c.cfg.FlowIdleTimeout, c.cfg.FlowHardTimeout)
	}
	sess.Send(ofp.PacketOut{
		XID:      sess.NextXID(),
		BufferID: pi.BufferID,
		InPort:   inPort(pi),
		Actions:  actions,
		Data:     packetOutData(pi),
	}.Marshal())
}

// fallbackStatic installs the first candidate's out_port with no queue or
// meter, per spec.md §7: a policy-service timeout or error never blocks
// packet forwarding, it only forfeits the QoS treatment for this flow.
func (c *controller) fallbackStatic(sess *ofp.Session, dpid uint64, pi ofp.PacketIn, pkt classify.Packet, decision classify.Decision) {
	if len(decision.Candidates) == 0 {
		return
	}
	fallback := decision.Candidates[0]
	match, actions, ok := classify.FinishElastic(c.classifyCfg, pkt, classify.Candidate{
		ActionIdx: fallback.ActionIdx, OutPort: fallback.OutPort, QueueID: 0, MeterRateKbps: 0,
	})
	if !ok {
		return
	}
	filtered := actions[:0]
	for _, a := range actions {
		if _, isQueue := a.(ofp.SetQueue); !isQueue {
			filtered = append(filtered, a)
		}
	}
	actions = filtered
	c.installer.AddFlow(sess, dpid, 20, match, actions, c.cfg.FlowIdleTimeout, c.cfg.FlowHardTimeout)
	sess.Send(ofp.PacketOut{
		XID:      sess.NextXID(),
		BufferID: pi.BufferID,
		InPort:   inPort(pi),
		Actions:  actions,
		Data:     packetOutData(pi),
	}.Marshal())
}

func inPort(pi ofp.PacketIn) uint32 {
	if pi.Match.InPort != nil {
		return *pi.Match.InPort
	}
	return ofp.PortAny
}

// packetOutData returns the embedded packet payload when the switch did not
// buffer it (BufferID == NoBuffer); otherwise the PacketOut references the
// switch's own buffer and carries no data.
func packetOutData(pi ofp.PacketIn) []byte {
	if pi.BufferID == ofp.NoBuffer {
		return pi.Data
	}
	return nil
}
