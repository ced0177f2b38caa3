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
	"io"
	"net"
	"sync"
	"sync/atomic"
)

// sendQueueDepth bounds a session's outbound queue; the writer goroutine
// drains it one message at a time so concurrent senders never interleave
// bytes on the wire, the same single-writer-per-key discipline an ordered
// per-actor queue gives a hot key elsewhere in this codebase.
const sendQueueDepth = 256

// Handlers is the set of callbacks a Session dispatches decoded messages to.
// Any field may be nil; a nil handler silently drops that message type.
type Handlers struct {
	OnFeaturesReply func(*Session, FeaturesReply)
	OnPacketIn      func(*Session, PacketIn)
	OnPortStatsReply func(*Session, PortStatsReply)
	OnQueueStatsReply func(*Session, QueueStatsReply)
	OnPortStatus    func(*Session, PortStatus)
	OnClose         func(*Session)
}

// Session owns one switch's TCP connection: one read loop, one writer
// goroutine draining an ordered send queue, and the dpid this connection
// identified itself with once FeaturesReply arrives.
type Session struct {
	conn      net.Conn
	handlers  Handlers
	sendCh    chan []byte
	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu   sync.RWMutex
	dpid uint64
	xid  uint32
}

func newSession(conn net.Conn, h Handlers) *Session {
	return &Session{
		conn:     conn,
		handlers: h,
		sendCh:   make(chan []byte, sendQueueDepth),
		stopCh:   make(chan struct{}),
	}
}

// DPID returns the switch's datapath id, or 0 if FeaturesReply has not
// arrived yet.
func (s *Session) DPID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dpid
}

func (s *Session) setDPID(dpid uint64) {
	s.mu.Lock()
	s.dpid = dpid
	s.mu.Unlock()
}

// NextXID returns a fresh, per-session monotonically increasing transaction id.
func (s *Session) NextXID() uint32 { return atomic.AddUint32(&s.xid, 1) }

// Send enqueues a fully-marshaled message for the writer goroutine. It never
// blocks the caller on the network; it only blocks if the send queue itself
// is full, which signals a stuck peer. Sends after the session has started
// closing are silently dropped.
func (s *Session) Send(raw []byte) {
	select {
	case s.sendCh <- raw:
	case <-s.stopCh:
	}
}

// Close shuts down the connection and stops both goroutines. Safe to call
// more than once, and safe to call concurrently with the read loop noticing
// the peer hung up first.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.stopCh) })
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

func (s *Session) run() {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.writeLoop()
	}()
	go func() {
		defer s.wg.Done()
		s.readLoop()
	}()
}

func (s *Session) writeLoop() {
	for {
		select {
		case raw := <-s.sendCh:
			if _, err := s.conn.Write(raw); err != nil {
				return
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Session) readLoop() {
	defer func() {
		s.closeOnce.Do(func() { close(s.stopCh) })
		_ = s.conn.Close()
		if s.handlers.OnClose != nil {
			s.handlers.OnClose(s)
		}
	}()

	hdr := make([]byte, HeaderLen)
	for {
		if _, err := io.ReadFull(s.conn, hdr); err != nil {
			return
		}
		h, err := ParseHeader(hdr)
		if err != nil {
			return
		}
		if int(h.Length) < HeaderLen {
			return
		}
		body := make([]byte, int(h.Length)-HeaderLen)
		if len(body) > 0 {
			if _, err := io.ReadFull(s.conn, body); err != nil {
				return
			}
		}
		s.dispatch(h, body)
	}
}

func (s *Session) dispatch(h Header, body []byte) {
	if h.Version != Version {
		s.Send(ErrorMsg{XID: h.XID, Type: ErrTypeHelloFailed, Code: ErrCodeIncompatible}.Marshal())
		return
	}
	if h.Type == TypeEchoRequest {
		s.Send(EchoReply{XID: h.XID, Data: body}.Marshal())
		return
	}
	msg, err := Decode(h, body)
	if err != nil {
		return
	}
	switch v := msg.(type) {
	case FeaturesReply:
		s.setDPID(v.DPID)
		if s.handlers.OnFeaturesReply != nil {
			s.handlers.OnFeaturesReply(s, v)
		}
	case PacketIn:
		if s.handlers.OnPacketIn != nil {
			s.handlers.OnPacketIn(s, v)
		}
	case PortStatsReply:
		if s.handlers.OnPortStatsReply != nil {
			s.handlers.OnPortStatsReply(s, v)
		}
	case QueueStatsReply:
		if s.handlers.OnQueueStatsReply != nil {
			s.handlers.OnQueueStatsReply(s, v)
		}
	case PortStatus:
		if s.handlers.OnPortStatus != nil {
			s.handlers.OnPortStatus(s, v)
		}
	}
}
