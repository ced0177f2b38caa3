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
	"log"
	"net"
	"sync"
)

// Server accepts switch connections, drives the Hello/FeaturesRequest
// handshake, installs the initial table-miss rule, and keeps a dpid to
// Session map so other components can look up a switch by datapath id.
type Server struct {
	handlers Handlers

	mu       sync.RWMutex
	sessions map[uint64]*Session

	ln net.Listener
	wg sync.WaitGroup
}

// NewServer builds a Server that dispatches decoded events to h. The
// server wraps h.OnFeaturesReply and h.OnClose to maintain its own dpid
// map before calling through to the caller-supplied callbacks.
func NewServer(h Handlers) *Server {
	s := &Server{
		handlers: h,
		sessions: make(map[uint64]*Session),
	}
	userOnFeaturesReply := h.OnFeaturesReply
	userOnClose := h.OnClose
	s.handlers.OnFeaturesReply = func(sess *Session, fr FeaturesReply) {
		s.register(fr.DPID, sess)
		if userOnFeaturesReply != nil {
			userOnFeaturesReply(sess, fr)
		}
	}
	s.handlers.OnClose = func(sess *Session) {
		s.unregister(sess)
		if userOnClose != nil {
			userOnClose(sess)
		}
	}
	return s
}

func (s *Server) register(dpid uint64, sess *Session) {
	s.mu.Lock()
	s.sessions[dpid] = sess
	s.mu.Unlock()
}

func (s *Server) unregister(sess *Session) {
	dpid := sess.DPID()
	if dpid == 0 {
		return
	}
	s.mu.Lock()
	if s.sessions[dpid] == sess {
		delete(s.sessions, dpid)
	}
	s.mu.Unlock()
}

// Session returns the session currently registered for dpid, or nil.
func (s *Server) Session(dpid uint64) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[dpid]
}

// DPIDs returns the datapath ids of every currently connected switch.
func (s *Server) DPIDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint64, 0, len(s.sessions))
	for dpid := range s.sessions {
		out = append(out, dpid)
	}
	return out
}

// ListenAndServe listens on addr (host:port, conventionally ":6653") and
// accepts switch connections until the listener is closed by Close.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handshake(conn)
		}()
	}
}

// Close stops accepting new connections and waits for every in-flight
// handshake goroutine to return. It does not close already-established
// Sessions; callers that need that should Close each Session returned by
// DPIDs/Session first.
func (s *Server) Close() error {
	s.mu.RLock()
	ln := s.ln
	s.mu.RUnlock()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

// handshake performs the OF1.3 Hello exchange, issues FeaturesRequest, and
// installs the table-miss rule before handing the connection off to the
// session's read/write loops.
func (s *Server) handshake(conn net.Conn) {
	sess := newSession(conn, s.handlers)

	sess.Send(Hello{XID: sess.NextXID()}.Marshal())
	sess.Send(FeaturesRequest{XID: sess.NextXID()}.Marshal())
	sess.Send(FlowMod{
		XID:      sess.NextXID(),
		TableID:  0,
		Command:  FlowModAdd,
		Priority: 0,
		BufferID: NoBuffer,
		OutPort:  PortAny,
		OutGroup: GroupAll,
		Match:    Match{},
		Instructions: []Instruction{
			ApplyActions{Actions: []Action{Output{Port: PortController}}},
		},
	}.Marshal())

	log.Printf("ofp: switch connected from %s, table-miss rule sent", conn.RemoteAddr())
	sess.run()
}
