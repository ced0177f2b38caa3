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
	"net"
	"testing"
	"time"
)

func dialServer(t *testing.T, s *Server) net.Conn {
	t.Helper()
	go s.ListenAndServe("127.0.0.1:0")
	// ListenAndServe assigns s.ln asynchronously; poll briefly for it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.RLock()
		ln := s.ln
		s.mu.RUnlock()
		if ln != nil {
			conn, err := net.Dial("tcp", ln.Addr().String())
			if err != nil {
				t.Fatalf("dial: %v", err)
			}
			return conn
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("server never started listening")
	return nil
}

func TestServerHandshakeSendsHelloFeaturesRequestAndTableMiss(t *testing.T) {
	s := NewServer(Handlers{})
	defer s.Close()
	conn := dialServer(t, s)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))

	h, _ := readOneMessage(t, conn)
	if h.Type != TypeHello {
		t.Fatalf("expected Hello first, got type=%d", h.Type)
	}
	h, _ = readOneMessage(t, conn)
	if h.Type != TypeFeaturesRequest {
		t.Fatalf("expected FeaturesRequest second, got type=%d", h.Type)
	}
	h, _ = readOneMessage(t, conn)
	if h.Type != TypeFlowMod {
		t.Fatalf("expected table-miss FlowMod third, got type=%d", h.Type)
	}
}

func TestServerRegistersAndUnregistersByDPID(t *testing.T) {
	s := NewServer(Handlers{})
	defer s.Close()
	conn := dialServer(t, s)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	// Drain the handshake messages.
	readOneMessage(t, conn)
	readOneMessage(t, conn)
	readOneMessage(t, conn)

	if _, err := conn.Write(FeaturesReply{XID: 1, DPID: 512, NBuffers: 8, NTables: 4}.Marshal()); err != nil {
		t.Fatalf("write FeaturesReply: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sess := s.Session(512); sess != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	sess := s.Session(512)
	if sess == nil {
		t.Fatal("expected session registered under dpid 512")
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Session(512) == nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected session to be unregistered after peer disconnected")
}
