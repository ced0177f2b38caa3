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
	"testing"
	"time"
)

func readOneMessage(t *testing.T, conn net.Conn) (Header, []byte) {
	t.Helper()
	hdr := make([]byte, HeaderLen)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		t.Fatalf("read header: %v", err)
	}
	h, err := ParseHeader(hdr)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	body := make([]byte, int(h.Length)-HeaderLen)
	if len(body) > 0 {
		if _, err := io.ReadFull(conn, body); err != nil {
			t.Fatalf("read body: %v", err)
		}
	}
	return h, body
}

func TestSessionEchoRequestGetsAutoReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	sess := newSession(server, Handlers{})
	sess.run()
	defer sess.Close()

	client.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Write(EchoRequest{XID: 5, Data: []byte("hi")}.Marshal()); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, body := readOneMessage(t, client)
	if h.Type != TypeEchoReply || h.XID != 5 {
		t.Fatalf("expected echo reply xid=5, got type=%d xid=%d", h.Type, h.XID)
	}
	if string(body) != "hi" {
		t.Fatalf("expected echoed payload %q, got %q", "hi", body)
	}
}

func TestSessionRejectsWrongVersionHello(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	sess := newSession(server, Handlers{})
	sess.run()
	defer sess.Close()

	client.SetDeadline(time.Now().Add(2 * time.Second))
	bad := Hello{XID: 1}.Marshal()
	bad[0] = 0x01 // wrong version
	if _, err := client.Write(bad); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, _ := readOneMessage(t, client)
	if h.Type != TypeError {
		t.Fatalf("expected OFPT_ERROR for version mismatch, got type=%d", h.Type)
	}
}

func TestSessionFeaturesReplySetsDPIDAndInvokesHandler(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	got := make(chan uint64, 1)
	sess := newSession(server, Handlers{
		OnFeaturesReply: func(s *Session, fr FeaturesReply) { got <- fr.DPID },
	})
	sess.run()
	defer sess.Close()

	client.SetDeadline(time.Now().Add(2 * time.Second))
	raw := FeaturesReply{XID: 1, DPID: 256, NBuffers: 8, NTables: 4}.Marshal()
	if _, err := client.Write(raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case dpid := <-got:
		if dpid != 256 {
			t.Fatalf("expected dpid 256, got %d", dpid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnFeaturesReply")
	}

	if sess.DPID() != 256 {
		t.Fatalf("expected Session.DPID() == 256, got %d", sess.DPID())
	}
}

func TestSessionCloseIsIdempotentAndUnblocksSend(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	closed := make(chan struct{}, 1)
	sess := newSession(server, Handlers{
		OnClose: func(*Session) {
			select {
			case closed <- struct{}{}:
			default:
			}
		},
	})
	sess.run()

	if err := sess.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}

	// Send after Close must not block or panic.
	done := make(chan struct{})
	go func() {
		sess.Send([]byte{0, 0, 0, 0, 0, 0, 0, 0})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send after Close blocked")
	}
}

func TestSessionOnCloseFiresWhenPeerDisconnects(t *testing.T) {
	client, server := net.Pipe()

	closed := make(chan struct{})
	sess := newSession(server, Handlers{
		OnClose: func(*Session) { close(closed) },
	})
	sess.run()
	defer sess.Close()

	client.Close()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected OnClose to fire after peer disconnected")
	}
}
