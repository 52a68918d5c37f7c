package engine

import (
	"bytes"
	"dominicbreuker/goenet/mocks"
	"net"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// pair is two hosts on one mock network, the client connected to the server.
type pair struct {
	e              *Engine
	network        *mocks.MockUDPNetwork
	server, client Handle
	serverAddr     Address
}

func newHost(t *testing.T, e *Engine, network *mocks.MockUDPNetwork, addr string, cfg HostConfig) Handle {
	t.Helper()

	conn, err := network.ListenPacket("udp", addr)
	if err != nil {
		t.Fatalf("ListenPacket(%s): %v", addr, err)
	}
	h := e.HostCreate(conn, cfg)
	if h == 0 {
		t.Fatal("HostCreate() returned the invalid handle")
	}
	t.Cleanup(func() { e.HostDestroy(h) })
	return h
}

// await services h until an occurrence of type want arrives.
func await(t *testing.T, e *Engine, h Handle, want EventType) Event {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	var ev Event
	for time.Now().Before(deadline) {
		switch e.HostService(h, &ev, 10*time.Millisecond) {
		case -1:
			t.Fatalf("HostService() failed while waiting for %d", want)
		case 1:
			if ev.Type == want {
				return ev
			}
			if ev.Packet != 0 {
				e.PacketDestroy(ev.Packet)
			}
		}
	}
	t.Fatalf("no occurrence of type %d", want)
	return ev
}

func connectPair(t *testing.T, data uint32) (*pair, Handle, Handle) {
	t.Helper()

	e := New(nil)
	network := mocks.NewMockUDPNetwork()
	p := &pair{e: e, network: network}
	p.server = newHost(t, e, network, "127.0.0.1:9000", HostConfig{})
	p.client = newHost(t, e, network, "127.0.0.1:9001", HostConfig{})
	p.serverAddr, _ = ParseAddress("127.0.0.1:9000")

	out := e.HostConnect(p.client, p.serverAddr, 3, data)
	if out == 0 {
		t.Fatal("HostConnect() returned the invalid handle")
	}
	if got := e.PeerState(out); got != PeerStateConnecting {
		t.Errorf("outgoing peer state = %s, want connecting", got)
	}

	in := await(t, e, p.server, EventConnect)
	if in.Data != data {
		t.Errorf("connect data = %d, want %d", in.Data, data)
	}
	ev := await(t, e, p.client, EventConnect)
	if ev.Peer != out {
		t.Errorf("client connect peer = %d, want %d", ev.Peer, out)
	}
	return p, out, in.Peer
}

func TestHost_ConnectSendReceive(t *testing.T) {
	t.Parallel()

	p, out, in := connectPair(t, 7)
	e := p.e

	if got := e.PeerState(out); got != PeerStateConnected {
		t.Errorf("client peer state = %s", got)
	}
	if addr, ok := e.PeerAddress(out); !ok || addr != p.serverAddr {
		t.Errorf("PeerAddress() = %s, %v", addr, ok)
	}

	pkt := e.PacketCreate([]byte("hello"), FlagReliable)
	freed := make(chan struct{})
	e.PacketSetFreeCallback(pkt, func(Handle) { close(freed) })
	if rc := e.PeerSend(out, 2, pkt); rc != 0 {
		t.Fatalf("PeerSend() = %d", rc)
	}
	e.HostFlush(p.client)

	select {
	case <-freed:
	case <-time.After(2 * time.Second):
		t.Error("sent packet was never freed")
	}

	ev := await(t, e, p.server, EventReceive)
	if ev.Peer != in || ev.ChannelID != 2 {
		t.Errorf("receive peer=%d channel=%d", ev.Peer, ev.ChannelID)
	}
	if got := string(e.PacketData(ev.Packet)); got != "hello" {
		t.Errorf("received %q", got)
	}
	if e.PacketFlags(ev.Packet) != FlagReliable {
		t.Errorf("received flags %d", e.PacketFlags(ev.Packet))
	}
	e.PacketDestroy(ev.Packet)

	if e.PeerIncomingDataTotal(in) == 0 || e.PeerOutgoingDataTotal(out) == 0 {
		t.Error("data totals not counted")
	}
}

func TestHost_SendChecks(t *testing.T) {
	t.Parallel()

	p, out, _ := connectPair(t, 0)
	e := p.e

	pkt := e.PacketCreate([]byte("x"), 0)
	if rc := e.PeerSend(out, 3, pkt); rc != -1 {
		t.Errorf("PeerSend() on channel beyond the channel count = %d", rc)
	}
	if rc := e.PeerSend(out, 0, 9999); rc != -1 {
		t.Errorf("PeerSend() of an unknown packet = %d", rc)
	}
	if rc := e.PeerSend(9999, 0, pkt); rc != -1 {
		t.Errorf("PeerSend() to an unknown peer = %d", rc)
	}
	e.PacketDestroy(pkt)
}

func TestHost_CompressedSend(t *testing.T) {
	t.Parallel()

	p, out, _ := connectPair(t, 0)
	e := p.e
	e.HostCompress(p.client, true)

	payload := make([]byte, 20000)
	for i := range payload {
		payload[i] = byte(i % 7)
	}
	e.PeerSend(out, 0, e.PacketCreate(payload, FlagReliable))
	e.HostFlush(p.client)

	ev := await(t, e, p.server, EventReceive)
	if got := e.PacketData(ev.Packet); len(got) != len(payload) || got[12345] != payload[12345] {
		t.Errorf("compressed payload corrupted: %d bytes", len(got))
	}
	e.PacketDestroy(ev.Packet)
}

func TestHost_GracefulDisconnect(t *testing.T) {
	t.Parallel()

	p, out, in := connectPair(t, 0)
	e := p.e

	e.PeerDisconnect(out, 99)
	if got := e.PeerState(out); got != PeerStateDisconnecting {
		t.Errorf("state after PeerDisconnect() = %s", got)
	}

	ev := await(t, e, p.server, EventDisconnect)
	if ev.Peer != in || ev.Data != 99 {
		t.Errorf("server disconnect peer=%d data=%d", ev.Peer, ev.Data)
	}
	ev = await(t, e, p.client, EventDisconnect)
	if ev.Peer != out {
		t.Errorf("client disconnect peer=%d", ev.Peer)
	}
	if got := e.PeerState(out); got != PeerStateDisconnected {
		t.Errorf("state after disconnect = %s", got)
	}
}

func TestHost_DisconnectNowIsSilentLocally(t *testing.T) {
	t.Parallel()

	p, out, in := connectPair(t, 0)
	e := p.e

	e.PeerDisconnectNow(out, 5)
	if got := e.PeerState(out); got != PeerStateDisconnected {
		t.Errorf("state after PeerDisconnectNow() = %s", got)
	}

	ev := await(t, e, p.server, EventDisconnect)
	if ev.Peer != in || ev.Data != 5 {
		t.Errorf("server disconnect peer=%d data=%d", ev.Peer, ev.Data)
	}

	var local Event
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if e.HostService(p.client, &local, 10*time.Millisecond) == 1 && local.Peer == out {
			t.Fatalf("occurrence %d reported for a peer disconnected now", local.Type)
		}
	}
}

func TestHost_DisconnectLaterDrainsQueue(t *testing.T) {
	t.Parallel()

	p, out, _ := connectPair(t, 0)
	e := p.e

	e.PeerSend(out, 0, e.PacketCreate([]byte("last words"), FlagReliable))
	e.PeerDisconnectLater(out, 1)

	// the queue goes out without servicing the client

	ev := await(t, e, p.server, EventReceive)
	if got := string(e.PacketData(ev.Packet)); got != "last words" {
		t.Errorf("received %q", got)
	}
	e.PacketDestroy(ev.Packet)

	ev = await(t, e, p.server, EventDisconnect)
	if ev.Data != 1 {
		t.Errorf("disconnect data = %d", ev.Data)
	}
}

func TestHost_DestroyTellsRemote(t *testing.T) {
	t.Parallel()

	p, out, in := connectPair(t, 0)
	e := p.e

	e.PeerDisconnectNow(in, 4)
	e.HostFlush(p.server)
	e.HostDestroy(p.server)

	var ev Event
	if rc := e.HostService(p.server, &ev, 0); rc != -1 {
		t.Errorf("HostService() on a destroyed host = %d", rc)
	}

	ev = await(t, e, p.client, EventDisconnect)
	if ev.Peer != out || ev.Data != 4 {
		t.Errorf("client disconnect peer=%d data=%d, want peer=%d data=4", ev.Peer, ev.Data, out)
	}
}

func TestHost_ConnectTimeout(t *testing.T) {
	t.Parallel()

	e := New(nil)
	network := mocks.NewMockUDPNetwork()
	client := newHost(t, e, network, "127.0.0.1:9100", HostConfig{ConnectTimeout: 200 * time.Millisecond})

	nowhere, _ := ParseAddress("127.0.0.1:9199")
	out := e.HostConnect(client, nowhere, 1, 0)
	if out == 0 {
		t.Fatal("HostConnect() returned the invalid handle")
	}
	if again := e.HostConnect(client, nowhere, 1, 0); again != 0 {
		t.Error("second HostConnect() to the same address succeeded")
	}

	ev := await(t, e, client, EventDisconnect)
	if ev.Peer != out {
		t.Errorf("disconnect peer = %d, want %d", ev.Peer, out)
	}
}

func TestHost_MaxPeers(t *testing.T) {
	t.Parallel()

	e := New(nil)
	network := mocks.NewMockUDPNetwork()
	client := newHost(t, e, network, "127.0.0.1:9200", HostConfig{MaxPeers: 1})

	a, _ := ParseAddress("127.0.0.1:9201")
	b, _ := ParseAddress("127.0.0.1:9202")
	if e.HostConnect(client, a, 1, 0) == 0 {
		t.Fatal("first HostConnect() failed")
	}
	if e.HostConnect(client, b, 1, 0) != 0 {
		t.Error("HostConnect() beyond the peer limit succeeded")
	}
}

func TestHost_Telex(t *testing.T) {
	t.Parallel()

	e := New(nil)
	network := mocks.NewMockUDPNetwork()
	blocked := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 6666}
	h := newHost(t, e, network, "127.0.0.1:9300", HostConfig{
		Intercept: func(from Address, _ []byte) bool { return from.Port() != 6666 },
	})

	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9300}
	src := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5555}
	network.WriteTo([]byte("dropped"), blocked, dst)
	network.WriteTo([]byte("hey"), src, dst)

	ev := await(t, e, h, EventTelex)
	if got := string(e.PacketData(ev.Packet)); got != "hey" {
		t.Errorf("telex payload %q", got)
	}
	if got := e.HostReceivedAddress(h).String(); got != "127.0.0.1:5555" {
		t.Errorf("HostReceivedAddress() = %s", got)
	}
	e.PacketDestroy(ev.Packet)
}

func TestHost_Broadcast(t *testing.T) {
	t.Parallel()

	p, _, _ := connectPair(t, 0)
	e := p.e

	pkt := e.PacketCreate([]byte("all"), FlagReliable)
	e.HostBroadcast(p.server, 0, pkt)
	e.HostFlush(p.server)

	ev := await(t, e, p.client, EventReceive)
	if got := string(e.PacketData(ev.Packet)); got != "all" {
		t.Errorf("broadcast payload %q", got)
	}
	e.PacketDestroy(ev.Packet)

	// nobody to send to: the packet is freed right away
	lonely := newHost(t, e, p.network, "127.0.0.1:9050", HostConfig{})
	freed := false
	pkt = e.PacketCreate([]byte("void"), 0)
	e.PacketSetFreeCallback(pkt, func(Handle) { freed = true })
	e.HostBroadcast(lonely, 0, pkt)
	if !freed {
		t.Error("unsent broadcast packet was not freed")
	}
}

func TestHost_DestroyResetsPeers(t *testing.T) {
	t.Parallel()

	p, out, _ := connectPair(t, 0)
	e := p.e

	pkt := e.PacketCreate([]byte("pending"), 0)
	freed := make(chan struct{})
	e.PacketSetFreeCallback(pkt, func(Handle) { close(freed) })
	e.PeerSend(out, 0, pkt)

	e.HostDestroy(p.client)
	e.HostDestroy(p.client)

	if got := e.PeerState(out); got != PeerStateDisconnected {
		t.Errorf("peer state after destroy = %s", got)
	}
	select {
	case <-freed:
	case <-time.After(time.Second):
		t.Error("queued packet not freed on destroy")
	}
	var ev Event
	if rc := e.HostService(p.client, &ev, 0); rc != -1 {
		t.Errorf("HostService() on a destroyed host = %d", rc)
	}
	if e.HostSocket(p.client) != nil {
		t.Error("HostSocket() of a destroyed host is not nil")
	}
}

func TestHost_SocketError(t *testing.T) {
	t.Parallel()

	e := New(nil)
	network := mocks.NewMockUDPNetwork()
	conn, _ := network.ListenPacket("udp", "127.0.0.1:9400")

	errs := make(chan error, 1)
	h := e.HostCreate(conn, HostConfig{OnSocketError: func(err error) { errs <- err }})
	defer e.HostDestroy(h)

	conn.Close()

	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatal("socket error not reported")
	}
	var ev Event
	if rc := e.HostService(h, &ev, 0); rc != -1 {
		t.Errorf("HostService() after a socket error = %d", rc)
	}
}

func TestHost_BandwidthLimit(t *testing.T) {
	t.Parallel()

	p, out, _ := connectPair(t, 0)
	e := p.e

	limitOf := func() rate.Limit {
		e.lock()
		defer e.unlock()
		if l := e.peers[out].limiter; l != nil {
			return l.Limit()
		}
		return 0
	}

	e.HostBandwidthLimit(p.client, 0, 100000)
	if got := limitOf(); got != 100000 {
		t.Errorf("limit after upstream change = %v, want 100000", got)
	}

	// the server advertises a smaller downstream limit
	e.HostBandwidthLimit(p.server, 50000, 0)
	e.HostFlush(p.server)

	deadline := time.Now().Add(3 * time.Second)
	for limitOf() != 50000 {
		if time.Now().After(deadline) {
			t.Fatalf("limit = %v, want 50000", limitOf())
		}
		var ev Event
		e.HostService(p.client, &ev, 10*time.Millisecond)
	}

	e.HostBandwidthLimit(p.client, 0, 0)
	e.HostBandwidthLimit(p.server, 0, 0)
	e.HostBandwidthThrottle(p.client)
}

func TestHost_Key(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x42}, 32)
	other := bytes.Repeat([]byte{0x17}, 32)

	tests := []struct {
		name       string
		serverKey  []byte
		clientKey  []byte
		wantAccept bool
	}{
		{"same key", key, key, true},
		{"different keys", key, other, false},
		{"key on one end", key, nil, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := New(nil)
			network := mocks.NewMockUDPNetwork()
			server := newHost(t, e, network, "127.0.0.1:9000", HostConfig{Key: tc.serverKey})
			client := newHost(t, e, network, "127.0.0.1:9001", HostConfig{
				Key:            tc.clientKey,
				ConnectTimeout: 500 * time.Millisecond,
			})
			addr, _ := ParseAddress("127.0.0.1:9000")

			out := e.HostConnect(client, addr, 1, 0)
			if out == 0 {
				t.Fatal("HostConnect() returned the invalid handle")
			}

			if !tc.wantAccept {
				ev := await(t, e, client, EventDisconnect)
				if ev.Peer != out {
					t.Errorf("disconnect peer = %d, want %d", ev.Peer, out)
				}
				return
			}

			await(t, e, server, EventConnect)
			await(t, e, client, EventConnect)

			pkt := e.PacketCreate([]byte("secret"), FlagReliable)
			if rc := e.PeerSend(out, 0, pkt); rc != 0 {
				t.Fatalf("PeerSend() = %d", rc)
			}
			e.HostFlush(client)

			ev := await(t, e, server, EventReceive)
			if got := string(e.PacketData(ev.Packet)); got != "secret" {
				t.Errorf("received %q", got)
			}
			e.PacketDestroy(ev.Packet)
		})
	}
}

func TestHost_BadKey(t *testing.T) {
	t.Parallel()

	e := New(nil)
	conn, err := mocks.NewMockUDPNetwork().ListenPacket("udp", "127.0.0.1:9000")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if h := e.HostCreate(conn, HostConfig{Key: []byte("short")}); h != 0 {
		e.HostDestroy(h)
		t.Error("HostCreate() accepted a 5 byte key")
	}
}
