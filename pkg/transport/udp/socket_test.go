package udp

import (
	"dominicbreuker/goenet/mocks"
	"dominicbreuker/goenet/pkg/config"
	"net"
	"testing"
	"time"
)

func TestListenPacket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{
			name:    "valid address with port 0",
			addr:    "127.0.0.1:0",
			wantErr: false,
		},
		{
			name:    "wildcard address",
			addr:    ":0",
			wantErr: false,
		},
		{
			name:    "invalid address",
			addr:    "not-a-valid-address",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			conn, err := ListenPacket("udp4", tc.addr)
			if (err != nil) != tc.wantErr {
				t.Errorf("ListenPacket(%q) error = %v, wantErr %v", tc.addr, err, tc.wantErr)
			}
			if conn != nil {
				_ = conn.Close()
			}
		})
	}
}

func TestListenPacket_SendReceive(t *testing.T) {
	t.Parallel()

	a, err := ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket(): %v", err)
	}
	defer a.Close()
	b, err := ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket(): %v", err)
	}
	defer b.Close()

	if _, err := a.WriteTo([]byte("hello"), b.LocalAddr()); err != nil {
		t.Fatalf("WriteTo(): %v", err)
	}

	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, from, err := b.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom(): %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("got %q", buf[:n])
	}
	if from.(*net.UDPAddr).Port != a.LocalAddr().(*net.UDPAddr).Port {
		t.Errorf("sender = %s, want %s", from, a.LocalAddr())
	}
}

func TestListener(t *testing.T) {
	t.Parallel()

	if Listener(nil) == nil {
		t.Fatal("Listener(nil) returned nil")
	}

	network := mocks.NewMockUDPNetwork()
	fn := Listener(&config.Dependencies{PacketListener: network.ListenPacket})
	conn, err := fn("udp", "127.0.0.1:4242")
	if err != nil {
		t.Fatalf("injected listener: %v", err)
	}
	defer conn.Close()
	if conn.LocalAddr().String() != "127.0.0.1:4242" {
		t.Errorf("LocalAddr() = %s", conn.LocalAddr())
	}
}
