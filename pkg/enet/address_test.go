package enet

import "testing"

func TestAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		ip   string
		port uint16
	}{
		{name: "private", in: "10.0.0.1:4000", ip: "10.0.0.1", port: 4000},
		{name: "loopback", in: "127.0.0.1:9000", ip: "127.0.0.1", port: 9000},
		{name: "any", in: "0.0.0.0:0", ip: "0.0.0.0", port: 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a, err := ParseAddress(tc.in)
			if err != nil {
				t.Fatalf("ParseAddress(%q): %v", tc.in, err)
			}
			if a.IP() != tc.ip || a.Port() != tc.port || a.String() != tc.in {
				t.Errorf("got %s / %d / %s", a.IP(), a.Port(), a)
			}

			b, err := AddressFromIP(tc.ip, tc.port)
			if err != nil || b != a {
				t.Errorf("AddressFromIP() = %s, %v", b, err)
			}
			host, err := IP2Long(tc.ip)
			if err != nil || NewAddress(host, tc.port) != a || Long2IP(host) != tc.ip {
				t.Errorf("IP2Long(%s) = %d, %v", tc.ip, host, err)
			}
		})
	}
}
