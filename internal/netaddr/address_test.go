package netaddr

import (
	"net"
	"testing"
)

func TestSelectDefaultPrefersPrivate(t *testing.T) {
	addrs := []net.IP{
		net.ParseIP("8.8.8.8").To4(),
		net.ParseIP("192.168.1.10").To4(),
	}
	if got := selectDefault(addrs); got != "192.168.1.10" {
		t.Errorf("selectDefault() = %q, want 192.168.1.10", got)
	}
}

func TestSelectDefaultFallsBackToFirst(t *testing.T) {
	addrs := []net.IP{
		net.ParseIP("8.8.8.8").To4(),
		net.ParseIP("1.1.1.1").To4(),
	}
	if got := selectDefault(addrs); got != "8.8.8.8" {
		t.Errorf("selectDefault() = %q, want 8.8.8.8", got)
	}
}

func TestSelectDefaultEmpty(t *testing.T) {
	if got := selectDefault(nil); got != "" {
		t.Errorf("selectDefault(nil) = %q, want empty", got)
	}
}

func TestIsPrivate(t *testing.T) {
	cases := map[string]bool{
		"10.0.0.1":     true,
		"172.16.5.5":   true,
		"192.168.0.1":  true,
		"8.8.8.8":      false,
		"172.32.0.1":   false,
	}
	for addr, want := range cases {
		got := isPrivate(net.ParseIP(addr).To4())
		if got != want {
			t.Errorf("isPrivate(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestListDoesNotError(t *testing.T) {
	if _, err := List(); err != nil {
		t.Errorf("List() error: %v", err)
	}
}
