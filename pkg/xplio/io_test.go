package xplio

import (
	"net"
	"testing"
)

func TestBroadcastAddrComputation(t *testing.T) {
	ip := net.IPv4(192, 0, 2, 7).To4()
	mask := net.CIDRMask(24, 32)
	got := broadcastAddr(ip, mask)
	want := net.IPv4(192, 0, 2, 255).To4()
	if !got.Equal(want) {
		t.Fatalf("broadcastAddr = %v, want %v", got, want)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	if _, err := r.New("udp"); err != nil {
		t.Fatalf("expected udp transport registered: %v", err)
	}
	if _, err := r.New("xbeezb"); err != nil {
		t.Fatalf("expected xbeezb transport registered: %v", err)
	}
	if _, err := r.New("nope"); err == nil {
		t.Fatal("expected unknown transport name to error")
	}
}

func TestParseZigBeeAddress64Bit(t *testing.T) {
	addr, err := parseZigBeeAddress("00:13:a2:00:40:a0:4e:4c")
	if err != nil {
		t.Fatal(err)
	}
	if !addr.Has64 || addr.Has16 {
		t.Fatalf("expected a 64-bit-only address, got %+v", addr)
	}
	if got := addr.String(); got != "00:13:a2:00:40:a0:4e:4c" {
		t.Fatalf("round trip mismatch: %s", got)
	}
}

func TestParseZigBeeAddress16Bit(t *testing.T) {
	addr, err := parseZigBeeAddress("ab:cd")
	if err != nil {
		t.Fatal(err)
	}
	if !addr.Has16 || addr.Has64 {
		t.Fatalf("expected a 16-bit-only address, got %+v", addr)
	}
}

func TestParseZigBeeAddressRejectsBadLength(t *testing.T) {
	if _, err := parseZigBeeAddress("ab:cd:ef"); err == nil {
		t.Fatal("expected a 3-byte address to be rejected")
	}
}

func TestUDPAddressBroadcastTagging(t *testing.T) {
	bcast := UDPAddress{IP: net.IPv4(192, 0, 2, 255), Port: DefaultPort, Broadcast: true}
	unicast := UDPAddress{IP: net.IPv4(192, 0, 2, 7), Port: 54321}
	if !bcast.IsBroadcast() {
		t.Fatal("expected broadcast address to report IsBroadcast")
	}
	if unicast.IsBroadcast() {
		t.Fatal("expected unicast address to not report IsBroadcast")
	}
}
