package xpl

import "testing"

func mustId(t *testing.T, vendor, device, instance string) Id {
	t.Helper()
	id, err := NewId(vendor, device, instance)
	if err != nil {
		t.Fatalf("NewId: %v", err)
	}
	return id
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := mustId(t, "acme", "cm12", "srv")
	tgt := mustId(t, "acme", "cm12", "kitchen")
	schema, _ := NewSchema("hbeat", "app")

	m := NewMessage(TypeStatus, src, schema)
	m.Hop = 3
	m.Target = tgt
	_ = m.Add("interval", "5")
	_ = m.Add("port", "54321")

	wire := Encode(m)
	got := Decode(wire)

	if got.Errored() {
		t.Fatalf("decode failed on re-encoded message: %s", wire)
	}
	if !m.Equal(got) {
		t.Fatalf("round trip mismatch:\nwant %#v\ngot  %#v", m, got)
	}
}

func TestEncodeDecodeRoundTripBroadcast(t *testing.T) {
	src := mustId(t, "acme", "cm12", "srv")
	schema, _ := NewSchema("hbeat", "request")

	m := NewMessage(TypeCommand, src, schema)
	m.Broadcast = true
	_ = m.Add("command", "request")

	wire := Encode(m)
	got := Decode(wire)
	if got.Errored() {
		t.Fatalf("decode failed: %s", wire)
	}
	if !got.Broadcast {
		t.Fatal("expected broadcast flag to round-trip")
	}
	if !m.Equal(got) {
		t.Fatalf("round trip mismatch:\nwant %#v\ngot  %#v", m, got)
	}
}

func TestDecodeDuplicateNamesPreservedInOrder(t *testing.T) {
	raw := "xpl-trig\n{\nhop=1\nsource=acme-sensor.kitchen\ntarget=*\n}\nsensor.basic\n{\ndevice=temp\ndevice=humidity\n}\n"
	m := Decode([]byte(raw))
	if m.Errored() {
		t.Fatalf("unexpected decode error")
	}
	vals := m.All("device")
	if len(vals) != 2 || vals[0] != "temp" || vals[1] != "humidity" {
		t.Fatalf("expected ordered duplicates [temp humidity], got %v", vals)
	}
}

func TestDecodeHopOutOfRange(t *testing.T) {
	raw := "xpl-cmnd\n{\nhop=10\nsource=acme-cm12.srv\ntarget=*\n}\nhbeat.app\n{\n}\n"
	m := Decode([]byte(raw))
	if !m.Errored() {
		t.Fatal("expected hop=10 to be rejected")
	}
}

func TestDecodeMalformedHeader(t *testing.T) {
	raw := "not-an-xpl-header\n"
	m := Decode([]byte(raw))
	if !m.Errored() {
		t.Fatal("expected malformed header to error")
	}
}

func TestDecodeMissingClosingBraceIsError(t *testing.T) {
	// Open question (a) from spec.md §9: treated as malformed, not accepted.
	raw := "xpl-cmnd\n{\nhop=1\nsource=acme-cm12.srv\ntarget=*\n}\nhbeat.app\n{\ninterval=5\n"
	m := Decode([]byte(raw))
	if !m.Errored() {
		t.Fatal("expected missing closing brace to be malformed")
	}
}

func TestDecodeFeedAcrossChunks(t *testing.T) {
	raw := "xpl-stat\n{\nhop=1\nsource=acme-cm12.srv\ntarget=*\n}\nhbeat.app\n{\ninterval=5\n}\n"
	d := NewDecoder()
	for i := 0; i < len(raw); i++ {
		d.Feed([]byte{raw[i]})
	}
	if !d.Done() {
		t.Fatal("expected decoder to complete after full byte stream fed")
	}
	if d.Message().Errored() {
		t.Fatal("unexpected error decoding byte-at-a-time")
	}
	if v, ok := d.Message().Get("interval"); !ok || v != "5" {
		t.Fatalf("expected interval=5, got %q (%v)", v, ok)
	}
}

func TestIdTextRoundTrip(t *testing.T) {
	id := mustId(t, "acme", "cm12", "kitchen01234567")
	got, err := ParseId(id.String())
	if err != nil {
		t.Fatal(err)
	}
	if !id.Equal(got) {
		t.Fatalf("id round trip mismatch: %v != %v", id, got)
	}
}

func TestIdLengthBoundary(t *testing.T) {
	if _, err := NewId("12345678", "12345678", "1234567890123456"); err != nil {
		t.Fatalf("expected exact-limit components to be accepted: %v", err)
	}
	if _, err := NewId("123456789", "d", "i"); err == nil {
		t.Fatal("expected one-byte-over vendor to be rejected")
	}
}

func TestHopConstructedDefaultsInRange(t *testing.T) {
	src := mustId(t, "acme", "cm12", "srv")
	schema, _ := NewSchema("hbeat", "app")
	m := NewMessage(TypeStatus, src, schema)
	if m.Hop < HopMin || m.Hop > HopMax {
		t.Fatalf("constructed message hop %d out of range", m.Hop)
	}
}
