package xpl

import "testing"

func TestFilterAllWildcardMatchesEverything(t *testing.T) {
	f := Filter{Type: TypeAny}
	src, _ := NewId("x10", "security", "foo")
	schema, _ := NewSchema("x10", "basic")
	m := &Message{Type: TypeCommand, Source: src, Schema: schema}
	if !f.Match(m) {
		t.Fatal("expected all-wildcard filter to match")
	}
}

func TestFilterMismatchOnSchemaDoesNotMatch(t *testing.T) {
	f, err := ParseFilter("stat.acme.*.*.sensor.basic")
	if err != nil {
		t.Fatal(err)
	}
	src, _ := NewId("acme", "cm12", "srv")
	schema, _ := NewSchema("x10", "basic")
	m := &Message{Type: TypeStatus, Source: src, Schema: schema}
	if f.Match(m) {
		t.Fatal("expected schema mismatch to fail match")
	}
}

func TestFilterBroadcastDropScenario(t *testing.T) {
	// spec.md §8 scenario 2: a device with filter stat.acme.*.*.sensor.basic
	// must not match broadcast xpl-cmnd/x10.basic.
	f, err := ParseFilter("stat.acme.*.*.sensor.basic")
	if err != nil {
		t.Fatal(err)
	}
	src, _ := NewId("x10", "security", "device")
	schema, _ := NewSchema("x10", "basic")
	m := &Message{Type: TypeCommand, Broadcast: true, Source: src, Schema: schema}
	if f.Match(m) {
		t.Fatal("expected filter to drop unrelated broadcast command")
	}
}

func TestFilterTextRoundTrip(t *testing.T) {
	f, err := ParseFilter("stat.acme.sensor.kitchen.sensor.basic")
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseFilter(f.String())
	if err != nil {
		t.Fatal(err)
	}
	if f != got {
		t.Fatalf("filter round trip mismatch: %v != %v", f, got)
	}
}

func TestFilterSourceWildcardsArePerComponent(t *testing.T) {
	// stat.acme.*.*.sensor.basic wildcards device and instance but fixes
	// vendor; a message from a different vendor must not match even
	// though device/instance are wildcarded.
	f, err := ParseFilter("stat.acme.*.*.sensor.basic")
	if err != nil {
		t.Fatal(err)
	}
	schema, _ := NewSchema("sensor", "basic")

	matching, _ := NewId("acme", "cm12", "srv")
	if !f.Match(&Message{Type: TypeStatus, Source: matching, Schema: schema}) {
		t.Fatal("expected wildcarded device/instance to match any value")
	}

	other, _ := NewId("other", "cm12", "srv")
	if f.Match(&Message{Type: TypeStatus, Source: other, Schema: schema}) {
		t.Fatal("expected non-wildcard vendor mismatch to fail match")
	}
}

func TestFilterVendorWildcardDeviceFixedStillChecksDevice(t *testing.T) {
	// *.*.sensor.*.*.* wildcards vendor but fixes device; the vendor
	// wildcard must not also skip the device comparison.
	f, err := ParseFilter("*.*.sensor.*.*.*")
	if err != nil {
		t.Fatal(err)
	}
	schema, _ := NewSchema("x10", "basic")

	matching, _ := NewId("acme", "sensor", "kitchen")
	if !f.Match(&Message{Type: TypeStatus, Source: matching, Schema: schema}) {
		t.Fatal("expected matching device to pass")
	}

	other, _ := NewId("acme", "cm12", "kitchen")
	if f.Match(&Message{Type: TypeStatus, Source: other, Schema: schema}) {
		t.Fatal("expected device mismatch to fail despite wildcard vendor")
	}
}

func TestFilterCaseInsensitiveIdMatch(t *testing.T) {
	f, err := ParseFilter("trig.ACME.cm12.SRV..")
	if err != nil {
		t.Fatal(err)
	}
	src, _ := NewId("acme", "CM12", "srv")
	schema, _ := NewSchema("hbeat", "app")
	m := &Message{Type: TypeTrigger, Source: src, Schema: schema}
	if !f.Match(m) {
		t.Fatal("expected case-insensitive id comparison to match")
	}
}
