package xplio

import "testing"

func TestEncodeDecodeATCommandFrame(t *testing.T) {
	raw := encodeATCommandFrame(7, "NP", nil)
	frame, rest, ok := extractFrame(raw)
	if !ok {
		t.Fatal("expected a complete frame")
	}
	if len(rest) != 0 {
		t.Fatalf("expected no leftover bytes, got %d", len(rest))
	}
	if frame.typ != frameTypeATCommand {
		t.Fatalf("wrong frame type: 0x%02x", frame.typ)
	}
	if frame.payload[0] != 7 || string(frame.payload[1:3]) != "NP" {
		t.Fatalf("unexpected payload: %v", frame.payload)
	}
}

func TestExtractFrameIncompleteReturnsNotOk(t *testing.T) {
	raw := encodeATCommandFrame(1, "VR", nil)
	_, rest, ok := extractFrame(raw[:len(raw)-2])
	if ok {
		t.Fatal("expected incomplete frame to report not ok")
	}
	if len(rest) == 0 {
		t.Fatal("expected partial bytes retained for the next read")
	}
}

func TestExtractFrameResyncsPastBadChecksum(t *testing.T) {
	raw := encodeATCommandFrame(1, "VR", nil)
	raw[len(raw)-1] ^= 0xFF // corrupt the checksum
	_, rest, ok := extractFrame(raw)
	if ok {
		t.Fatal("expected corrupted frame to be rejected")
	}
	if len(rest) != len(raw)-1 {
		t.Fatalf("expected resync to drop exactly the leading delimiter, got %d bytes left", len(rest))
	}
}

func TestExtractFrameSkipsGarbageBeforeDelimiter(t *testing.T) {
	raw := append([]byte{0x01, 0x02, 0x03}, encodeATCommandFrame(2, "ID", []byte{0xAA})...)
	frame, _, ok := extractFrame(raw)
	if !ok {
		t.Fatal("expected frame to be found after leading garbage")
	}
	if frame.payload[0] != 2 {
		t.Fatalf("unexpected frame id %d", frame.payload[0])
	}
}

func TestTxRequestFrameRoundTrip(t *testing.T) {
	var dst64 [8]byte
	dst64[7] = 0x42
	raw := encodeTxRequestFrame(3, dst64, addr16Unknown, []byte("xpl-stat"))
	frame, _, ok := extractFrame(raw)
	if !ok {
		t.Fatal("expected complete tx request frame")
	}
	if frame.typ != frameTypeTxRequest {
		t.Fatalf("wrong type: 0x%02x", frame.typ)
	}
	payload := frame.payload
	if payload[0] != 3 {
		t.Fatalf("unexpected frame id: %d", payload[0])
	}
	data := payload[13:]
	if string(data) != "xpl-stat" {
		t.Fatalf("unexpected RF data: %q", data)
	}
}
