package xplio

// XBee API frame (non-escaped, API mode 1): 0x7E, 2-byte big-endian
// length, frame data (type + payload), 1-byte checksum. Grounded on
// the framing style of the teacher's pkg/zigbee/ash.go (length-prefixed
// frame, trailing checksum) adapted to the XBee API protocol named in
// spec.md §4.2 rather than ASH.
const frameDelimiter = 0x7E

type apiFrame struct {
	typ     byte
	payload []byte // everything in the frame data after the type byte
}

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return 0xFF - sum
}

func buildFrame(typ byte, payload []byte) []byte {
	data := make([]byte, 0, 1+len(payload))
	data = append(data, typ)
	data = append(data, payload...)

	out := make([]byte, 0, 4+len(data))
	out = append(out, frameDelimiter)
	out = append(out, byte(len(data)>>8), byte(len(data)&0xFF))
	out = append(out, data...)
	out = append(out, checksum(data))
	return out
}

func encodeATCommandFrame(frameID byte, cmd string, params []byte) []byte {
	payload := make([]byte, 0, 3+len(params))
	payload = append(payload, frameID)
	payload = append(payload, cmd[0], cmd[1])
	payload = append(payload, params...)
	return buildFrame(frameTypeATCommand, payload)
}

func encodeTxRequestFrame(frameID byte, dst64 [8]byte, dst16 [2]byte, data []byte) []byte {
	payload := make([]byte, 0, 12+len(data))
	payload = append(payload, frameID)
	payload = append(payload, dst64[:]...)
	payload = append(payload, dst16[:]...)
	payload = append(payload, 0x00) // broadcast radius: max hops
	payload = append(payload, 0x00) // options: none
	payload = append(payload, data...)
	return buildFrame(frameTypeTxRequest, payload)
}

// extractFrame scans buf for one complete, checksum-valid API frame.
// It returns ok=false (with rest holding whatever should be kept for
// the next call) when buf holds no complete frame yet. Bytes before an
// unexpected delimiter or a failed checksum are discarded so the
// parser resynchronizes on the next 0x7E.
func extractFrame(buf []byte) (frame apiFrame, rest []byte, ok bool) {
	start := -1
	for i, b := range buf {
		if b == frameDelimiter {
			start = i
			break
		}
	}
	if start < 0 {
		return apiFrame{}, nil, false
	}
	buf = buf[start:]
	if len(buf) < 3 {
		return apiFrame{}, buf, false
	}
	length := int(buf[1])<<8 | int(buf[2])
	total := 3 + length + 1
	if len(buf) < total {
		return apiFrame{}, buf, false
	}
	data := buf[3 : 3+length]
	want := buf[3+length]
	if checksum(data) != want || length < 1 {
		// Resync: drop just the bad delimiter and retry from the rest.
		return apiFrame{}, buf[1:], false
	}
	return apiFrame{typ: data[0], payload: data[1:]}, buf[total:], true
}
