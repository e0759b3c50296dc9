package xpl

import (
	"strconv"
	"strings"
)

// DecodeState names the state of Decoder's pull state machine, mirroring
// spec.md §4.1. It is exported so collaborators (e.g. the ZigBee
// transport, which drip-feeds single bytes) can inspect decode progress.
type DecodeState int

const (
	StateInit DecodeState = iota
	StateHeader
	StateHeaderHop
	StateHeaderSource
	StateHeaderTarget
	StateHeaderEnd
	StateSchema
	StateBodyBegin
	StateBody
	StateBodyEnd
	StateEnd
	StateError
)

// Decoder is a pull state machine that accepts a byte stream
// progressively and may be re-entered on the next chunk. It never blocks
// and never allocates more than one Message at a time.
type Decoder struct {
	state   DecodeState
	pending []byte
	msg     *Message
}

// NewDecoder returns a Decoder ready to parse one message from scratch.
func NewDecoder() *Decoder {
	return &Decoder{state: StateInit, msg: &Message{received: true}}
}

// State returns the decoder's current state.
func (d *Decoder) State() DecodeState { return d.state }

// Done reports whether the decoder has reached a terminal state (a
// complete message, valid or errored).
func (d *Decoder) Done() bool {
	return d.state == StateEnd || d.state == StateError
}

// Message returns the message under construction (or completed). It is
// only safe to treat as immutable once Done reports true.
func (d *Decoder) Message() *Message { return d.msg }

// Reset prepares the decoder to parse the next message, discarding any
// completed or errored message and any unconsumed trailing bytes from
// after the previous message's closing line.
func (d *Decoder) Reset() {
	d.state = StateInit
	d.msg = &Message{received: true}
	d.pending = nil
}

// Feed appends data to the decoder's internal buffer and advances the
// state machine as far as complete lines allow. It returns after
// reaching a terminal state or after consuming every complete line
// currently buffered (a partial trailing line, if any, is retained for
// the next Feed call).
func (d *Decoder) Feed(data []byte) {
	d.pending = append(d.pending, data...)
	for !d.Done() {
		line, rest, ok := cutLine(d.pending)
		if !ok {
			return
		}
		d.pending = rest
		d.step(line)
	}
}

func cutLine(buf []byte) (line string, rest []byte, ok bool) {
	idx := indexByte(buf, '\n')
	if idx < 0 {
		return "", buf, false
	}
	return string(buf[:idx]), buf[idx+1:], true
}

func indexByte(buf []byte, c byte) int {
	for i, b := range buf {
		if b == c {
			return i
		}
	}
	return -1
}

func (d *Decoder) fail() {
	d.msg.errored = true
	d.state = StateError
}

func (d *Decoder) step(line string) {
	switch d.state {
	case StateInit:
		if len(line) != 8 || !strings.HasPrefix(line, "xpl-") {
			d.fail()
			return
		}
		typ, ok := parseMessageType(line[4:])
		if !ok {
			d.fail()
			return
		}
		d.msg.Type = typ
		d.state = StateHeader

	case StateHeader:
		if line != "{" {
			d.fail()
			return
		}
		d.state = StateHeaderHop

	case StateHeaderHop:
		name, value, ok := splitPair(line)
		if !ok || name != "hop" {
			d.fail()
			return
		}
		hop, err := strconv.Atoi(value)
		if err != nil || hop < HopMin || hop > HopMax {
			d.fail()
			return
		}
		d.msg.Hop = hop
		d.state = StateHeaderSource

	case StateHeaderSource:
		name, value, ok := splitPair(line)
		if !ok || name != "source" {
			d.fail()
			return
		}
		id, err := ParseId(value)
		if err != nil {
			d.fail()
			return
		}
		d.msg.Source = id
		d.state = StateHeaderTarget

	case StateHeaderTarget:
		name, value, ok := splitPair(line)
		if !ok || name != "target" {
			d.fail()
			return
		}
		if value == "*" {
			d.msg.Broadcast = true
		} else {
			id, err := ParseId(value)
			if err != nil {
				d.fail()
				return
			}
			d.msg.Target = id
		}
		d.state = StateHeaderEnd

	case StateHeaderEnd:
		if line != "}" {
			d.fail()
			return
		}
		d.state = StateSchema

	case StateSchema:
		schema, err := ParseSchema(line)
		if err != nil {
			d.fail()
			return
		}
		d.msg.Schema = schema
		d.state = StateBodyBegin

	case StateBodyBegin:
		if line != "{" {
			d.fail()
			return
		}
		d.state = StateBody

	case StateBody:
		if line == "}" {
			d.state = StateEnd
			return
		}
		name, value, ok := splitPair(line)
		if !ok {
			// A body line with no '=' is not itself an error: it
			// signals the body is finished; the next line must close it.
			d.state = StateBodyEnd
			return
		}
		if len(name) > NameMax {
			d.fail()
			return
		}
		d.msg.Body = append(d.msg.Body, Pair{Name: name, Value: value})

	case StateBodyEnd:
		if line != "}" {
			// Open question (a): a missing closing brace is malformed,
			// not silently accepted.
			d.fail()
			return
		}
		d.state = StateEnd

	default:
		d.fail()
	}
}

func splitPair(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, '=')
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], line[idx+1:], true
}

// Decode runs a fresh Decoder over a complete buffer and returns the
// resulting Message (always non-nil; check Errored for malformed input).
func Decode(data []byte) *Message {
	d := NewDecoder()
	d.Feed(data)
	if !d.Done() {
		// Incomplete frame: no closing body brace seen at all.
		d.fail()
	}
	return d.msg
}
