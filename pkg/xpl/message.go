package xpl

import (
	"strconv"
	"strings"
)

// MessageType is the xPL message class: command, status, or trigger.
// TypeAny is a sentinel used only by Filter, never set on a real Message.
type MessageType int

const (
	TypeCommand MessageType = iota
	TypeStatus
	TypeTrigger
	TypeAny
)

func (t MessageType) wireName() string {
	switch t {
	case TypeCommand:
		return "cmnd"
	case TypeStatus:
		return "stat"
	case TypeTrigger:
		return "trig"
	default:
		return ""
	}
}

func parseMessageType(s string) (MessageType, bool) {
	switch s {
	case "cmnd":
		return TypeCommand, true
	case "stat":
		return TypeStatus, true
	case "trig":
		return TypeTrigger, true
	default:
		return 0, false
	}
}

// String renders the message type's xpl-<cmnd|stat|trig> textual form.
func (t MessageType) String() string {
	name := t.wireName()
	if name == "" {
		return "any"
	}
	return "xpl-" + name
}

const (
	// HopMin and HopMax bound a Message's hop count (spec.md §3).
	HopMin = 1
	HopMax = 9
)

// Message is an in-memory xPL frame: header (type, hop, source, target,
// broadcast flag), schema, and an ordered body. Messages are created
// empty by NewMessage or by Decoder, mutated only by their owner until
// sent, and are immutable from a listener's point of view once decoded.
type Message struct {
	Type      MessageType
	Hop       int
	Source    Id
	Target    Id
	Broadcast bool
	Schema    Schema
	Body      []Pair

	received bool
	errored  bool
}

// NewMessage creates an empty, well-formed outbound message with Hop=1.
func NewMessage(typ MessageType, source Id, schema Schema) *Message {
	return &Message{
		Type:   typ,
		Hop:    HopMin,
		Source: source,
		Schema: schema,
	}
}

// Received reports whether this message arrived via Decoder (as opposed
// to being constructed locally for sending).
func (m *Message) Received() bool { return m.received }

// Errored reports whether this message failed to decode; a single
// malformed frame is flagged here rather than aborting the I/O loop.
func (m *Message) Errored() bool { return m.errored }

// Add appends a name/value pair to the body, preserving insertion order.
// Returns ErrTooLong if name exceeds NameMax.
func (m *Message) Add(name, value string) error {
	p, err := NewPair(name, value)
	if err != nil {
		return err
	}
	m.Body = append(m.Body, p)
	return nil
}

// Get returns the value of the first pair named name, and whether it was found.
func (m *Message) Get(name string) (string, bool) {
	for _, p := range m.Body {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// All returns every pair named name, in insertion order (duplicates preserved).
func (m *Message) All(name string) []string {
	var vals []string
	for _, p := range m.Body {
		if p.Name == name {
			vals = append(vals, p.Value)
		}
	}
	return vals
}

// Equal reports structural equality: same header fields, schema, and an
// identical ordered body. Used by the round-trip tests in spec.md §8.
func (m *Message) Equal(other *Message) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.Type != other.Type || m.Hop != other.Hop || m.Broadcast != other.Broadcast {
		return false
	}
	if !m.Source.Equal(other.Source) {
		return false
	}
	if !m.Broadcast && !m.Target.Equal(other.Target) {
		return false
	}
	if !m.Schema.Equal(other.Schema) {
		return false
	}
	if len(m.Body) != len(other.Body) {
		return false
	}
	for i := range m.Body {
		if m.Body[i] != other.Body[i] {
			return false
		}
	}
	return true
}

// Encode serializes m into its canonical wire form: LF-terminated lines,
// names in insertion order, no leading whitespace.
func Encode(m *Message) []byte {
	var b strings.Builder
	b.WriteString(m.Type.String())
	b.WriteByte('\n')
	b.WriteString("{\n")
	b.WriteString("hop=")
	b.WriteString(strconv.Itoa(m.Hop))
	b.WriteByte('\n')
	b.WriteString("source=")
	b.WriteString(m.Source.String())
	b.WriteByte('\n')
	b.WriteString("target=")
	if m.Broadcast {
		b.WriteByte('*')
	} else {
		b.WriteString(m.Target.String())
	}
	b.WriteByte('\n')
	b.WriteString("}\n")
	b.WriteString(m.Schema.String())
	b.WriteByte('\n')
	b.WriteString("{\n")
	for _, p := range m.Body {
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(p.Value)
		b.WriteByte('\n')
	}
	b.WriteString("}\n")
	return []byte(b.String())
}
