package xpl

import "strings"

// Filter matches messages against a (type, source, schema) predicate,
// any component of which may be a wildcard. It is the predicate used by
// device.Device listeners and broadcast filtering (spec.md §4.4, §4.5).
type Filter struct {
	Type   MessageType // TypeAny wildcards the type
	Source Id          // zero-value Id wildcards the source
	Schema Schema       // zero-value, or a wildcard component, wildcards the schema
}

const wildcard = "*"

func isWildcardComponent(s string) bool {
	return s == "" || s == wildcard || strings.EqualFold(s, "any")
}

// Match reports whether m satisfies f: every non-wildcard component of f
// must equal the corresponding component of m. Ids are compared
// case-insensitively; an all-wildcard filter matches everything.
func (f Filter) Match(m *Message) bool {
	if f.Type != TypeAny && f.Type != m.Type {
		return false
	}
	if !idMatches(f.Source, m.Source) {
		return false
	}
	if !schemaMatches(f.Schema, m.Schema) {
		return false
	}
	return true
}

// idMatches compares pattern against actual component by component: an
// empty (wildcard) component matches anything, any other component must
// match case-insensitively (spec.md §8 "filter with non-wildcard
// mismatch on any axis matches nothing").
func idMatches(pattern, actual Id) bool {
	if !isWildcardComponent(pattern.Vendor) && !strings.EqualFold(pattern.Vendor, actual.Vendor) {
		return false
	}
	if !isWildcardComponent(pattern.Device) && !strings.EqualFold(pattern.Device, actual.Device) {
		return false
	}
	if !isWildcardComponent(pattern.Instance) && !strings.EqualFold(pattern.Instance, actual.Instance) {
		return false
	}
	return true
}

func schemaMatches(pattern, actual Schema) bool {
	if !isWildcardComponent(pattern.Class) && !strings.EqualFold(pattern.Class, actual.Class) {
		return false
	}
	if !isWildcardComponent(pattern.Type) && !strings.EqualFold(pattern.Type, actual.Type) {
		return false
	}
	return true
}

// ParseFilter parses the textual form
// "msgtype.vendor.device.instance.class.type" (spec.md §4.5). Any segment
// may be empty or "*" to signal a wildcard; a missing Id segment leaves
// the corresponding Filter.Source field a wildcard.
func ParseFilter(s string) (Filter, error) {
	parts := strings.SplitN(s, ".", 6)
	for len(parts) < 6 {
		parts = append(parts, "")
	}

	var f Filter
	switch strings.ToLower(parts[0]) {
	case "", "*", "any":
		f.Type = TypeAny
	default:
		typ, ok := parseMessageType(parts[0])
		if !ok {
			return Filter{}, ErrMalformed
		}
		f.Type = typ
	}

	vendor, device, instance := parts[1], parts[2], parts[3]
	if !isWildcardComponent(vendor) || !isWildcardComponent(device) || !isWildcardComponent(instance) {
		id, err := NewId(emptyIfWildcard(vendor), emptyIfWildcard(device), emptyIfWildcard(instance))
		if err != nil {
			return Filter{}, err
		}
		f.Source = id
	}

	class, typ := parts[4], parts[5]
	f.Schema = Schema{Class: emptyIfWildcard(class), Type: emptyIfWildcard(typ)}

	return f, nil
}

func emptyIfWildcard(s string) string {
	if isWildcardComponent(s) {
		return ""
	}
	return s
}

// String renders the textual form accepted by ParseFilter.
func (f Filter) String() string {
	typ := "*"
	if f.Type != TypeAny {
		typ = f.Type.wireName()
	}
	vendor, device, instance := "*", "*", "*"
	if !f.Source.IsZero() {
		vendor, device, instance = nonEmptyOr(f.Source.Vendor), nonEmptyOr(f.Source.Device), nonEmptyOr(f.Source.Instance)
	}
	class, schemaType := nonEmptyOr(f.Schema.Class), nonEmptyOr(f.Schema.Type)
	return strings.Join([]string{typ, vendor, device, instance, class, schemaType}, ".")
}

func nonEmptyOr(s string) string {
	if s == "" {
		return "*"
	}
	return s
}
