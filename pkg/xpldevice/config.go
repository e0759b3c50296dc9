package xpldevice

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/xplgo/gxpl/pkg/xpl"
)

// ItemKind names the three declaration headers a configurable item can
// use (spec.md §6 persisted file format, §4.5 config.list).
type ItemKind string

const (
	KindReconf ItemKind = "reconf"
	KindOption ItemKind = "option"
	KindConfig ItemKind = "config"
)

// ConfigItem is one declared configurable item: its kind, name,
// maximum value count, and current values (spec.md §4.5).
type ConfigItem struct {
	Kind      ItemKind
	Name      string
	MaxValues int
	Values    []string

	schema json.RawMessage // optional JSON Schema, see WithSchema
}

func (item *ConfigItem) spec() string {
	if item.MaxValues != 1 {
		return fmt.Sprintf("%s=%s[%d]", item.Kind, item.Name, item.MaxValues)
	}
	return fmt.Sprintf("%s=%s", item.Kind, item.Name)
}

func parseItemSpec(value string) (name string, maxValues int) {
	maxValues = 1
	open := strings.IndexByte(value, '[')
	if open < 0 || !strings.HasSuffix(value, "]") {
		return value, maxValues
	}
	name = value[:open]
	if n, err := strconv.Atoi(value[open+1 : len(value)-1]); err == nil && n > 0 {
		maxValues = n
	}
	return name, maxValues
}

// AddConfigItem declares a user-defined configurable item (spec.md
// §4.5's "one entry per user-defined item").
func (d *Device) AddConfigItem(name string, maxValues int) *ConfigItem {
	if maxValues <= 0 {
		maxValues = 1
	}
	item := &ConfigItem{Kind: KindConfig, Name: name, MaxValues: maxValues}
	d.items = append(d.items, item)
	return item
}

// ConfigValue returns the first value of the named configurable item, if
// any is currently set (used by callers — e.g. the bridge's panid
// configurable — that react to a single-value item changing).
func (d *Device) ConfigValue(name string) (string, bool) {
	item := d.findItem(name)
	if item == nil || len(item.Values) == 0 {
		return "", false
	}
	return item.Values[0], true
}

func (d *Device) validator() *itemValidator {
	if d.itemValidator == nil {
		d.itemValidator = newItemValidator()
	}
	return d.itemValidator
}

func (d *Device) findItem(name string) *ConfigItem {
	for _, item := range d.items {
		if item.Name == name {
			return item
		}
	}
	return nil
}

func (d *Device) handleConfig(msg *xpl.Message) {
	switch msg.Schema.Type {
	case "list":
		if cmd, _ := msg.Get("command"); cmd == "request" {
			d.replyConfigList()
		}
	case "current":
		if cmd, _ := msg.Get("command"); cmd == "request" {
			d.replyConfigCurrent()
		}
	case "response":
		d.applyConfig(msg)
	}
}

func (d *Device) replyConfigList() {
	schema, _ := xpl.NewSchema("config", "list")
	reply := xpl.NewMessage(xpl.TypeStatus, d.ID, schema)
	reply.Broadcast = true
	for _, item := range d.items {
		spec := item.spec()
		eq := strings.IndexByte(spec, '=')
		_ = reply.Add(spec[:eq], spec[eq+1:])
	}
	_ = d.app.Send(reply, nil)
}

func (d *Device) replyConfigCurrent() {
	schema, _ := xpl.NewSchema("config", "current")
	reply := xpl.NewMessage(xpl.TypeStatus, d.ID, schema)
	reply.Broadcast = true
	_ = reply.Add("newconf", d.ID.Instance)
	_ = reply.Add("interval", strconv.Itoa(d.heartbeatIntervalSec/60))

	if len(d.groups) == 0 {
		_ = reply.Add("group", "")
	} else {
		for _, g := range d.groups {
			_ = reply.Add("group", "xpl-group."+g)
		}
	}
	if len(d.filters) == 0 {
		_ = reply.Add("filter", "")
	} else {
		for _, f := range d.filters {
			_ = reply.Add("filter", f.String())
		}
	}
	for _, item := range d.items {
		for _, v := range item.Values {
			_ = reply.Add(item.Name, v)
		}
	}
	_ = d.app.Send(reply, nil)
}

// applyConfig implements spec.md §4.5 "Applying configuration": clear
// the declared items/groups/filters, re-declare them from the
// config/option/reconf pairs (first pass), then apply every pair after
// the last declaration as a value (second pass).
func (d *Device) applyConfig(msg *xpl.Message) {
	oldSchemas := make(map[string]json.RawMessage, len(d.items))
	for _, item := range d.items {
		if item.schema != nil {
			oldSchemas[item.Name] = item.schema
		}
	}

	d.items = nil
	d.groups = nil
	d.filters = nil

	lastDecl := -1
	for i, p := range msg.Body {
		switch p.Name {
		case "config", "option", "reconf":
			name, maxValues := parseItemSpec(p.Value)
			d.items = append(d.items, &ConfigItem{Kind: ItemKind(p.Name), Name: name, MaxValues: maxValues, schema: oldSchemas[name]})
			lastDecl = i
		}
	}

	for i := lastDecl + 1; i < len(msg.Body); i++ {
		p := msg.Body[i]
		switch p.Name {
		case "newconf":
			d.pendingInstanceID = p.Value
		case "interval":
			if minutes, err := strconv.Atoi(p.Value); err == nil {
				secs := minutes * 60
				if secs >= MinHeartbeatIntervalSec && secs <= MaxHeartbeatIntervalSec {
					d.heartbeatIntervalSec = secs
				}
			}
		case "group":
			if p.Value != "" {
				name := strings.TrimPrefix(p.Value, "xpl-group.")
				_ = d.AddGroup(name)
			}
		case "filter":
			if p.Value != "" {
				if f, err := xpl.ParseFilter(p.Value); err == nil {
					_ = d.AddFilter(f)
				}
			}
		default:
			if item := d.findItem(p.Name); item != nil {
				if len(item.Values) < item.MaxValues {
					if item.schema != nil {
						if err := d.validator().validate(item.schema, p.Value); err != nil {
							log.Warn().Err(err).Str("item", item.Name).Msg("xpldevice: rejected config item value")
							continue
						}
					}
					item.Values = append(item.Values, p.Value)
				}
			}
		}
	}

	d.configured = true
	if d.store != nil {
		if err := d.store.Save(d); err != nil {
			_ = err // diagnostics-only persistence, spec.md §9 Design Notes
		}
	}

	wasEnabled := d.enabled
	if wasEnabled {
		_ = d.Enable(false)
	}
	if d.pendingInstanceID != "" {
		d.ID.Instance = d.pendingInstanceID
		d.pendingInstanceID = ""
	}
	if wasEnabled {
		_ = d.Enable(true)
	}

	for _, fn := range d.configListeners {
		fn(d)
	}
}
