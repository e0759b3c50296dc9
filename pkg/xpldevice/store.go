package xpldevice

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ConfigStore is the persistence hook invoked after a successful
// config.response (spec.md §4.5 step 4, §6 "Persisted configuration
// file"). It is diagnostics/durability plumbing, never on the
// protocol-correctness hot path.
type ConfigStore interface {
	Save(d *Device) error
}

// FileStore persists one Device per file under Dir, named
// "<vendor>-<device>.conf" (spec.md §6: "One device per file").
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore { return &FileStore{Dir: dir} }

func (s *FileStore) path(d *Device) string {
	return s.Dir + "/" + d.ID.Vendor + "-" + d.ID.Device + ".conf"
}

// Save writes d's declared items and current values in the format
// described by spec.md §6: a "[vendor-device]" header, then one
// "config=" / "option=" / "reconf=" line per declared item (with an
// optional "[maxValues]" suffix), then current values.
func (s *FileStore) Save(d *Device) error {
	if s.Dir == "" {
		return fmt.Errorf("xpldevice: FileStore has no directory configured")
	}
	f, err := os.Create(s.path(d))
	if err != nil {
		return fmt.Errorf("xpldevice: create config file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "[%s-%s]\n", d.ID.Vendor, d.ID.Device)
	for _, item := range d.items {
		fmt.Fprintln(w, item.spec())
	}
	fmt.Fprintf(w, "newconf=%s\n", d.ID.Instance)
	fmt.Fprintf(w, "interval=%d\n", d.heartbeatIntervalSec/60)
	for _, g := range d.groups {
		fmt.Fprintf(w, "group=xpl-group.%s\n", g)
	}
	for _, filt := range d.filters {
		fmt.Fprintf(w, "filter=%s\n", filt.String())
	}
	for _, item := range d.items {
		for _, v := range item.Values {
			fmt.Fprintf(w, "%s=%s\n", item.Name, v)
		}
	}
	return w.Flush()
}

// LoadedConfig is the result of parsing a persisted config file: the
// declared items and the current key/value lines that followed them.
type LoadedConfig struct {
	Items  []*ConfigItem
	Values []struct{ Name, Value string }
}

// Load reads and parses the persisted file for vendor-device from dir.
// The reader is permissive (spec.md §6): unknown keys are kept in
// Values rather than rejected, and malformed "[maxValues]" suffixes
// fall back to 1.
func (s *FileStore) Load(vendor, device string) (*LoadedConfig, error) {
	f, err := os.Open(s.Dir + "/" + vendor + "-" + device + ".conf")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lc := &LoadedConfig{}
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if strings.HasPrefix(line, "[") {
				continue
			}
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key, value := line[:eq], line[eq+1:]
		switch key {
		case "config", "option", "reconf":
			name, maxValues := parseItemSpec(value)
			lc.Items = append(lc.Items, &ConfigItem{Kind: ItemKind(key), Name: name, MaxValues: maxValues})
		default:
			lc.Values = append(lc.Values, struct{ Name, Value string }{key, value})
		}
	}
	return lc, scanner.Err()
}

var _ = strconv.Itoa // retained for parity with FileStore.Save's formatting helpers
