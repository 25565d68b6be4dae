package fabric

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	ibErrors "github.com/context-labs/ibtop/internal/errors"
	"github.com/context-labs/ibtop/internal/rate"
)

// VendorTag selects a counter layout from the compatibility table.
type VendorTag string

const GenericVendor VendorTag = "generic"

//go:embed compat.yaml
var defaultCompat []byte

// CounterSpec locates one counter file and describes its encoding.
type CounterSpec struct {
	File  string  `yaml:"file"`
	Width int     `yaml:"width"`
	Scale float64 `yaml:"scale"`
}

func (c CounterSpec) width() rate.Width {
	if c.Width == 32 {
		return rate.Width32
	}
	return rate.Width64
}

// Probe decides whether a layout applies to an adapter. Every non-empty
// clause must hold. Present and Absent are relative to a port directory.
type Probe struct {
	NamePrefix []string `yaml:"name_prefix"`
	Present    []string `yaml:"present"`
	Absent     []string `yaml:"absent"`
}

func (p Probe) empty() bool {
	return len(p.NamePrefix) == 0 && len(p.Present) == 0 && len(p.Absent) == 0
}

// Layout is the counter map and detection probe of one vendor driver.
type Layout struct {
	Tag         VendorTag                 `yaml:"tag"`
	Description string                    `yaml:"description"`
	Match       Probe                     `yaml:"match"`
	Counters    map[CounterID]CounterSpec `yaml:"counters"`

	builtin bool
}

// CompatTable is the ordered set of known vendor layouts.
type CompatTable struct {
	Layouts []*Layout `yaml:"vendors"`
	byTag   map[VendorTag]*Layout
}

// DefaultCompatTable returns the built-in layouts.
func DefaultCompatTable() *CompatTable {
	t, err := ParseCompatTable(defaultCompat)
	if err != nil {
		panic(fmt.Sprintf("embedded compat table: %v", err))
	}
	return t
}

// ParseCompatTable decodes and validates a YAML compatibility table.
func ParseCompatTable(data []byte) (*CompatTable, error) {
	var t CompatTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, ibErrors.WrapWithCode(err, ibErrors.ErrConfig,
			"Invalid counter compatibility table", "Check the YAML syntax of the compat file")
	}
	for i, l := range t.Layouts {
		if err := l.validate(); err != nil {
			return nil, ibErrors.WrapWithCode(err, ibErrors.ErrConfig,
				fmt.Sprintf("Invalid vendor layout #%d in compatibility table", i+1), "")
		}
	}
	t.index()
	return &t, nil
}

// LoadCompatFile reads a YAML table and merges it over the defaults.
func LoadCompatFile(fsys afero.Fs, path string) (*CompatTable, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, ibErrors.WrapWithCode(err, ibErrors.ErrConfig,
			"Cannot read counter compatibility file", "Fix compat_file in ~/.ibtop/config.yaml")
	}
	override, err := ParseCompatTable(data)
	if err != nil {
		return nil, err
	}
	t := DefaultCompatTable()
	t.Merge(override)
	return t, nil
}

func (l *Layout) validate() error {
	if l.Tag == "" {
		return fmt.Errorf("missing tag")
	}
	if len(l.Counters) == 0 {
		return fmt.Errorf("%s: no counters", l.Tag)
	}
	for id, spec := range l.Counters {
		if !id.Valid() {
			return fmt.Errorf("%s: unknown counter %q", l.Tag, id)
		}
		if spec.File == "" {
			return fmt.Errorf("%s: counter %s has no file", l.Tag, id)
		}
		if spec.Width == 0 {
			spec.Width = 64
		}
		if _, err := rate.ParseWidth(spec.Width); err != nil {
			return fmt.Errorf("%s: counter %s: %w", l.Tag, id, err)
		}
		if spec.Scale == 0 {
			spec.Scale = 1
		}
		if spec.Scale < 0 {
			return fmt.Errorf("%s: counter %s has negative scale", l.Tag, id)
		}
		l.Counters[id] = spec
	}
	return nil
}

func (t *CompatTable) index() {
	t.byTag = make(map[VendorTag]*Layout, len(t.Layouts))
	for _, l := range t.Layouts {
		t.byTag[l.Tag] = l
	}
	if _, ok := t.byTag[GenericVendor]; !ok {
		generic := builtinGeneric()
		t.Layouts = append(t.Layouts, generic)
		t.byTag[GenericVendor] = generic
	}
}

func builtinGeneric() *Layout {
	return &Layout{
		builtin:     true,
		Tag:         GenericVendor,
		Description: "Unknown driver, byte-unit best effort",
		Counters: map[CounterID]CounterSpec{
			TxData:    {File: "counters/port_xmit_data", Width: 64, Scale: 1},
			RxData:    {File: "counters/port_rcv_data", Width: 64, Scale: 1},
			TxPackets: {File: "counters/port_xmit_packets", Width: 64, Scale: 1},
			RxPackets: {File: "counters/port_rcv_packets", Width: 64, Scale: 1},
		},
	}
}

// Merge replaces layouts with the same tag and inserts new ones ahead of
// the generic fallback.
func (t *CompatTable) Merge(o *CompatTable) {
	for _, l := range o.Layouts {
		if l.builtin {
			continue
		}
		if existing, ok := t.byTag[l.Tag]; ok {
			*existing = *l
			continue
		}
		n := len(t.Layouts)
		t.Layouts = append(t.Layouts[:n-1], l, t.Layouts[n-1])
	}
	t.index()
}

// Layout returns the layout for tag, falling back to generic.
func (t *CompatTable) Layout(tag VendorTag) *Layout {
	if l, ok := t.byTag[tag]; ok {
		return l
	}
	return t.byTag[GenericVendor]
}

// Resolve probes layouts in order for the adapter. portDir may be empty when
// the adapter has no ports, in which case only name prefixes are checked.
func (t *CompatTable) Resolve(fsys afero.Fs, adapter, portDir string) VendorTag {
	for _, l := range t.Layouts {
		if l.Tag == GenericVendor {
			continue
		}
		if l.Match.empty() {
			continue
		}
		if l.Match.matches(fsys, adapter, portDir) {
			return l.Tag
		}
	}
	return GenericVendor
}

func (p Probe) matches(fsys afero.Fs, adapter, portDir string) bool {
	if len(p.NamePrefix) > 0 {
		ok := false
		for _, prefix := range p.NamePrefix {
			if strings.HasPrefix(adapter, prefix) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if portDir == "" {
		return len(p.Present) == 0
	}
	for _, rel := range p.Present {
		if exists, _ := afero.Exists(fsys, filepath.Join(portDir, rel)); !exists {
			return false
		}
	}
	for _, rel := range p.Absent {
		if exists, _ := afero.Exists(fsys, filepath.Join(portDir, rel)); exists {
			return false
		}
	}
	return true
}
