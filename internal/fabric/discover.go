package fabric

import (
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/afero"

	ibErrors "github.com/context-labs/ibtop/internal/errors"
)

// CheckRoot verifies the discovery root can be listed at all.
func CheckRoot(fsys afero.Fs, root string) error {
	if _, err := afero.ReadDir(fsys, root); err != nil {
		return ibErrors.WrapWithCode(err, ibErrors.ErrStartup,
			"Cannot read InfiniBand devices at "+root,
			"Load the ib_core/mlx5_ib modules, set INFINIBAND_PATH, or run with --demo")
	}
	return nil
}

// Discover lists adapters and their ports under root. Adapters are sorted by
// name and ports by number. Entries that cannot be read are skipped; only an
// unreadable root is an error.
func Discover(fsys afero.Fs, root string, table *CompatTable) ([]*Adapter, error) {
	entries, err := afero.ReadDir(fsys, root)
	if err != nil {
		return nil, ibErrors.WrapWithCode(err, ibErrors.ErrStartup,
			"Cannot read InfiniBand devices at "+root, "")
	}

	adapters := make([]*Adapter, 0, len(entries))
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		ports, ok := discoverPorts(fsys, dir)
		if !ok {
			continue
		}

		a := &Adapter{Name: e.Name(), Dir: dir}
		if desc, err := readTrimmed(fsys, filepath.Join(dir, "node_desc")); err == nil {
			a.Description = desc
		}
		probeDir := ""
		if len(ports) > 0 {
			probeDir = ports[0].Dir
		}
		a.Vendor = table.Resolve(fsys, a.Name, probeDir)
		for _, p := range ports {
			p.Adapter = a
		}
		a.Ports = ports
		adapters = append(adapters, a)
	}

	sort.Slice(adapters, func(i, j int) bool { return adapters[i].Name < adapters[j].Name })
	return adapters, nil
}

func discoverPorts(fsys afero.Fs, adapterDir string) ([]*Port, bool) {
	portsDir := filepath.Join(adapterDir, "ports")
	entries, err := afero.ReadDir(fsys, portsDir)
	if err != nil {
		return nil, false
	}

	ports := make([]*Port, 0, len(entries))
	for _, e := range entries {
		n, err := strconv.Atoi(e.Name())
		if err != nil || n <= 0 {
			continue
		}
		dir := filepath.Join(portsDir, e.Name())
		if _, err := fsys.Stat(dir); err != nil {
			continue
		}
		ports = append(ports, &Port{Number: n, Dir: dir})
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Number < ports[j].Number })
	return ports, true
}
