package fabric

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	ibErrors "github.com/context-labs/ibtop/internal/errors"
)

// Reading is one pass over a port's entries.
type Reading struct {
	At        time.Time
	State     LinkState
	LinkRate  string
	LinkLayer string
	Values    map[CounterID]uint64
	// Malformed lists entries whose contents did not parse as a counter.
	Malformed []string
}

// ReadPort reads link attributes and every counter the layout names. Missing
// counter files are omitted. It fails only when a counter directory of the
// port cannot be reached, which callers treat as a transient condition.
// It touches nothing but the filesystem, so distinct ports can be read
// concurrently.
func ReadPort(fsys afero.Fs, dir string, layout *Layout, now func() time.Time) (Reading, error) {
	r := Reading{Values: make(map[CounterID]uint64, len(layout.Counters))}

	for _, sub := range counterDirs(layout) {
		if _, err := fsys.Stat(filepath.Join(dir, sub)); err != nil {
			return r, ibErrors.Wrap(err, "cannot reach counters of "+dir)
		}
	}

	if s, err := readTrimmed(fsys, filepath.Join(dir, "state")); err == nil {
		r.State = ParseLinkState(s)
	}
	if s, err := readTrimmed(fsys, filepath.Join(dir, "rate")); err == nil {
		r.LinkRate = s
	}
	if s, err := readTrimmed(fsys, filepath.Join(dir, "link_layer")); err == nil {
		r.LinkLayer = s
	}

	for id, spec := range layout.Counters {
		path := filepath.Join(dir, spec.File)
		s, err := readTrimmed(fsys, path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			r.Malformed = append(r.Malformed, path)
			continue
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			r.Malformed = append(r.Malformed, path)
			continue
		}
		r.Values[id] = v
	}
	sort.Strings(r.Malformed)

	r.At = now()
	return r, nil
}

func counterDirs(layout *Layout) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, spec := range layout.Counters {
		d := filepath.Dir(spec.File)
		if d == "." || seen[d] {
			continue
		}
		seen[d] = true
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

func readTrimmed(fsys afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
