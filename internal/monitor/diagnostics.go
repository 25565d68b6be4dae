package monitor

import (
	"strings"

	"github.com/context-labs/ibtop/internal/logger"
)

// diagnostics emits at most one warning per key until the key is cleared.
type diagnostics struct {
	log  logger.Logger
	seen map[string]bool
}

func newDiagnostics(l logger.Logger) *diagnostics {
	return &diagnostics{log: l, seen: make(map[string]bool)}
}

func (d *diagnostics) once(key, format string, args ...interface{}) bool {
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	d.log.Warn(format, args...)
	return true
}

func (d *diagnostics) clear(key string) {
	delete(d.seen, key)
}

func (d *diagnostics) clearPrefix(prefix string) {
	for k := range d.seen {
		if strings.HasPrefix(k, prefix) {
			delete(d.seen, k)
		}
	}
}
