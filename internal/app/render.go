package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/context-labs/ibtop/internal/fabric"
	"github.com/context-labs/ibtop/internal/monitor"
)

const (
	placeholderPending = "pending"
	placeholderFailed  = "n/a"
	noAdaptersMessage  = "No InfiniBand adapters found"
	defaultLinkBytes   = 12.5e9
)

var (
	sparkRunes = []rune("▁▂▃▄▅▆▇█")
	markupSafe = strings.NewReplacer("[", "(", "]", ")")
)

// BuildFrame projects a snapshot onto a terminal of the given size. It has
// no side effects, so a resize only needs another call with new dimensions.
func BuildFrame(snap monitor.Snapshot, host HostInfo, width, height int, interval time.Duration, th Theme) Frame {
	inner := width - 2
	if inner < 1 {
		inner = 1
	}
	cols := columnsFor(inner)

	f := Frame{
		Title:  buildTitle(snap, host),
		Header: buildHeader(cols, th),
		Footer: buildFooter(snap, interval),
	}

	if len(snap.Adapters) == 0 {
		f.Message = noAdaptersMessage
		if snap.RootErr != "" {
			f.Message += ": " + snap.RootErr
		}
	}

	for _, a := range snap.Adapters {
		f.Rows = append(f.Rows, adapterRow(a, th))
		for _, p := range a.Ports {
			f.Rows = append(f.Rows, portRow(p, cols, th))
		}
	}
	if capacity := listCapacity(height); capacity > 1 && len(f.Rows) > capacity {
		hidden := len(f.Rows) - capacity + 1
		f.Rows = append(f.Rows[:capacity-1], fmt.Sprintf("[… %d more rows, enlarge the terminal](fg:%s)", hidden, th.Text))
	}

	points := width/2 - 2
	if points < 1 {
		points = 1
	}
	f.RxHistory = lastN(snap.Totals.RxHistory, points)
	f.TxHistory = lastN(snap.Totals.TxHistory, points)
	f.RxTitle = fmt.Sprintf("RX %s (peak %s)", formatRate(snap.Totals.RxBytes), formatRate(peak(f.RxHistory)))
	f.TxTitle = fmt.Sprintf("TX %s (peak %s)", formatRate(snap.Totals.TxBytes), formatRate(peak(f.TxHistory)))
	return f
}

// listCapacity is how many body rows fit in the port list: three quarters
// of the screen above the footer, minus borders and the header row.
func listCapacity(height int) int {
	return (height-1)*3/4 - 3
}

func buildTitle(snap monitor.Snapshot, host HostInfo) string {
	name := host.Hostname
	if name == "" {
		name = "localhost"
	}
	return fmt.Sprintf(" ibtop - %s │ RX %s  TX %s │ %d adapters, %d/%d ports active ",
		name,
		formatRate(snap.Totals.RxBytes),
		formatRate(snap.Totals.TxBytes),
		snap.Totals.Adapters,
		snap.Totals.ActivePorts,
		snap.Totals.Ports,
	)
}

func buildFooter(snap monitor.Snapshot, interval time.Duration) string {
	return fmt.Sprintf(" q/Esc quit │ interval %s │ tick p50 %s p99 %s │ ibtop %s",
		interval,
		snap.Latency.P50.Round(time.Microsecond),
		snap.Latency.P99.Round(time.Microsecond),
		version,
	)
}

func buildHeader(cols []column, th Theme) string {
	cells := make([]string, len(cols))
	for i, c := range cols {
		cells[i] = pad(c.title, c.width, c.left)
	}
	return fmt.Sprintf("[%s](fg:%s,mod:bold)", strings.Join(cells, " "), th.Name)
}

func adapterRow(a monitor.AdapterView, th Theme) string {
	var rx, tx monitor.Rate
	for _, p := range a.Ports {
		if p.Status != fabric.StatusOK {
			continue
		}
		rx = sumRate(rx, p.RxBytes)
		tx = sumRate(tx, p.TxBytes)
	}
	plural := "s"
	if len(a.Ports) == 1 {
		plural = ""
	}
	desc := ""
	if a.Description != "" {
		// brackets would end the markup span early
		desc = " · " + markupSafe.Replace(a.Description)
	}
	return fmt.Sprintf("[%s](fg:%s,mod:bold) [%s%s · %d port%s · RX %s TX %s](fg:%s)",
		a.Name, th.Name, a.Vendor, desc, len(a.Ports), plural, aggregateText(rx), aggregateText(tx), th.Text)
}

// sumRate adds r to acc, skipping counters that have no rate yet.
func sumRate(acc, r monitor.Rate) monitor.Rate {
	if !r.Valid {
		return acc
	}
	return monitor.Rate{Value: acc.Value + r.Value, Valid: true}
}

func aggregateText(r monitor.Rate) string {
	if !r.Valid {
		return placeholderPending
	}
	return formatRate(r.Value)
}

func portRow(p monitor.PortView, cols []column, th Theme) string {
	cells := make([]string, 0, len(cols))
	for _, c := range cols {
		if c.title == colHistory {
			cells = append(cells, styled(sparkline(p.History, c.width), th.Name))
			continue
		}
		text, color := portCell(p, c)
		cell := pad(text, c.width, c.left)
		if color == "" {
			color = th.Text
		}
		cells = append(cells, styled(cell, color))
	}
	return strings.Join(cells, " ")
}

// portCell returns the text and markup color of one cell.
func portCell(p monitor.PortView, c column) (string, string) {
	unavailable := ""
	switch p.Status {
	case fabric.StatusPending:
		unavailable = placeholderPending
	case fabric.StatusFailed:
		unavailable = placeholderFailed
	}

	rateText := func(r monitor.Rate, format func(float64) string) (string, string) {
		if unavailable != "" {
			return unavailable, "yellow"
		}
		// an OK port can still lack this counter
		if !r.Valid {
			return placeholderPending, "yellow"
		}
		return format(r.Value), ""
	}

	switch c.title {
	case colPort:
		return fmt.Sprintf("  %d", p.Number), ""
	case colState:
		s := p.State.String()
		return s, stateColor(s)
	case colLink:
		return truncateRate(p.LinkRate), ""
	case colLoad:
		if unavailable != "" {
			return unavailable, "yellow"
		}
		if !p.RxBytes.Valid && !p.TxBytes.Valid {
			return placeholderPending, "yellow"
		}
		pct := utilization(p.RxBytes.Value, p.TxBytes.Value, p.LinkRate)
		return utilizationBar(pct, loadBarWidth) + fmt.Sprintf(" %3.0f%%", pct), loadColor(pct)
	case colRx:
		return rateText(p.RxBytes, formatRate)
	case colTx:
		return rateText(p.TxBytes, formatRate)
	case colRxPkt:
		return rateText(p.RxPackets, formatCount)
	case colTxPkt:
		return rateText(p.TxPackets, formatCount)
	case colErr:
		if unavailable != "" {
			return unavailable, "yellow"
		}
		if !p.Errors.Valid {
			return "-", ""
		}
		if p.Errors.Value > 0 {
			return fmt.Sprintf("%.1f", p.Errors.Value), "red"
		}
		return "0", ""
	}
	return "", ""
}

func styled(text, color string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	return fmt.Sprintf("[%s](fg:%s)", text, color)
}

func pad(s string, width int, left bool) string {
	r := []rune(s)
	if len(r) > width {
		return string(r[:width])
	}
	if left {
		return fmt.Sprintf("%-*s", width, s)
	}
	return fmt.Sprintf("%*s", width, s)
}

// formatRate renders a byte rate with 1024-based units.
func formatRate(bytesPerSec float64) string {
	units := []string{"B/s", "KB/s", "MB/s", "GB/s", "TB/s"}
	value := bytesPerSec
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	if value < 0.1 {
		return fmt.Sprintf("%.2f %s", value, units[i])
	}
	return fmt.Sprintf("%.1f %s", value, units[i])
}

// formatCount renders a per-second count with 1000-based suffixes.
func formatCount(v float64) string {
	suffixes := []string{"", "K", "M", "G"}
	i := 0
	for v >= 1000 && i < len(suffixes)-1 {
		v /= 1000
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f%s", v, suffixes[i])
}

// parseLinkRate converts "100 Gb/sec (4X EDR)" to bytes per second.
func parseLinkRate(rate string) float64 {
	fields := strings.Fields(rate)
	if len(fields) >= 2 {
		var gbps float64
		if _, err := fmt.Sscanf(fields[0], "%g", &gbps); err == nil && gbps > 0 {
			return gbps * 1e9 / 8
		}
	}
	return defaultLinkBytes
}

func truncateRate(rate string) string {
	before, _, _ := strings.Cut(rate, "(")
	before = strings.TrimSpace(before)
	if before == "" {
		return "-"
	}
	return before
}

// utilization is the busier direction as a percentage of link capacity.
func utilization(rx, tx float64, linkRate string) float64 {
	busiest := rx
	if tx > busiest {
		busiest = tx
	}
	pct := busiest / parseLinkRate(linkRate) * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

func utilizationBar(pct float64, width int) string {
	filled := int(pct/100*float64(width) + 0.5)
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func sparkline(history []float64, width int) string {
	levels := monitor.Normalize(lastN(history, width))
	var sb strings.Builder
	for _, l := range levels {
		sb.WriteRune(sparkRunes[l])
	}
	return sb.String()
}

func lastN(values []float64, n int) []float64 {
	if len(values) > n {
		return values[len(values)-n:]
	}
	return values
}

func peak(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}
