// Copyright (c) 2024-2026 Carsen Klock under MIT License
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	ibErrors "github.com/context-labs/ibtop/internal/errors"
	"github.com/context-labs/ibtop/internal/fabric"
	"github.com/context-labs/ibtop/internal/monitor"
)

// HeadlessOutput is one JSON record written per tick.
type HeadlessOutput struct {
	Timestamp string           `json:"timestamp"`
	Host      HostInfo         `json:"host"`
	Snapshot  monitor.Snapshot `json:"snapshot"`
}

var (
	headlessTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	headlessActive = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	headlessDown   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	headlessOther  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	headlessDim    = lipgloss.NewStyle().Faint(true)
)

// runHeadless samples without a terminal and writes one record per tick.
// count of zero runs until ctx is done. The first record is written after
// the first tick, so rates start out null.
func runHeadless(ctx context.Context, cfg Config, sampler Sampler, host HostInfo, out io.Writer) error {
	write, err := headlessWriter(cfg.Format, host, out)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	samples := 0
	for {
		snap, err := sampler.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := write(snap); err != nil {
			return err
		}
		samples++
		if cfg.Count > 0 && samples >= cfg.Count {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func headlessWriter(format string, host HostInfo, out io.Writer) (func(monitor.Snapshot) error, error) {
	switch format {
	case FormatJSON, "":
		encoder := json.NewEncoder(out)
		return func(snap monitor.Snapshot) error {
			rec := HeadlessOutput{
				Timestamp: snap.Time.Format(time.RFC3339),
				Host:      host,
				Snapshot:  snap,
			}
			if err := encoder.Encode(rec); err != nil {
				return ibErrors.WrapWithCode(err, ibErrors.ErrFormat, "Cannot encode JSON output", "")
			}
			return nil
		}, nil
	case FormatProm:
		exp := newExporter()
		return func(snap monitor.Snapshot) error {
			exp.Update(snap)
			if err := exp.Write(out); err != nil {
				return err
			}
			_, err := fmt.Fprintln(out)
			return err
		}, nil
	case FormatText:
		return func(snap monitor.Snapshot) error {
			_, err := io.WriteString(out, formatText(snap, host))
			return err
		}, nil
	}
	return nil, ibErrors.New(ibErrors.ErrConfig,
		fmt.Sprintf("unknown output format %q", format), "Use one of: json, prom, text")
}

// formatText is a plain table for logs and pipes.
func formatText(snap monitor.Snapshot, host HostInfo) string {
	var b strings.Builder
	b.WriteString(headlessTitle.Render(fmt.Sprintf("%s  %s  RX %s  TX %s",
		snap.Time.Format(time.RFC3339), host.Hostname,
		formatRate(snap.Totals.RxBytes), formatRate(snap.Totals.TxBytes))))
	b.WriteString("\n")

	if len(snap.Adapters) == 0 {
		b.WriteString(headlessDim.Render("  " + noAdaptersMessage))
		b.WriteString("\n")
	}
	for _, p := range snap.Ports() {
		b.WriteString(fmt.Sprintf("  %-12s %2d %s %11s %11s %8s\n",
			p.Adapter, p.Number,
			stateStyle(p.State).Render(fmt.Sprintf("%-6s", p.State)),
			textRate(p, p.RxBytes), textRate(p, p.TxBytes), textErrors(p)))
	}
	return b.String()
}

func stateStyle(s fabric.LinkState) lipgloss.Style {
	switch s {
	case fabric.StateActive:
		return headlessActive
	case fabric.StateDown:
		return headlessDown
	default:
		return headlessOther
	}
}

func textRate(p monitor.PortView, r monitor.Rate) string {
	switch {
	case p.Status == fabric.StatusFailed:
		return placeholderFailed
	case !r.Valid:
		return placeholderPending
	}
	return formatRate(r.Value)
}

func textErrors(p monitor.PortView) string {
	if p.Status == fabric.StatusFailed || !p.Errors.Valid {
		return "-"
	}
	return fmt.Sprintf("%.1f/s", p.Errors.Value)
}
