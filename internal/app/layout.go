package app

import (
	ui "github.com/gizak/termui/v3"
)

const (
	colPort    = "PORT"
	colState   = "STATE"
	colLink    = "LINK"
	colLoad    = "LOAD"
	colRx      = "RX"
	colTx      = "TX"
	colRxPkt   = "RX PKT/s"
	colTxPkt   = "TX PKT/s"
	colErr     = "ERR/s"
	colHistory = "HISTORY"

	loadBarWidth   = 10
	minHistoryCols = 10
)

var baseColumns = []column{
	{title: colPort, width: 6, left: true},
	{title: colState, width: 7, left: true},
	{title: colLink, width: 11, left: true},
	{title: colLoad, width: loadBarWidth + 5, left: true},
	{title: colRx, width: 11},
	{title: colTx, width: 11},
	{title: colRxPkt, width: 10},
	{title: colTxPkt, width: 10},
	{title: colErr, width: 8},
}

// dropOrder lists columns shed, in order, when the terminal is too narrow.
var dropOrder = [][]string{
	{colRxPkt, colTxPkt},
	{colLoad},
	{colLink},
}

func tableWidth(cols []column) int {
	w := 0
	for i, c := range cols {
		if i > 0 {
			w++
		}
		w += c.width
	}
	return w
}

// columnsFor fits the port table into width inner cells. The history
// sparkline takes whatever is left over.
func columnsFor(width int) []column {
	cols := append([]column(nil), baseColumns...)
	if rest := width - tableWidth(cols) - 1; rest >= minHistoryCols {
		return append(cols, column{title: colHistory, width: rest, left: true})
	}

	for _, drop := range dropOrder {
		if tableWidth(cols) <= width {
			break
		}
		kept := cols[:0]
		for _, c := range cols {
			if !contains(drop, c.title) {
				kept = append(kept, c)
			}
		}
		cols = kept
	}
	return cols
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// setupGrid places the port list above the throughput sparklines. The
// footer sits on the last line outside the grid.
func setupGrid(s *termuiScreen, termWidth, termHeight int) {
	s.grid = ui.NewGrid()
	s.grid.Set(
		ui.NewRow(3.0/4,
			ui.NewCol(1.0, s.portList),
		),
		ui.NewRow(1.0/4,
			ui.NewCol(1.0/2, s.rxGroup),
			ui.NewCol(1.0/2, s.txGroup),
		),
	)
	if termHeight < 2 {
		termHeight = 2
	}
	s.grid.SetRect(0, 0, termWidth, termHeight-1)
	s.footer.SetRect(0, termHeight-1, termWidth, termHeight)
}
