package app

// Frame is everything drawn in one redraw. Row strings use termui style
// markup, e.g. "[ACTIVE](fg:green)".
type Frame struct {
	Title   string
	Header  string
	Rows    []string
	Footer  string
	Message string

	RxTitle   string
	TxTitle   string
	RxHistory []float64
	TxHistory []float64
}

// HostInfo identifies the machine in the title bar and headless output.
type HostInfo struct {
	Hostname string `json:"hostname"`
	Kernel   string `json:"kernel,omitempty"`
	Uptime   uint64 `json:"uptime_seconds,omitempty"`
}

// column is one slot of the port table.
type column struct {
	title string
	width int
	left  bool
}
