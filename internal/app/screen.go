package app

import (
	"sync"

	ui "github.com/gizak/termui/v3"
	w "github.com/gizak/termui/v3/widgets"
)

// termuiScreen draws frames with termui widgets.
type termuiScreen struct {
	theme     Theme
	grid      *ui.Grid
	portList  *w.List
	rxLine    *w.Sparkline
	txLine    *w.Sparkline
	rxGroup   *w.SparklineGroup
	txGroup   *w.SparklineGroup
	footer    *w.Paragraph
	message   *w.Paragraph
	closeOnce sync.Once
	ready     bool
}

func newTermuiScreen(th Theme) *termuiScreen {
	return &termuiScreen{theme: th}
}

func (s *termuiScreen) Init() error {
	if err := ui.Init(); err != nil {
		return err
	}
	s.ready = true
	applyTheme(s.theme)
	s.setupWidgets()
	termWidth, termHeight := ui.TerminalDimensions()
	setupGrid(s, termWidth, termHeight)
	return nil
}

func (s *termuiScreen) setupWidgets() {
	th := s.theme

	s.portList = w.NewList()
	s.portList.Title = "ibtop"
	s.portList.TextStyle = ui.NewStyle(th.Accent)
	s.portList.WrapText = false
	// nothing is selectable, keep row 0 unhighlighted
	s.portList.SelectedRowStyle = s.portList.TextStyle
	s.portList.BorderStyle.Fg = th.Accent
	s.portList.TitleStyle = ui.NewStyle(th.Accent, ui.ColorClear, ui.ModifierBold)

	s.rxLine = w.NewSparkline()
	s.rxLine.LineColor = th.Accent
	s.rxGroup = w.NewSparklineGroup(s.rxLine)
	s.rxGroup.BorderStyle.Fg = th.Accent
	s.rxGroup.TitleStyle.Fg = th.Accent

	s.txLine = w.NewSparkline()
	s.txLine.LineColor = th.Accent
	s.txGroup = w.NewSparklineGroup(s.txLine)
	s.txGroup.BorderStyle.Fg = th.Accent
	s.txGroup.TitleStyle.Fg = th.Accent

	s.footer = w.NewParagraph()
	s.footer.Border = false
	s.footer.TextStyle = ui.NewStyle(th.Secondary)

	s.message = w.NewParagraph()
	s.message.Border = false
	s.message.TextStyle = ui.NewStyle(ui.ColorYellow)
}

func (s *termuiScreen) Close() {
	s.closeOnce.Do(func() {
		if s.ready {
			ui.Close()
		}
	})
}

func (s *termuiScreen) Size() (int, int) {
	return ui.TerminalDimensions()
}

func (s *termuiScreen) Events() <-chan ui.Event {
	return ui.PollEvents()
}

func (s *termuiScreen) Draw(f Frame) {
	termWidth, termHeight := ui.TerminalDimensions()
	setupGrid(s, termWidth, termHeight)

	s.portList.Title = f.Title
	s.portList.Rows = append([]string{f.Header}, f.Rows...)
	s.rxGroup.Title = f.RxTitle
	s.txGroup.Title = f.TxTitle
	s.rxLine.Data, s.rxLine.MaxVal = sparkData(f.RxHistory)
	s.txLine.Data, s.txLine.MaxVal = sparkData(f.TxHistory)
	s.footer.Text = f.Footer

	ui.Clear()
	items := []ui.Drawable{s.grid, s.footer}
	if f.Message != "" {
		s.message.Text = f.Message
		s.message.SetRect(2, 2, termWidth-2, 4)
		items = append(items, s.message)
	}
	ui.Render(items...)
}

// sparkData keeps termui from dividing by a zero maximum. A zero MaxVal
// lets the sparkline scale to its own peak.
func sparkData(values []float64) ([]float64, float64) {
	if len(values) == 0 {
		values = []float64{0}
	}
	if peak(values) <= 0 {
		return values, 1
	}
	return values, 0
}
