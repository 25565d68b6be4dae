package app

import (
	"context"
	"time"

	ui "github.com/gizak/termui/v3"

	ibErrors "github.com/context-labs/ibtop/internal/errors"
	"github.com/context-labs/ibtop/internal/monitor"
)

// Screen is the terminal the loop draws on. Init switches the terminal into
// full-screen mode and Close must restore it.
type Screen interface {
	Init() error
	Close()
	Size() (width, height int)
	Events() <-chan ui.Event
	Draw(f Frame)
}

// Sampler produces one snapshot per call.
type Sampler interface {
	Tick(ctx context.Context) (monitor.Snapshot, error)
}

// Loop is the single-threaded driver: sample, build the frame, draw, then
// wait for the next tick or a key. Nothing else touches the sampler or the
// screen.
type Loop struct {
	screen   Screen
	sampler  Sampler
	interval time.Duration
	theme    Theme
	host     HostInfo

	width, height int
	last          monitor.Snapshot
}

// NewLoop builds a loop; a non-positive interval falls back to the default.
func NewLoop(screen Screen, sampler Sampler, interval time.Duration, th Theme, host HostInfo) *Loop {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Loop{screen: screen, sampler: sampler, interval: interval, theme: th, host: host}
}

// Run owns the terminal from Init until it returns. The terminal is restored
// on every path out, including panics. Quit keys and context cancellation
// return nil.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.screen.Init(); err != nil {
		l.screen.Close()
		return ibErrors.WrapWithCode(err, ibErrors.ErrTerminal,
			"Cannot initialize the terminal", "Run ibtop in an interactive terminal or use --headless")
	}
	defer func() {
		r := recover()
		l.screen.Close()
		if r != nil {
			panic(r)
		}
	}()

	l.width, l.height = l.screen.Size()
	events := l.screen.Events()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	if err := l.tick(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			switch e.ID {
			case keyQuit, keyEscape, keyInterrupt:
				return nil
			case keyResize:
				if payload, ok := e.Payload.(ui.Resize); ok {
					l.width, l.height = payload.Width, payload.Height
				}
				l.draw()
			}
		case <-ticker.C:
			if err := l.tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) tick(ctx context.Context) error {
	snap, err := l.sampler.Tick(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	l.last = snap
	l.draw()
	return nil
}

func (l *Loop) draw() {
	l.screen.Draw(BuildFrame(l.last, l.host, l.width, l.height, l.interval, l.theme))
}
