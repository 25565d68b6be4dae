package app

import (
	"log"
	"os"
	"time"
)

var (
	version      = "v0.3.0"
	stderrLogger = log.New(os.Stderr, "", 0)
)

// Keys that end the session. <C-c> arrives as a key event while the
// terminal is in raw mode and is treated as an interrupt.
const (
	keyQuit      = "q"
	keyEscape    = "<Escape>"
	keyInterrupt = "<C-c>"
	keyResize    = "<Resize>"
)

const (
	defaultInterval = time.Second
	minInterval     = 100 * time.Millisecond
	maxInterval     = time.Minute
)
