package app

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

const osc11Timeout = 100 * time.Millisecond

// detectLightMode resolves the background setting. "light" and "dark" are
// taken as given; anything else probes the terminal with OSC 11 and falls
// back to COLORFGBG. It must run before the screen takes over stdin.
func detectLightMode(background string) bool {
	switch strings.ToLower(background) {
	case "light":
		return true
	case "dark":
		return false
	}

	if isLight, err := queryBackgroundOSC11(os.Stdin, os.Stdout); err == nil {
		return isLight
	}
	if isLight, err := lightFromCOLORFGBG(os.Getenv("COLORFGBG")); err == nil {
		return isLight
	}
	return false
}

func queryBackgroundOSC11(in *os.File, out io.Writer) (bool, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return false, fmt.Errorf("stdin is not a terminal")
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return false, err
	}
	defer term.Restore(fd, oldState)

	if _, err := io.WriteString(out, "\033]11;?\007"); err != nil {
		return false, err
	}

	respCh := make(chan string, 1)
	go func() {
		resp, _ := readOSCReply(bufio.NewReader(in))
		respCh <- resp
	}()

	select {
	case resp := <-respCh:
		return parseOSC11Response(resp)
	case <-time.After(osc11Timeout):
		return false, fmt.Errorf("timeout waiting for OSC 11 response")
	}
}

// readOSCReply reads up to BEL or ST, capped at 100 bytes.
func readOSCReply(r io.ByteReader) (string, error) {
	var resp []byte
	for len(resp) <= 100 {
		b, err := r.ReadByte()
		if err != nil {
			return string(resp), err
		}
		resp = append(resp, b)
		if b == 0x07 {
			break
		}
		if n := len(resp); n >= 2 && resp[n-2] == 0x1b && resp[n-1] == '\\' {
			break
		}
	}
	return string(resp), nil
}

// parseOSC11Response reads "rgb:RRRR/GGGG/BBBB" (or rgba:) and reports
// whether the color is light. Channels may use 1 to 4 hex digits.
func parseOSC11Response(resp string) (bool, error) {
	start := strings.Index(resp, "rgb:")
	skip := 4
	if start == -1 {
		start = strings.Index(resp, "rgba:")
		skip = 5
	}
	if start == -1 {
		return false, fmt.Errorf("invalid response format")
	}

	parts := strings.Split(resp[start+skip:], "/")
	if len(parts) < 3 {
		return false, fmt.Errorf("invalid color format")
	}

	var rgb [3]float64
	for i := 0; i < 3; i++ {
		digits := leadingHex(parts[i])
		if digits == "" || len(digits) > 4 {
			return false, fmt.Errorf("invalid channel %q", parts[i])
		}
		v, err := strconv.ParseUint(digits, 16, 16)
		if err != nil {
			return false, err
		}
		rgb[i] = float64(v) / float64(uint64(1)<<(4*len(digits))-1)
	}

	luminance := 0.299*rgb[0] + 0.587*rgb[1] + 0.114*rgb[2]
	return luminance > 0.5, nil
}

func leadingHex(s string) string {
	for i, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return s[:i]
		}
	}
	return s
}

// lightFromCOLORFGBG interprets "fg;bg" or rxvt's "fg;default;bg".
func lightFromCOLORFGBG(v string) (bool, error) {
	if v == "" {
		return false, fmt.Errorf("COLORFGBG not set")
	}
	parts := strings.Split(v, ";")
	if len(parts) < 2 {
		return false, fmt.Errorf("invalid COLORFGBG format")
	}

	bg, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return false, err
	}
	switch bg {
	case 7, 11, 14, 15, 231, 255:
		return true, nil
	}
	return false, nil
}
